package portal_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mashovsend/core"
	"github.com/trezcool/mashovsend/services/portal"
	"github.com/trezcool/mashovsend/tests"
)

var validCreds = portal.Credentials{
	Username: testutil.Username,
	Password: testutil.Password,
	Year:     testutil.Year,
	Semel:    testutil.Semel,
}

func newClient(t *testing.T, baseURL string, creds portal.Credentials, opts ...portal.Option) *portal.Client {
	t.Helper()
	c, err := portal.NewClient(creds, append([]portal.Option{portal.WithBaseURL(baseURL)}, opts...)...)
	require.NoError(t, err)
	return c
}

func loggedIn(t *testing.T, p *testutil.Portal) *portal.Client {
	t.Helper()
	c := newClient(t, p.URL, validCreds)
	_, err := c.Login(context.Background())
	require.NoError(t, err)
	return c
}

func TestNewClient_Preconditions(t *testing.T) {
	_, err := portal.NewClient(validCreds, portal.WithBaseURL(""))
	assert.Error(t, err)

	_, err = portal.NewClient(validCreds, portal.WithTimeout(0))
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	p := testutil.NewPortal(t)
	c := newClient(t, p.URL, validCreds)

	acc, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutil.DisplayName, acc.DisplayName)
	assert.True(t, c.Authenticated())
	assert.Equal(t, testutil.Token(1), c.CSRFToken())
	assert.Equal(t, 1, p.Logins())
}

func TestLogin_BadCredentials(t *testing.T) {
	p := testutil.NewPortal(t)
	creds := validCreds
	creds.Password = "wrong"
	c := newClient(t, p.URL, creds)

	_, err := c.Login(context.Background())
	require.Error(t, err)
	assert.True(t, portal.IsAuthError(err))
	assert.Equal(t, http.StatusUnauthorized, portal.StatusCode(err))
	assert.False(t, c.Authenticated())

	_, err = c.ResolveRecipient(context.Background(), "012345678")
	assert.True(t, errors.Is(err, portal.ErrNotAuthenticated))
	assert.Empty(t, p.Lookups())
}

func TestLogin_UnparsableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, validCreds)
	_, err := c.Login(context.Background())
	assert.True(t, portal.IsAuthError(err))
	assert.False(t, c.Authenticated())
}

func TestLogin_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := newClient(t, srv.URL, validCreds)
	acc, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", acc.DisplayName)
	assert.True(t, c.Authenticated())
}

func TestNotAuthenticated(t *testing.T) {
	p := testutil.NewPortal(t)
	c := newClient(t, p.URL, validCreds)
	ctx := context.Background()

	_, err := c.ResolveRecipient(ctx, "012345678")
	assert.True(t, errors.Is(err, portal.ErrNotAuthenticated))

	_, err = c.ListRecipients(ctx)
	assert.True(t, errors.Is(err, portal.ErrNotAuthenticated))

	_, err = c.SendMessage(ctx, portal.Message{Subject: "s", Body: "b", RecipientIDs: []string{"g"}})
	assert.True(t, errors.Is(err, portal.ErrNotAuthenticated))

	assert.Empty(t, p.Lookups())
	assert.Empty(t, p.Sent())
}

func TestCSRF_CookieNameIsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"csrf-token", "CSRF-TOKEN", "Csrf-Token"} {
		t.Run(name, func(t *testing.T) {
			p := testutil.NewPortal(t)
			p.SetCSRFCookieName(name)
			p.AddStudent("012345678", testutil.Student{GUID: "g-1"})

			c := loggedIn(t, p)
			_, err := c.ResolveRecipient(context.Background(), "012345678")
			require.NoError(t, err)
			assert.Equal(t, []string{testutil.Token(1)}, p.LookupCSRF())
		})
	}
}

func TestCSRF_LatestTokenAfterRelogin(t *testing.T) {
	p := testutil.NewPortal(t)
	p.AddStudent("012345678", testutil.Student{GUID: "g-1"})
	c := loggedIn(t, p)
	ctx := context.Background()

	_, err := c.ResolveRecipient(ctx, "012345678")
	require.NoError(t, err)

	_, err = c.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Logins())

	_, err = c.ResolveRecipient(ctx, "012345678")
	require.NoError(t, err)
	_, err = c.SendMessage(ctx, portal.Message{Subject: "s", Body: "b", RecipientIDs: []string{"g-1"}})
	require.NoError(t, err)

	assert.Equal(t, []string{testutil.Token(1), testutil.Token(2)}, p.LookupCSRF())
	sent := p.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testutil.Token(2), sent[0].CSRF)
}

func TestResolveRecipient(t *testing.T) {
	p := testutil.NewPortal(t)
	p.AddStudent("012345678", testutil.Student{GUID: "g-1", ClassCode: "ט", ClassNum: 2, FamilyName: "לוי", PrivateName: "דנה"})
	p.AddStudent("000000042", testutil.Student{})
	p.FailLookup("111111111", http.StatusInternalServerError)
	c := loggedIn(t, p)
	ctx := context.Background()

	t.Run("match", func(t *testing.T) {
		rcpt, err := c.ResolveRecipient(ctx, "012345678")
		require.NoError(t, err)
		require.NotNil(t, rcpt)
		assert.Equal(t, "g-1", rcpt.ID)
		assert.Equal(t, "2", rcpt.ClassNum)
		assert.Equal(t, "כיתה/ט/2/לוי דנה", rcpt.Label())
	})

	t.Run("match without guid", func(t *testing.T) {
		rcpt, err := c.ResolveRecipient(ctx, "000000042")
		require.NoError(t, err)
		require.NotNil(t, rcpt)
		assert.Equal(t, "", rcpt.ID)
	})

	t.Run("no match", func(t *testing.T) {
		rcpt, err := c.ResolveRecipient(ctx, "999999999")
		assert.NoError(t, err)
		assert.Nil(t, rcpt)
	})

	t.Run("http failure", func(t *testing.T) {
		rcpt, err := c.ResolveRecipient(ctx, "111111111")
		assert.Nil(t, rcpt)
		var lErr *portal.LookupError
		require.True(t, errors.As(err, &lErr))
		assert.Equal(t, "111111111", lErr.ID)
		assert.Equal(t, http.StatusInternalServerError, portal.StatusCode(err))
	})

	t.Run("empty id", func(t *testing.T) {
		before := len(p.Lookups())
		rcpt, err := c.ResolveRecipient(ctx, "")
		assert.NoError(t, err)
		assert.Nil(t, rcpt)
		assert.Len(t, p.Lookups(), before)
	})
}

func TestListRecipients(t *testing.T) {
	p := testutil.NewPortal(t)
	p.SetRecipients([]map[string]interface{}{{"displayName": "a"}, {"displayName": "b"}})
	c := loggedIn(t, p)

	list, err := c.ListRecipients(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSendMessage(t *testing.T) {
	p := testutil.NewPortal(t)
	c := loggedIn(t, p)
	ctx := context.Background()

	ack, err := c.SendMessage(ctx, portal.Message{
		Subject:      "שלום",
		Body:         "<b>hi</b>",
		RecipientIDs: []string{"g-1"},
		SendViaEmail: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "m-1", ack.Raw["messageId"])

	sent := p.Sent()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "שלום", msg.Subject)
	assert.Equal(t, "<b>hi</b>", msg.Body)
	assert.True(t, msg.Send)
	assert.Equal(t, "true", msg.SendViaEmail)
	assert.Equal(t, "true", msg.PreventReply)
	require.Len(t, msg.Recipients, 1)
	assert.Equal(t, "User", msg.Recipients[0].TargetType)
	assert.Equal(t, "User", msg.Recipients[0].ValueType)
	assert.Equal(t, "g-1", msg.Recipients[0].Value)

	t.Run("send via email off", func(t *testing.T) {
		_, err := c.SendMessage(ctx, portal.Message{Subject: "s", Body: "b", RecipientIDs: []string{"g-2"}})
		require.NoError(t, err)
		sent := p.Sent()
		assert.Equal(t, "false", sent[len(sent)-1].SendViaEmail)
	})

	t.Run("empty acknowledgement", func(t *testing.T) {
		p.SetSendResponse("")
		ack, err := c.SendMessage(ctx, portal.Message{Subject: "s", Body: "b", RecipientIDs: []string{"g-1"}})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"ok": true}, ack.Raw)
	})

	t.Run("non-json acknowledgement", func(t *testing.T) {
		p.SetSendResponse("OK")
		_, err := c.SendMessage(ctx, portal.Message{Subject: "s", Body: "b", RecipientIDs: []string{"g-1"}})
		var sErr *portal.SendError
		assert.True(t, errors.As(err, &sErr))
	})

	t.Run("http failure", func(t *testing.T) {
		p.FailSend("g-bad", http.StatusBadGateway)
		_, err := c.SendMessage(ctx, portal.Message{Subject: "s", Body: "b", RecipientIDs: []string{"g-bad"}})
		var sErr *portal.SendError
		require.True(t, errors.As(err, &sErr))
		assert.Equal(t, http.StatusBadGateway, portal.StatusCode(err))
	})

	t.Run("no recipients", func(t *testing.T) {
		_, err := c.SendMessage(ctx, portal.Message{Subject: "s", Body: "b"})
		var sErr *portal.SendError
		assert.True(t, errors.As(err, &sErr))
	})
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/login" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, validCreds, portal.WithTimeout(100*time.Millisecond))
	_, err := c.Login(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = c.ResolveRecipient(context.Background(), "012345678")
	var lErr *portal.LookupError
	require.True(t, errors.As(err, &lErr))
	assert.True(t, portal.IsTimeout(err))
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
}

func TestLogin_CancelledContext(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newClient(t, srv.URL, validCreds)
	_, err := c.Login(ctx)
	assert.Error(t, err)
	assert.False(t, c.Authenticated())
	assert.Zero(t, hits)
}

func TestCredentials_Validate(t *testing.T) {
	validate, translator := core.NewValidator()

	creds := portal.Credentials{Username: " teacher ", Password: "p", Year: "2024", Semel: "123"}
	require.NoError(t, creds.Validate(validate, translator))
	assert.Equal(t, "teacher", creds.Username)

	bad := portal.Credentials{Username: "  ", Password: "", Year: "24", Semel: "1"}
	err := bad.Validate(validate, translator)
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
}
