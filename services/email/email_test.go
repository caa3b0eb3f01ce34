package emailsvc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mashovsend/core"
)

func testConfig(provider string) *core.Config {
	return &core.Config{
		AppName: "MashovSend",
		Email: core.EmailConfig{
			Provider:         provider,
			SendgridApiKey:   "sg-key",
			ResendApiKey:     "re-key",
			DefaultFromEmail: "noreply@school.example",
		},
	}
}

func testMessage(t *testing.T) *core.EmailMessage {
	msg := &core.EmailMessage{
		To:          []mail.Address{{Name: "Operator", Address: "op@school.example"}},
		Subject:     "Run r-1: 1 succeeded, 1 failed",
		TextContent: "Run r-1",
	}
	require.NoError(t, msg.Attach(strings.NewReader("id\n3\n"), "failed_rows.csv", "text/csv"))
	return msg
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		conf     func() *core.Config
		wantType interface{}
		wantErr  string
	}{
		{name: "default", conf: func() *core.Config { return testConfig("") }, wantType: &ConsoleService{}},
		{name: "console", conf: func() *core.Config { return testConfig("console") }, wantType: &ConsoleService{}},
		{name: "sendgrid", conf: func() *core.Config { return testConfig("sendgrid") }, wantType: &sendgridService{}},
		{name: "resend", conf: func() *core.Config { return testConfig("resend") }, wantType: &resendService{}},
		{
			name: "sendgrid without key",
			conf: func() *core.Config {
				c := testConfig("sendgrid")
				c.Email.SendgridApiKey = ""
				return c
			},
			wantErr: "sendgrid api key is not configured",
		},
		{
			name: "resend without key",
			conf: func() *core.Config {
				c := testConfig("resend")
				c.Email.ResendApiKey = ""
				return c
			},
			wantErr: "resend api key is not configured",
		},
		{name: "unknown", conf: func() *core.Config { return testConfig("pigeon") }, wantErr: `unknown provider "pigeon"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := New(tt.conf(), nil)
			if tt.wantErr != "" {
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, svc)
		})
	}
}

func TestConsoleService_SendMessages(t *testing.T) {
	var out bytes.Buffer
	svc := NewConsoleService(testConfig("console"), &out)

	err := svc.SendMessages(context.Background(), testMessage(t), &core.EmailMessage{Subject: "nobody to send to"})
	require.NoError(t, err)

	require.Len(t, svc.SentMessages(), 1)
	dump := out.String()
	assert.Contains(t, dump, "Subject: [MashovSend] Run r-1: 1 succeeded, 1 failed")
	assert.Contains(t, dump, `To: "Operator" <op@school.example>`)
	assert.Contains(t, dump, "filename=failed_rows.csv")
	assert.Contains(t, dump, base64.StdEncoding.EncodeToString([]byte("id\n3\n")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, svc.SendMessages(ctx, testMessage(t)))
}

func TestSendgridService_SendMessages(t *testing.T) {
	var (
		gotAuth string
		gotBody map[string]interface{}
		status  = http.StatusAccepted
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sendgridEndpoint, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.WriteHeader(status)
	}))
	defer ts.Close()

	svc := NewSendgridService(testConfig("sendgrid")).(*sendgridService)
	svc.host = ts.URL

	require.NoError(t, svc.SendMessages(context.Background(), testMessage(t)))
	assert.Equal(t, "Bearer sg-key", gotAuth)

	pers := gotBody["personalizations"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "[MashovSend] Run r-1: 1 succeeded, 1 failed", pers["subject"])
	assert.Equal(t, "op@school.example", pers["to"].([]interface{})[0].(map[string]interface{})["email"])
	att := gotBody["attachments"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "failed_rows.csv", att["filename"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("id\n3\n")), att["content"])

	status = http.StatusUnauthorized
	err := svc.SendMessages(context.Background(), testMessage(t))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "status 401")
	}

	gotAuth = ""
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, svc.SendMessages(ctx, testMessage(t)))
	assert.Empty(t, gotAuth)
}

func TestResendService_prepare(t *testing.T) {
	svc := NewResendService(testConfig("resend")).(*resendService)
	msg := testMessage(t)
	msg.Cc = []mail.Address{{Address: "cc@school.example"}}

	req := svc.prepare(*msg)
	assert.Equal(t, `"MashovSend" <noreply@school.example>`, req.From)
	assert.Equal(t, []string{`"Operator" <op@school.example>`}, req.To)
	assert.Equal(t, []string{"<cc@school.example>"}, req.Cc)
	assert.Nil(t, req.Bcc)
	assert.Equal(t, "[MashovSend] Run r-1: 1 succeeded, 1 failed", req.Subject)
	assert.Equal(t, "Run r-1", req.Text)
	require.Len(t, req.Attachments, 1)
	assert.Equal(t, "failed_rows.csv", req.Attachments[0].Filename)
	assert.Equal(t, []byte("id\n3\n"), req.Attachments[0].Content)
}
