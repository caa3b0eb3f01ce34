// Package portal is a session-authenticated client for the school portal's private JSON API.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/mashovsend/core"
)

const (
	DefaultBaseURL = "https://web.mashov.info"
	DefaultTimeout = 25 * time.Second

	loginPath      = "/api/login"
	detailsPath    = "/api/students/details/"
	messagesPath   = "/api/mail/messages"
	recipientsPath = "/api/mail/recipients"
	refererPath    = "/teachers/login"

	csrfCookieName = "csrf-token"
	csrfHeaderName = "X-Csrf-Token"

	maxErrBody = 200
)

// Session is the authenticated state of one Client. It lives in memory only.
type Session struct {
	jar           http.CookieJar
	csrf          string
	account       AccountInfo
	authenticated bool
}

func newSession() *Session {
	jar, _ := cookiejar.New(nil) // never fails with nil options
	return &Session{jar: jar}
}

// Client talks to one portal on behalf of one account. Calls are serialized.
type Client struct {
	baseURL   string
	creds     Credentials
	timeout   time.Duration
	userAgent string
	logger    core.Logger

	mu      sync.Mutex
	http    *http.Client
	rest    *rest.Client
	session *Session
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithLogger(l core.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns an unauthenticated client; call Login before anything else.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:   DefaultBaseURL,
		creds:     creds,
		timeout:   DefaultTimeout,
		userAgent: "MashovSend-Go/1.0",
		logger:    core.NopLogger,
		session:   newSession(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(c.baseURL, "baseURL"),
		vala.GreaterThan(int(c.timeout), 0, "timeout"),
	).Check(); err != nil {
		return nil, errors.Wrap(err, "portal.NewClient")
	}
	if _, err := url.Parse(c.baseURL); err != nil {
		return nil, errors.Wrap(err, "portal.NewClient: base url")
	}

	c.http = &http.Client{}
	c.http.Jar = c.session.jar
	c.http.Timeout = c.timeout
	c.rest = &rest.Client{HTTPClient: c.http}
	return c, nil
}

// Account returns the account info captured by the last successful Login.
func (c *Client) Account() AccountInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.account
}

func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.authenticated
}

// CSRFToken returns the token currently attached to requests, if any.
func (c *Client) CSRFToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.csrf
}

// Login authenticates with the client's credentials. A failed attempt leaves the client
// unauthenticated with a fresh cookie jar.
func (c *Client) Login(ctx context.Context) (AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fail := func(err error) (AccountInfo, error) {
		c.resetSession()
		return AccountInfo{}, &AuthError{Err: err}
	}

	res, err := c.do(ctx, rest.Post, loginPath, loginRequest{
		Username: c.creds.Username,
		Password: c.creds.Password,
		Year:     c.creds.Year,
		Semel:    c.creds.Semel,
	})
	if err != nil {
		return fail(err)
	}

	var raw map[string]interface{}
	if strings.TrimSpace(res.Body) != "" {
		var data interface{}
		if err := json.Unmarshal([]byte(res.Body), &data); err != nil {
			return fail(errors.Wrap(err, "decoding login response"))
		}
		raw, _ = data.(map[string]interface{})
	}

	if token := c.findCSRF(res); token != "" {
		c.session.csrf = token
	}
	c.session.account = newAccountInfo(raw)
	c.session.authenticated = true
	c.logger.Info(fmt.Sprintf("portal: logged in as %q", c.session.account.DisplayName))
	return c.session.account, nil
}

// ResolveRecipient looks up a student by normalized identifier. No match is (nil, nil).
func (c *Client) ResolveRecipient(ctx context.Context, id string) (*Recipient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.authenticated {
		return nil, ErrNotAuthenticated
	}
	if id == "" {
		return nil, nil
	}

	res, err := c.do(ctx, rest.Get, detailsPath+url.PathEscape(id), nil)
	if err != nil {
		return nil, &LookupError{ID: id, Err: err}
	}

	var data interface{}
	if err := json.Unmarshal([]byte(res.Body), &data); err != nil {
		return nil, &LookupError{ID: id, Err: errors.Wrap(err, "decoding student details")}
	}
	list, ok := data.([]interface{})
	if !ok || len(list) == 0 {
		return nil, nil
	}
	first, ok := list[0].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	st, ok := first["student"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	return newRecipient(st), nil
}

// ListRecipients returns the raw entries of the account's mail address book.
func (c *Client) ListRecipients(ctx context.Context) ([]map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.authenticated {
		return nil, ErrNotAuthenticated
	}

	res, err := c.do(ctx, rest.Get, recipientsPath, nil)
	if err != nil {
		return nil, &LookupError{Err: err}
	}

	var data interface{}
	if err := json.Unmarshal([]byte(res.Body), &data); err != nil {
		return nil, &LookupError{Err: errors.Wrap(err, "decoding recipients")}
	}
	list, _ := data.([]interface{})
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// SendMessage posts one message. An empty acknowledgement body reads as {"ok": true}.
func (c *Client) SendMessage(ctx context.Context, msg Message) (Ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.authenticated {
		return Ack{}, ErrNotAuthenticated
	}
	if len(msg.RecipientIDs) == 0 {
		return Ack{}, &SendError{Err: errNoRecipients}
	}

	res, err := c.do(ctx, rest.Post, messagesPath, newSendRequest(msg))
	if err != nil {
		return Ack{}, &SendError{Err: err}
	}

	if strings.TrimSpace(res.Body) == "" {
		return Ack{Raw: map[string]interface{}{"ok": true}}, nil
	}
	var data interface{}
	if err := json.Unmarshal([]byte(res.Body), &data); err != nil {
		return Ack{}, &SendError{Err: errors.Wrap(err, "decoding send acknowledgement")}
	}
	raw, ok := data.(map[string]interface{})
	if !ok {
		raw = map[string]interface{}{"data": data}
	}
	return Ack{Raw: raw}, nil
}

// do sends one request bounded by the client timeout. Non-2xx answers are *StatusError.
func (c *Client) do(ctx context.Context, method rest.Method, path string, payload interface{}) (*rest.Response, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, errors.Wrap(err, "encoding request")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.send(ctx, rest.Request{
		Method:  method,
		BaseURL: c.baseURL + path,
		Headers: c.headers(),
		Body:    body,
	})
	if err != nil {
		c.logger.Debug(fmt.Sprintf("portal: %s %s: %v", method, path, err))
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	c.logger.Debug(fmt.Sprintf("portal: %s %s -> %d", method, path, res.StatusCode))

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		snippet := strings.TrimSpace(res.Body)
		if len(snippet) > maxErrBody {
			snippet = snippet[:maxErrBody]
		}
		return res, &StatusError{Code: res.StatusCode, Body: snippet}
	}
	return res, nil
}

func (c *Client) send(ctx context.Context, req rest.Request) (*rest.Response, error) {
	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return nil, err
	}
	res, err := c.rest.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return rest.BuildResponse(res)
}

func (c *Client) headers() map[string]string {
	h := map[string]string{
		"Accept":       "application/json, text/plain, */*",
		"Content-Type": "application/json;charset=UTF-8",
		"Origin":       c.baseURL,
		"Referer":      c.baseURL + refererPath,
		"User-Agent":   c.userAgent,
	}
	if c.session.csrf != "" {
		h[csrfHeaderName] = c.session.csrf
	}
	return h
}

// findCSRF looks for the CSRF cookie in the login response first, then in the jar.
func (c *Client) findCSRF(res *rest.Response) string {
	for _, ck := range (&http.Response{Header: res.Headers}).Cookies() {
		if strings.EqualFold(ck.Name, csrfCookieName) && ck.Value != "" {
			return ck.Value
		}
	}
	u, err := url.Parse(c.baseURL + loginPath)
	if err != nil {
		return ""
	}
	for _, ck := range c.session.jar.Cookies(u) {
		if strings.EqualFold(ck.Name, csrfCookieName) && ck.Value != "" {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) resetSession() {
	c.session = newSession()
	c.http.Jar = c.session.jar
}
