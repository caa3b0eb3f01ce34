// Package testutil provides a fake portal server shared by the package tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	Username    = "teacher"
	Password    = "secret"
	Year        = "2024"
	Semel       = "123456"
	DisplayName = "מורה בודק"

	sessionCookie = "MashovSessionID"
)

// Student is a student known to the fake portal.
type Student struct {
	GUID        string `json:"studentGuid,omitempty"`
	ClassCode   string `json:"classCode"`
	ClassNum    int    `json:"classNum"`
	FamilyName  string `json:"familyName"`
	PrivateName string `json:"privateName"`
}

// SentMessage is a message payload received by the fake portal.
type SentMessage struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Recipients []struct {
		TargetType string `json:"targetType"`
		ValueType  string `json:"valueType"`
		Value      string `json:"value"`
	} `json:"recipients"`
	Send         bool   `json:"send"`
	SendViaEmail string `json:"sendViaEmail"`
	PreventReply string `json:"preventReply"`

	CSRF string `json:"-"` // X-Csrf-Token header of the request
}

// Portal is an httptest server speaking the portal's login, details, recipients and messages endpoints.
type Portal struct {
	*httptest.Server

	mu           sync.Mutex
	students     map[string]Student
	failLookup   map[string]int // id -> status
	failSend     map[string]int // recipient guid -> status
	sendBody     string
	logins       int
	lookups      []string
	lookupCSRF   []string
	sent         []SentMessage
	recipients   []map[string]interface{}
	csrfName     string
	rotateTokens bool
}

// NewPortal starts a fake portal, closed with the test.
func NewPortal(t *testing.T) *Portal {
	p := &Portal{
		students:     make(map[string]Student),
		failLookup:   make(map[string]int),
		failSend:     make(map[string]int),
		sendBody:     `{"messageId":"m-1"}`,
		csrfName:     "Csrf-Token",
		rotateTokens: true,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", p.login)
	mux.HandleFunc("/api/students/details/", p.details)
	mux.HandleFunc("/api/mail/recipients", p.listRecipients)
	mux.HandleFunc("/api/mail/messages", p.send)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

// AddStudent registers a student under a normalized id.
func (p *Portal) AddStudent(id string, st Student) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.students[id] = st
}

// FailLookup makes the details endpoint answer status for id.
func (p *Portal) FailLookup(id string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failLookup[id] = status
}

// FailSend makes the messages endpoint answer status for messages to guid.
func (p *Portal) FailSend(guid string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failSend[guid] = status
}

// SetSendResponse sets the body of successful send answers.
func (p *Portal) SetSendResponse(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendBody = body
}

// SetCSRFCookieName changes the case of the CSRF cookie name.
func (p *Portal) SetCSRFCookieName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.csrfName = name
}

func (p *Portal) SetRecipients(recipients []map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recipients = recipients
}

// Token returns the CSRF token issued by the n-th login (1-based).
func Token(n int) string {
	return "csrf-" + strconv.Itoa(n)
}

func (p *Portal) Logins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}

func (p *Portal) Lookups() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lookups...)
}

func (p *Portal) LookupCSRF() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lookupCSRF...)
}

func (p *Portal) Sent() []SentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SentMessage(nil), p.sent...)
}

func (p *Portal) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Year     string `json:"year"`
		Semel    string `json:"semel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if creds.Username != Username || creds.Password != Password || creds.Year != Year || creds.Semel != Semel {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"bad credentials"}`))
		return
	}
	p.logins++
	token := Token(1)
	if p.rotateTokens {
		token = Token(p.logins)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "session-" + strconv.Itoa(p.logins), Path: "/"})
	http.SetCookie(w, &http.Cookie{Name: p.csrfName, Value: token, Path: "/"})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"accessToken": map[string]interface{}{"displayName": DisplayName},
	})
}

func (p *Portal) authorized(r *http.Request) bool {
	ck, err := r.Cookie(sessionCookie)
	return err == nil && ck.Value != ""
}

func (p *Portal) details(w http.ResponseWriter, r *http.Request) {
	if !p.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/students/details/")

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lookups = append(p.lookups, id)
	p.lookupCSRF = append(p.lookupCSRF, r.Header.Get("X-Csrf-Token"))
	if status, ok := p.failLookup[id]; ok {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	st, ok := p.students[id]
	if !ok {
		_, _ = w.Write([]byte(`[]`))
		return
	}
	_ = json.NewEncoder(w).Encode([]map[string]interface{}{{"student": st}})
}

func (p *Portal) listRecipients(w http.ResponseWriter, r *http.Request) {
	if !p.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	recipients := p.recipients
	if recipients == nil {
		recipients = []map[string]interface{}{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(recipients)
}

func (p *Portal) send(w http.ResponseWriter, r *http.Request) {
	if !p.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var msg SentMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	msg.CSRF = r.Header.Get("X-Csrf-Token")

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rcpt := range msg.Recipients {
		if status, ok := p.failSend[rcpt.Value]; ok {
			w.WriteHeader(status)
			return
		}
	}
	p.sent = append(p.sent, msg)
	_, _ = w.Write([]byte(p.sendBody))
}
