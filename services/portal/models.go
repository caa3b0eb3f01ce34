package portal

import (
	"fmt"
	"strconv"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mashovsend/core"
)

// Credentials identify one portal account for one academic year and school (semel).
type Credentials struct {
	Username string `json:"username" validate:"required,notblank"`
	Password string `json:"password" validate:"required"`
	Year     string `json:"year" validate:"required,acadyear"`
	Semel    string `json:"semel" validate:"required,notblank"`
}

func (c *Credentials) Validate(validate *validator.Validate, translator ut.Translator) error {
	c.Username = core.CleanString(c.Username)
	c.Year = core.CleanString(c.Year)
	c.Semel = core.CleanString(c.Semel)

	if err := validate.Struct(c); err != nil {
		return core.TranslateValidationErrors(err, translator)
	}
	return nil
}

// AccountInfo is the portal's answer to a successful login.
type AccountInfo struct {
	DisplayName string
	Raw         map[string]interface{}
}

func newAccountInfo(raw map[string]interface{}) AccountInfo {
	info := AccountInfo{Raw: raw}
	if tok, ok := raw["accessToken"].(map[string]interface{}); ok {
		info.DisplayName = str(tok["displayName"])
	}
	return info
}

// Recipient is a student resolved against the portal.
type Recipient struct {
	ID          string // portal studentGuid; may be empty
	ClassCode   string
	ClassNum    string
	FamilyName  string
	PrivateName string
	Raw         map[string]interface{}
}

func newRecipient(raw map[string]interface{}) *Recipient {
	return &Recipient{
		ID:          strings.TrimSpace(str(raw["studentGuid"])),
		ClassCode:   str(raw["classCode"]),
		ClassNum:    str(raw["classNum"]),
		FamilyName:  str(raw["familyName"]),
		PrivateName: str(raw["privateName"]),
		Raw:         raw,
	}
}

// Label renders the recipient the way the portal's address book does.
func (r Recipient) Label() string {
	return fmt.Sprintf("כיתה/%s/%s/%s %s", r.ClassCode, r.ClassNum, r.FamilyName, r.PrivateName)
}

// Message is one portal mail sent to one or more recipients.
type Message struct {
	Subject      string
	Body         string
	RecipientIDs []string
	SendViaEmail bool
}

// Ack is the portal's acknowledgement of a sent message.
type Ack struct {
	Raw map[string]interface{}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Year     string `json:"year"`
	Semel    string `json:"semel"`
}

type recipientTarget struct {
	TargetType string `json:"targetType"`
	ValueType  string `json:"valueType"`
	Value      string `json:"value"`
}

type sendRequest struct {
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	Recipients   []recipientTarget `json:"recipients"`
	Send         bool              `json:"send"`
	SendViaEmail string            `json:"sendViaEmail"`
	PreventReply string            `json:"preventReply"`
}

func newSendRequest(msg Message) sendRequest {
	targets := make([]recipientTarget, 0, len(msg.RecipientIDs))
	for _, id := range msg.RecipientIDs {
		targets = append(targets, recipientTarget{TargetType: "User", ValueType: "User", Value: id})
	}
	return sendRequest{
		Subject:      msg.Subject,
		Body:         msg.Body,
		Recipients:   targets,
		Send:         true,
		SendViaEmail: strconv.FormatBool(msg.SendViaEmail),
		PreventReply: "true",
	}
}

func str(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
