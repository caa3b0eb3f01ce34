package message

import (
	"bytes"
	"html"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"github.com/trezcool/mashovsend/core/student"
)

const DefaultSubject = "פרטי התחברות למערכת. נא לא למחוק ולא להעביר הלאה!"

const DefaultBody = `<div style="font-weight:bold">שלום {first} {last},&nbsp;</div>` +
	`<div>&nbsp;</div>` +
	`<div>להלן פרטי ההתחברות שלך:</div>` +
	`<div>שם משתמש: <p style="direction:ltr;text-align:right;font-weight:bold">{username_with_domain}</p></div>` +
	`<div>סיסמה: <p style="direction:ltr;text-align:right;font-weight:bold">{password}</p></div>` +
	`<div>&nbsp;</div>` +
	`<div>אנא שמור/י על הפרטים בסוד ואל תעביר/י אותם לאחרים.</div>` +
	`<div>ניתן לבצע איפוס סיסמא דרך הקישור <a href="http://bit.ly/forgotPass">http://bit.ly/forgotPass</a>&nbsp;.</div>` +
	`<div>&nbsp;</div>` +
	`<div>אם יש לך שאלות או בעיות, פנה/י למורה או למזכירות בית הספר.&nbsp;</div>` +
	`<div>בהצלחה,</div>` +
	`<div>צוות בית הספר</div>`

// mdRenderer renders markdown bodies. Raw HTML in the markdown source is omitted.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// CompositionError reports a template that cannot be rendered for one record.
type CompositionError struct {
	Part string // "subject" | "body"
	Err  error
}

func (e *CompositionError) Error() string {
	return "composing " + e.Part + ": " + e.Err.Error()
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

// Composer renders one subject and one body template against student records.
type Composer struct {
	subject *Template
	body    *Template
}

// NewComposer parses both templates once. Empty templates fall back to DefaultSubject and DefaultBody.
// With markdown set, the body is converted to HTML before placeholders are substituted.
func NewComposer(subject, body string, markdown bool) (*Composer, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if body == "" {
		body = DefaultBody
	} else if markdown {
		var buf bytes.Buffer
		if err := mdRenderer.Convert([]byte(body), &buf); err != nil {
			return nil, &CompositionError{Part: "body", Err: errors.Wrap(err, "rendering markdown")}
		}
		body = buf.String()
	}

	subj, err := Parse(subject)
	if err != nil {
		return nil, &CompositionError{Part: "subject", Err: err}
	}
	bd, err := Parse(body)
	if err != nil {
		return nil, &CompositionError{Part: "body", Err: err}
	}
	return &Composer{subject: subj, body: bd}, nil
}

// Compose renders the subject and body for rec. Body values are HTML-escaped.
func (c *Composer) Compose(rec student.Record) (string, string, error) {
	values := Fields(rec)
	subject, err := c.subject.Execute(values, nil)
	if err != nil {
		return "", "", &CompositionError{Part: "subject", Err: err}
	}
	body, err := c.body.Execute(values, html.EscapeString)
	if err != nil {
		return "", "", &CompositionError{Part: "body", Err: err}
	}
	return subject, body, nil
}

// Compose renders subjectTmpl and bodyTmpl for rec in one go.
func Compose(rec student.Record, subjectTmpl, bodyTmpl string) (string, string, error) {
	c, err := NewComposer(subjectTmpl, bodyTmpl, false)
	if err != nil {
		return "", "", err
	}
	return c.Compose(rec)
}

// Validate checks both templates' syntax without a record.
func Validate(subjectTmpl, bodyTmpl string, markdown bool) error {
	_, err := NewComposer(subjectTmpl, bodyTmpl, markdown)
	return err
}

// Fields returns the placeholder values of rec: every input column by header name,
// then the logical fields, which win on a name clash.
func Fields(rec student.Record) map[string]string {
	values := make(map[string]string, len(rec.Fields)+7)
	for k, v := range rec.Fields {
		values[k] = v
	}
	values["id"] = rec.ID
	values["first"] = rec.First
	values["last"] = rec.Last
	values["display_name"] = rec.DisplayName()
	values["username"] = rec.Username
	values["password"] = rec.Password
	values["username_with_domain"] = ""
	if rec.UsernameWithDomain != "" {
		values["username_with_domain"] = "(" + rec.UsernameWithDomain + ")"
	}
	return values
}
