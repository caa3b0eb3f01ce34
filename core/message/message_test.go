package message

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mashovsend/core/student"
)

func record() student.Record {
	return student.Record{
		RawID:    "12345678.0",
		ID:       "012345678",
		First:    "דנה",
		Last:     "לוי",
		Username: "dana",
		Password: "A<b>&1",
		Fields:   map[string]string{"כיתה": "ט2", "first": "shadowed"},
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		fields  []string
		wantErr bool
	}{
		{"plain", "hello", nil, false},
		{"fields", "{first} {last} {first}", []string{"first", "last"}, false},
		{"escaped braces", "{{literal}} {first}", []string{"first"}, false},
		{"unclosed", "hi {first", nil, true},
		{"empty placeholder", "hi {}", nil, true},
		{"stray close", "hi }", nil, true},
		{"nested open", "hi {a{b}", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.fields, tmpl.Fields())
			assert.Equal(t, tt.text, tmpl.String())
		})
	}
}

func TestCompose(t *testing.T) {
	subject, body, err := Compose(record(), "שלום {first} {{id}}", "<p>{display_name} {כיתה} {password}</p>{username_with_domain}")
	require.NoError(t, err)
	assert.Equal(t, "שלום דנה {id}", subject)
	assert.Equal(t, "<p>דנה לוי ט2 A&lt;b&gt;&amp;1</p>", body)
}

func TestCompose_SubjectIsNotEscaped(t *testing.T) {
	subject, _, err := Compose(record(), "{password}", "x")
	require.NoError(t, err)
	assert.Equal(t, "A<b>&1", subject)
}

func TestCompose_UsernameWithDomain(t *testing.T) {
	rec := record()
	rec.UsernameWithDomain = "dana@school"
	_, body, err := Compose(rec, "s", "{username_with_domain}")
	require.NoError(t, err)
	assert.Equal(t, "(dana@school)", body)
}

func TestCompose_Defaults(t *testing.T) {
	subject, body, err := Compose(record(), "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSubject, subject)
	assert.Contains(t, body, "שלום דנה לוי")
	assert.Contains(t, body, "A&lt;b&gt;&amp;1")
	assert.NotContains(t, body, "{")
}

func TestCompose_UnknownField(t *testing.T) {
	_, _, err := Compose(record(), "s", "hi {middleName}")
	var cErr *CompositionError
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, "body", cErr.Part)

	var fErr *UnknownFieldError
	require.True(t, errors.As(err, &fErr))
	assert.Equal(t, "middleName", fErr.Field)
}

func TestFields_LogicalFieldsWin(t *testing.T) {
	assert.Equal(t, "דנה", Fields(record())["first"])
}

func TestNewComposer_Markdown(t *testing.T) {
	c, err := NewComposer("s", "**{first}**\nline two", true)
	require.NoError(t, err)

	_, body, err := c.Compose(record())
	require.NoError(t, err)
	assert.Contains(t, body, "<strong>דנה</strong>")
	assert.Contains(t, body, "<br>")
}

func TestNewComposer_MarkdownOmitsRawHTML(t *testing.T) {
	c, err := NewComposer("s", "hello <span onclick=\"x()\">there</span> {first}", true)
	require.NoError(t, err)

	_, body, err := c.Compose(record())
	require.NoError(t, err)
	assert.NotContains(t, body, "<span")
	assert.Contains(t, body, "<!-- raw HTML omitted -->")
	assert.Contains(t, body, "there")
	assert.Contains(t, body, "דנה")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("", "", false))
	assert.NoError(t, Validate("{first}", "{anything}", false))

	err := Validate("{first", "", false)
	var cErr *CompositionError
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, "subject", cErr.Part)
}

func TestExport(t *testing.T) {
	c, err := NewComposer("hi {first}", "{password} {missing}", false)
	require.NoError(t, err)
	ok := record()
	ok.Fields = map[string]string{"missing": "m"}

	rows := c.ComposeAll([]student.Record{ok, record()})
	require.Len(t, rows, 2)
	assert.NoError(t, rows[0].Err)
	assert.Error(t, rows[1].Err)

	var buf bytes.Buffer
	require.NoError(t, WriteExport(&buf, rows))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(ExportHeader, ","), lines[0])
	assert.Equal(t, "דנה לוי,012345678,hi דנה,A&lt;b&gt;&amp;1 m", lines[1])
	assert.Equal(t, "דנה לוי,012345678,,", lines[2])
}
