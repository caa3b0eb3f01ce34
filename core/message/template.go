package message

import (
	"strings"

	"github.com/pkg/errors"
)

// Template is a text with `{name}` placeholders; `{{` and `}}` stand for literal braces.
type Template struct {
	text string
	segs []segment
}

type segment struct {
	text    string
	isField bool
}

// Parse compiles text into a Template.
func Parse(text string) (*Template, error) {
	tmpl := &Template{text: text}
	var lit strings.Builder

	flushLit := func() {
		if lit.Len() > 0 {
			tmpl.segs = append(tmpl.segs, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexAny(text[i+1:], "{}")
			if end < 0 || text[i+1+end] != '}' {
				return nil, errors.Errorf("unclosed placeholder at offset %d", i)
			}
			name := strings.TrimSpace(text[i+1 : i+1+end])
			if name == "" {
				return nil, errors.Errorf("empty placeholder at offset %d", i)
			}
			flushLit()
			tmpl.segs = append(tmpl.segs, segment{text: name, isField: true})
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, errors.Errorf("single '}' at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	flushLit()
	return tmpl, nil
}

// Fields lists the placeholder names used by the template, in order of appearance.
func (t *Template) Fields() []string {
	var names []string
	seen := make(map[string]bool)
	for _, seg := range t.segs {
		if seg.isField && !seen[seg.text] {
			seen[seg.text] = true
			names = append(names, seg.text)
		}
	}
	return names
}

// Execute substitutes every placeholder with its value, passed through escape when not nil.
// It returns an *UnknownFieldError naming the first placeholder absent from values.
func (t *Template) Execute(values map[string]string, escape func(string) string) (string, error) {
	var b strings.Builder
	b.Grow(len(t.text))
	for _, seg := range t.segs {
		if !seg.isField {
			b.WriteString(seg.text)
			continue
		}
		v, ok := values[seg.text]
		if !ok {
			return "", &UnknownFieldError{Field: seg.text}
		}
		if escape != nil {
			v = escape(v)
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

func (t *Template) String() string {
	return t.text
}

type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return "unknown placeholder {" + e.Field + "}"
}
