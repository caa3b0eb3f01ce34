package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/trezcool/mashovsend/core/run"
)

type printer struct {
	out io.Writer

	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	muted lipgloss.Style
	bold  lipgloss.Style
}

func newPrinter(out io.Writer) printer {
	r := lipgloss.NewRenderer(out)
	return printer{
		out:   out,
		ok:    r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("3")),
		fail:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted: r.NewStyle().Foreground(lipgloss.Color("8")),
		bold:  r.NewStyle().Bold(true),
	}
}

func (p printer) failure(s string) string {
	return p.fail.Render(s)
}

func (p printer) println(style lipgloss.Style, format string, args ...interface{}) {
	fmt.Fprintln(p.out, style.Render(fmt.Sprintf(format, args...)))
}

// event prints the log lines of a run; the other events are for live consumers.
func (p printer) event(ev run.Event) {
	if ev.Kind != run.EventLog {
		return
	}
	switch msg := ev.Message; {
	case strings.HasPrefix(msg, "[OK]"), strings.HasPrefix(msg, "[DRY RUN]"):
		p.println(p.ok, "%s", msg)
	case strings.HasPrefix(msg, "[SKIP]"):
		p.println(p.warn, "%s", msg)
	case strings.HasPrefix(msg, "[FAIL]"):
		p.println(p.fail, "%s", msg)
	default:
		p.println(p.muted, "%s", msg)
	}
}

func (p printer) summary(s run.Summary) {
	style := p.ok
	if s.FailureCount > 0 || s.Stopped {
		style = p.warn
	}
	p.println(p.bold, "Done.")
	p.println(style, "success=%d, failed=%d", s.SuccessCount, s.FailureCount)
	p.println(p.muted, "%s", s.String())
}
