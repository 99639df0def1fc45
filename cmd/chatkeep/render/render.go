// Package render prints conversations for humans. Output to a terminal is
// styled; anything else gets plain, wrapped text.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"

	"github.com/papercomputeco/chatkeep/pkg/llm"
)

const defaultWidth = 80

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle     = lipgloss.NewStyle().Faint(true)
)

// Printer writes conversations to w.
type Printer struct {
	w     io.Writer
	color bool
	width int
}

// New returns a Printer that styles its output when w is a terminal.
func New(w io.Writer) *Printer {
	p := &Printer{w: w, width: defaultWidth}

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.color = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			p.width = width
		}
	}
	return p
}

// Conversation prints every turn, oldest first.
func (p *Printer) Conversation(conv llm.Conversation) error {
	if len(conv) == 0 {
		p.Muted("No conversation yet.")
		return nil
	}

	for i, t := range conv {
		if i > 0 {
			_, _ = fmt.Fprintln(p.w)
		}
		if err := p.Turn(t); err != nil {
			return err
		}
	}
	return nil
}

// Turn prints one labelled turn.
func (p *Printer) Turn(t llm.Turn) error {
	label := string(t.Role) + ":"
	if p.color {
		style := userStyle
		if t.Role == llm.RoleAssistant {
			style = assistantStyle
		}
		label = style.Render(label)
	}
	_, _ = fmt.Fprintln(p.w, label)

	if t.Role == llm.RoleAssistant {
		return p.Markdown(t.Content)
	}
	_, _ = fmt.Fprintln(p.w, p.wrap(t.Content))
	return nil
}

// Markdown prints text, rendering it as markdown on a terminal.
func (p *Printer) Markdown(text string) error {
	if !p.color {
		_, _ = fmt.Fprintln(p.w, p.wrap(text))
		return nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(p.width-4),
	)
	if err != nil {
		return fmt.Errorf("could not create markdown renderer: %w", err)
	}

	out, err := r.Render(text)
	if err != nil {
		return fmt.Errorf("could not render markdown: %w", err)
	}
	_, _ = fmt.Fprint(p.w, out)
	return nil
}

// Error prints an error line.
func (p *Printer) Error(msg string) {
	if p.color {
		msg = errorStyle.Render(msg)
	}
	_, _ = fmt.Fprintln(p.w, msg)
}

// Muted prints a de-emphasized line.
func (p *Printer) Muted(msg string) {
	if p.color {
		msg = mutedStyle.Render(msg)
	}
	_, _ = fmt.Fprintln(p.w, msg)
}

func (p *Printer) wrap(text string) string {
	return strings.TrimRight(ansi.Wordwrap(text, p.width, ""), "\n")
}
