package console

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Renderer prints entries and status lines, colouring by severity.
type Renderer struct {
	color   bool
	err     lipgloss.Style
	warn    lipgloss.Style
	stamp   lipgloss.Style
	up      lipgloss.Style
	down    lipgloss.Style
	urlText lipgloss.Style
}

func NewRenderer(color bool) *Renderer {
	return &Renderer{
		color:   color,
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		stamp:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		up:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		down:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		urlText: lipgloss.NewStyle().Underline(true),
	}
}

func (r *Renderer) paint(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

// Line renders one entry.
func (r *Renderer) Line(e Entry) string {
	stamp := r.paint(r.stamp, "["+e.Time.Format("15:04:05")+"]")
	text := e.Text
	switch e.Severity {
	case SevError:
		text = r.paint(r.err, text)
	case SevWarn:
		text = r.paint(r.warn, text)
	}
	return stamp + " " + text
}

// Write prints entries one per line.
func (r *Renderer) Write(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, r.Line(e)); err != nil {
			return err
		}
	}
	return nil
}

// Status renders the one-line server state, with the URL while running.
func (r *Renderer) Status(running bool, port int) string {
	if !running {
		return r.paint(r.down, "○ stopped")
	}
	url := fmt.Sprintf("http://localhost:%d/", port)
	return r.paint(r.up, "● running") + "  " + r.paint(r.urlText, url)
}
