// Package console renders fatal diagnostics on the process's diagnostic stream.
package console

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// FatalPrefix starts every startup failure line.
const FatalPrefix = "Fatal error during initialization: "

var fatalStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FF6B6B"))

// Console writes diagnostics to w. Output is styled only on a terminal.
type Console struct {
	w      io.Writer
	styled bool
}

// New creates a console on w.
func New(w io.Writer) *Console {
	return &Console{w: w, styled: IsTerminal(w) && os.Getenv("NO_COLOR") == ""}
}

// Plain creates a console that never styles its output.
func Plain(w io.Writer) *Console {
	return &Console{w: w}
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Write passes p through unchanged.
func (c *Console) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

// Fatal writes the startup failure line for msg.
func (c *Console) Fatal(msg string) {
	prefix := FatalPrefix
	if c.styled {
		prefix = fatalStyle.Render(FatalPrefix[:len(FatalPrefix)-1]) + " "
	}
	_, _ = io.WriteString(c.w, prefix+msg+"\n")
}
