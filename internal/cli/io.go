package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// IO handles terminal output with optional styling. It satisfies the
// push pipeline's UI interface.
type IO struct {
	out    io.Writer
	errOut io.Writer
	styled bool

	heading lipgloss.Style
	fail    lipgloss.Style
}

// NewIO creates an IO for the given color mode (auto, always or never).
// always/never override lipgloss's terminal detection process-wide.
func NewIO(out, errOut io.Writer, color string) *IO {
	switch color {
	case "always":
		lipgloss.SetColorProfile(termenv.ANSI)
	case "never":
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	return &IO{
		out:     out,
		errOut:  errOut,
		styled:  color != "never",
		heading: lipgloss.NewStyle().Bold(true).Underline(true),
		fail:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
}

// Println writes a line to stdout.
func (o *IO) Println(a ...any) {
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout.
func (o *IO) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// Heading writes a styled section heading, preceded by a blank line.
func (o *IO) Heading(s string) {
	if o.styled {
		s = o.heading.Render(s)
	}

	_, _ = fmt.Fprintln(o.out)
	_, _ = fmt.Fprintln(o.out, s)
}

// Failf writes a highlighted fatal message to stderr.
func (o *IO) Failf(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if o.styled {
		msg = o.fail.Render(msg)
	}

	_, _ = fmt.Fprintln(o.errOut, msg)
}
