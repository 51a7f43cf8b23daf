// Package console writes the CLI's human-facing lines. Styling is applied
// only when the destination is a terminal.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"

	"github.com/fakeyudi/commit-guardian/internal/diff"
	"github.com/fakeyudi/commit-guardian/internal/review"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	urlStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	addStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	delStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Printer writes status lines to Out and warnings or errors to Err.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Color bool
}

// New returns a Printer that styles its output when out is a terminal.
func New(out, errs io.Writer) *Printer {
	return &Printer{Out: out, Err: errs, Color: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.Color {
		return text
	}
	return s.Render(text)
}

// Banner prints the startup heading.
func (p *Printer) Banner(version string) {
	fmt.Fprintln(p.Out, p.style(titleStyle, "Commit Guardian "+version))
	fmt.Fprintln(p.Out, p.style(dimStyle, "Review your changes in the browser before they are committed."))
	fmt.Fprintln(p.Out)
}

// Changes prints one line per changed file followed by the totals.
func (p *Printer) Changes(files []diff.FileSummary, stats review.Stats) {
	fmt.Fprintln(p.Out, "Detected changes:")
	for _, f := range files {
		fmt.Fprintf(p.Out, "  %-9s %s %s %s\n", f.Status, f.Path,
			p.style(addStyle, fmt.Sprintf("+%d", f.Additions)),
			p.style(delStyle, fmt.Sprintf("-%d", f.Deletions)))
	}
	fmt.Fprintf(p.Out, "  %d file(s), %s, %s\n\n", stats.TotalFiles,
		p.style(addStyle, fmt.Sprintf("%d addition(s)", stats.TotalAdditions)),
		p.style(delStyle, fmt.Sprintf("%d deletion(s)", stats.TotalDeletions)))
}

// URL prints where the review page is served.
func (p *Printer) URL(url string) {
	fmt.Fprintf(p.Out, "Review server running at %s\n", p.style(urlStyle, url))
	fmt.Fprintln(p.Out, p.style(dimStyle, "Waiting for your decision in the browser. Press Ctrl+C to cancel."))
}

// Println prints a plain status line.
func (p *Printer) Println(a ...any) {
	fmt.Fprintln(p.Out, a...)
}

// Success prints a highlighted status line.
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.Out, p.style(successStyle, msg))
}

// Warnf prints a "warning: " line to Err.
func (p *Printer) Warnf(format string, a ...any) {
	fmt.Fprintln(p.Err, p.style(warnStyle, "warning: "+fmt.Sprintf(format, a...)))
}

// Errorf prints an "Error: " line to Err.
func (p *Printer) Errorf(format string, a ...any) {
	fmt.Fprintln(p.Err, p.style(errorStyle, "Error: "+fmt.Sprintf(format, a...)))
}
