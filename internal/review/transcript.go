package review

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TranscriptRenderer serializes a Decision for whoever launched the review,
// typically a person at the terminal or an agent reading stdout.
type TranscriptRenderer interface {
	Render(d Decision) ([]byte, error)
}

// NewRenderer returns the renderer for format ("text" or "json").
func NewRenderer(format string) (TranscriptRenderer, error) {
	switch format {
	case "", "text":
		return &TextRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown transcript format %q (want text or json)", format)
	}
}

// JSONRenderer renders a Decision as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(d Decision) ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal decision: %w", err)
	}
	return append(data, '\n'), nil
}

// TextRenderer renders a Decision as plain lines with one comment per line
// in the form "file:line - text". The output depends only on the Decision.
type TextRenderer struct{}

func (r *TextRenderer) Render(d Decision) ([]byte, error) {
	var sb strings.Builder

	switch d.Verdict {
	case Approved:
		sb.WriteString("Changes approved\n")
		fmt.Fprintf(&sb, "Commit message: %s\n", d.Message)
	case Rejected:
		sb.WriteString("Changes rejected\n")
		if d.Reason != "" {
			fmt.Fprintf(&sb, "Reject reason: %s\n", indentContinuation(d.Reason))
		}
	default:
		return nil, fmt.Errorf("unknown verdict %q", d.Verdict)
	}

	if len(d.Comments) == 0 {
		sb.WriteString("No comments provided\n")
		return []byte(sb.String()), nil
	}

	fmt.Fprintf(&sb, "Comments (%d):\n", len(d.Comments))
	for _, c := range d.Comments {
		sb.WriteString(FormatComment(c))
		sb.WriteString("\n")
	}
	return []byte(sb.String()), nil
}

// FormatComment renders a single comment as "file:line - text". Multi-line
// text is kept on continuation lines indented by two spaces.
func FormatComment(c Comment) string {
	return fmt.Sprintf("%s:%d - %s", c.File, c.Line, indentContinuation(c.Text))
}

func indentContinuation(s string) string {
	s = strings.TrimRight(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	return strings.ReplaceAll(s, "\n", "\n  ")
}
