package diff

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	fileHeaderRe = regexp.MustCompile(`^diff --git a/(.*?) b/(.*)$`)
	hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,\d+)? \+(\d+)(?:,\d+)? @@`)
)

// extendedHeaders are the git header lines that may appear between
// "diff --git" and the first hunk. They carry no displayable content.
var extendedHeaders = []string{
	"new file mode",
	"deleted file mode",
	"old mode",
	"new mode",
	"similarity index",
	"dissimilarity index",
	"rename from",
	"rename to",
	"copy from",
	"copy to",
}

// Parse converts unified-diff text into display lines.
//
// Malformed "diff --git" and "@@" headers are dropped without aborting the
// parse, so a partially understood diff is still shown. Parse never fails and
// always returns a non-nil slice.
func Parse(text string) []Line {
	raw := splitLines(text)
	out := make([]Line, 0, len(raw))

	var (
		file   string
		oldNum int
		newNum int
		inHunk bool
	)

	for _, line := range raw {
		switch {
		case strings.HasPrefix(line, "diff --git"):
			inHunk = false
			m := fileHeaderRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			file = m[2]
			out = append(out, Line{Kind: KindFile, Text: file, File: file})
			continue

		case strings.HasPrefix(line, "@@"):
			oldStart, newStart, ok := parseHunkHeader(line)
			if !ok {
				continue
			}
			oldNum, newNum = oldStart-1, newStart-1
			inHunk = true
			out = append(out, Line{Kind: KindHunk, Text: line, File: file})
			continue

		case isMetadata(line):
			continue
		}

		if !inHunk {
			if isExtendedHeader(line) {
				continue
			}
			out = append(out, Line{Kind: KindContext, Text: line, File: file})
			continue
		}

		switch {
		case strings.HasPrefix(line, "+"):
			newNum++
			out = append(out, Line{Kind: KindAdd, Text: line[1:], NewLine: intPtr(newNum), File: file})
		case strings.HasPrefix(line, "-"):
			oldNum++
			out = append(out, Line{Kind: KindDel, Text: line[1:], OldLine: intPtr(oldNum), File: file})
		case strings.HasPrefix(line, `\`):
			// "\ No newline at end of file" annotates the previous line.
			out = append(out, Line{Kind: KindContext, Text: line, File: file})
		default:
			oldNum++
			newNum++
			text := ""
			if line != "" {
				text = line[1:]
			}
			out = append(out, Line{
				Kind:    KindContext,
				Text:    text,
				OldLine: intPtr(oldNum),
				NewLine: intPtr(newNum),
				File:    file,
			})
		}
	}

	return out
}

// splitLines splits text on newlines. A trailing newline terminates the last
// line rather than starting an empty one, and CRLF endings are accepted.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func parseHunkHeader(line string) (oldStart, newStart int, ok bool) {
	m := hunkHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	oldStart, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	newStart, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return oldStart, newStart, true
}

func isMetadata(line string) bool {
	return strings.HasPrefix(line, "index ") ||
		strings.HasPrefix(line, "+++") ||
		strings.HasPrefix(line, "---")
}

func isExtendedHeader(line string) bool {
	for _, h := range extendedHeaders {
		if strings.HasPrefix(line, h) {
			return true
		}
	}
	return false
}

func intPtr(n int) *int {
	return &n
}
