package diff

import "strings"

// Summarize walks unified-diff text and returns one FileSummary per file
// section, in the order the files appear.
func Summarize(text string) []FileSummary {
	var out []FileSummary
	cur := -1
	inHunk := false

	for _, line := range splitLines(text) {
		switch {
		case strings.HasPrefix(line, "diff --git"):
			inHunk = false
			m := fileHeaderRe.FindStringSubmatch(line)
			if m == nil {
				cur = -1
				continue
			}
			out = append(out, FileSummary{Path: m[2], Status: StatusModified})
			cur = len(out) - 1
			continue
		case cur < 0:
			continue
		case strings.HasPrefix(line, "@@"):
			if _, _, ok := parseHunkHeader(line); ok {
				inHunk = true
			}
			continue
		case isMetadata(line):
			continue
		}

		if !inHunk {
			switch {
			case strings.HasPrefix(line, "new file mode"):
				out[cur].Status = StatusAdded
			case strings.HasPrefix(line, "deleted file mode"):
				out[cur].Status = StatusDeleted
			case strings.HasPrefix(line, "rename from"), strings.HasPrefix(line, "similarity index"):
				out[cur].Status = StatusRenamed
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "+"):
			out[cur].Additions++
		case strings.HasPrefix(line, "-"):
			out[cur].Deletions++
		}
	}

	return out
}

// MergeSummaries combines summaries from several diffs (typically staged and
// unstaged) into one entry per path. Counts are summed. A path keeps the
// first status that is not "modified", since an added, deleted or renamed
// file is more informative than a plain modification.
func MergeSummaries(sets ...[]FileSummary) []FileSummary {
	merged := []FileSummary{}
	index := make(map[string]int)

	for _, set := range sets {
		for _, fs := range set {
			i, ok := index[fs.Path]
			if !ok {
				index[fs.Path] = len(merged)
				merged = append(merged, fs)
				continue
			}
			merged[i].Additions += fs.Additions
			merged[i].Deletions += fs.Deletions
			if merged[i].Status == StatusModified && fs.Status != StatusModified {
				merged[i].Status = fs.Status
			}
		}
	}

	return merged
}
