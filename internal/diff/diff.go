// Package diff turns unified-diff text, as produced by `git diff`, into
// display lines and per-file summaries for the review UI.
package diff

// Kind identifies what a display line represents.
type Kind string

const (
	KindFile    Kind = "file"    // start of a file section
	KindHunk    Kind = "hunk"    // @@ header
	KindAdd     Kind = "add"     // line present only in the new version
	KindDel     Kind = "del"     // line present only in the old version
	KindContext Kind = "context" // unchanged line, or text outside any hunk
)

// Line is a single rendered row of a diff.
type Line struct {
	Kind Kind   `json:"type"`
	Text string `json:"content"`
	// OldLine and NewLine are nil for file and hunk rows and for text outside a hunk.
	OldLine *int   `json:"oldLineNumber,omitempty"`
	NewLine *int   `json:"newLineNumber,omitempty"`
	File    string `json:"file"`
}

// Status describes how a file changed.
type Status string

const (
	StatusAdded    Status = "added"
	StatusModified Status = "modified"
	StatusDeleted  Status = "deleted"
	StatusRenamed  Status = "renamed"
)

// FileSummary holds the per-file totals shown in the file list.
type FileSummary struct {
	Path      string `json:"path"`
	Status    Status `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}
