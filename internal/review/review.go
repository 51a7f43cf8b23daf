// Package review holds the data exchanged during a review session: the diff
// snapshot shown to the reviewer, their line comments, and the final decision.
package review

import (
	"github.com/google/uuid"

	"github.com/fakeyudi/commit-guardian/internal/diff"
)

// Comment is a reviewer note attached to one line of one file.
type Comment struct {
	ID        string `json:"id"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"` // unix milliseconds, set by the browser
}

// AssignIDs gives every comment without an ID a fresh random UUID.
func AssignIDs(comments []Comment) {
	for i := range comments {
		if comments[i].ID == "" {
			comments[i].ID = uuid.NewString()
		}
	}
}

// Verdict is the outcome chosen by the reviewer.
type Verdict string

const (
	Approved Verdict = "approved"
	Rejected Verdict = "rejected"
)

// Decision is the terminal action of a session. Message is set for
// approvals, Reason for rejections.
type Decision struct {
	Verdict  Verdict   `json:"verdict"`
	Message  string    `json:"message,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Comments []Comment `json:"comments"`
}

// Approve builds an approval decision.
func Approve(message string, comments []Comment) Decision {
	return Decision{Verdict: Approved, Message: message, Comments: nonNil(comments)}
}

// Reject builds a rejection decision.
func Reject(reason string, comments []Comment) Decision {
	return Decision{Verdict: Rejected, Reason: reason, Comments: nonNil(comments)}
}

func nonNil(comments []Comment) []Comment {
	if comments == nil {
		return []Comment{}
	}
	return comments
}

// Stats aggregates the file summaries of a snapshot.
type Stats struct {
	TotalFiles     int `json:"totalFiles"`
	TotalAdditions int `json:"totalAdditions"`
	TotalDeletions int `json:"totalDeletions"`
}

// Snapshot is the diff state captured once at session start. It is never
// refreshed while the session runs.
type Snapshot struct {
	HasChanges    bool               `json:"hasChanges"`
	Staged        string             `json:"staged,omitempty"`
	Unstaged      string             `json:"unstaged,omitempty"`
	StagedLines   []diff.Line        `json:"stagedLines"`
	UnstagedLines []diff.Line        `json:"unstagedLines"`
	Files         []diff.FileSummary `json:"files"`
	Stats         Stats              `json:"stats"`
}
