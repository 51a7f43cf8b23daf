package review

import (
	"context"
	"fmt"

	"github.com/fakeyudi/commit-guardian/internal/diff"
)

// DiffSource supplies raw unified-diff text. *git.Repo satisfies it.
type DiffSource interface {
	Diff(ctx context.Context, staged bool) (string, error)
}

// TakeSnapshot reads the staged and unstaged diffs once and parses them for display.
func TakeSnapshot(ctx context.Context, src DiffSource) (*Snapshot, error) {
	staged, err := src.Diff(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("staged diff: %w", err)
	}
	unstaged, err := src.Diff(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("unstaged diff: %w", err)
	}
	return NewSnapshot(staged, unstaged), nil
}

// NewSnapshot builds a Snapshot from already-captured diff text.
func NewSnapshot(staged, unstaged string) *Snapshot {
	files := diff.MergeSummaries(diff.Summarize(staged), diff.Summarize(unstaged))

	stats := Stats{TotalFiles: len(files)}
	for _, f := range files {
		stats.TotalAdditions += f.Additions
		stats.TotalDeletions += f.Deletions
	}

	return &Snapshot{
		HasChanges:    staged != "" || unstaged != "",
		Staged:        staged,
		Unstaged:      unstaged,
		StagedLines:   diff.Parse(staged),
		UnstagedLines: diff.Parse(unstaged),
		Files:         files,
		Stats:         stats,
	}
}
