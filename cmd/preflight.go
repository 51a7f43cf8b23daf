package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fakeyudi/commit-guardian/internal/git"
)

// PreflightError is a check that failed before the review could start. It
// always exits with status 1; Guidance is printed after the error line.
type PreflightError struct {
	Msg      string
	Guidance string
	Err      error
}

func (e *PreflightError) Error() string {
	return e.Msg
}

func (e *PreflightError) Unwrap() error {
	return e.Err
}

// errCommitFailed marks an approval whose commit failed.
var errCommitFailed = errors.New("commit failed")

const messageUsage = `Usage: commit-guardian -m <commit-message>

Examples:
  commit-guardian -m "Add new feature"
  commit-guardian --message "Fix bug in login"
`

// preflight validates the message and the repository state.
func preflight(ctx context.Context, repo reviewRepo, message string) error {
	if strings.TrimSpace(message) == "" {
		return &PreflightError{Msg: "commit message is required", Guidance: messageUsage}
	}

	ok, err := repo.IsRepository(ctx)
	if err != nil {
		return fmt.Errorf("checking repository: %w", err)
	}
	if !ok {
		return &PreflightError{Msg: git.ErrNotRepository.Error(), Err: git.ErrNotRepository}
	}

	status, err := repo.Status(ctx)
	if err != nil {
		return err
	}
	if !status.HasChanges() {
		return &PreflightError{Msg: "no staged changes found", Guidance: stagingGuidance(status)}
	}
	return nil
}

// stagingGuidance explains how to stage files individually.
func stagingGuidance(s git.Status) string {
	var b strings.Builder
	b.WriteString("You need to stage files before committing.\n")
	b.WriteString("Please use git add to stage specific files:\n\n")

	if len(s.Untracked) > 0 {
		b.WriteString("Untracked files that can be added:\n")
		for _, f := range s.Untracked {
			fmt.Fprintf(&b, "   git add %s\n", f)
		}
		b.WriteString("\n")
	}
	if len(s.Modified) > 0 {
		b.WriteString("Modified files that can be staged:\n")
		for _, f := range s.Modified {
			fmt.Fprintf(&b, "   git add %s\n", f)
		}
		b.WriteString("\n")
	}

	b.WriteString("Avoid using:\n")
	b.WriteString("   git add .     (adds all files)\n")
	b.WriteString("   git add -A    (adds all files)\n\n")
	b.WriteString("Instead, add files individually for better control.\n")
	return b.String()
}
