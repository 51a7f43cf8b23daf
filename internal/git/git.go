// Package git wraps the git command-line tool with the handful of operations
// a review session needs: repository detection, status, diff and commit.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotRepository is returned by callers that require a working tree when
// the directory is not inside one.
var ErrNotRepository = errors.New("not a git repository")

// Runner executes a git command in dir and returns its standard output.
// This abstraction allows mocking in tests.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

// CommandError describes a git invocation that exited unsuccessfully.
type CommandError struct {
	Args   []string
	Stdout string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(e.Stdout)
	}
	if detail == "" {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), detail)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Status lists changed paths in the working tree, grouped the way the
// preflight check needs them.
type Status struct {
	Staged    []string
	Modified  []string
	Untracked []string
}

// HasChanges reports whether anything is staged or modified. Untracked files
// alone do not count: they cannot be committed without staging.
func (s Status) HasChanges() bool {
	return len(s.Staged) > 0 || len(s.Modified) > 0
}

// Repo is a git working tree rooted at (or containing) Dir.
type Repo struct {
	Dir    string
	Runner Runner // if nil, uses the real git subprocess
}

// defaultRunner runs git as a real subprocess.
func defaultRunner(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), &CommandError{
			Args:   args,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.String(), nil
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	runner := r.Runner
	if runner == nil {
		runner = defaultRunner
	}
	return runner(ctx, r.Dir, args...)
}

// IsRepository reports whether Dir is inside a git working tree. A missing
// git binary or any failure other than git's "not a repository" exit code is
// returned as an error.
func (r *Repo) IsRepository(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		if isExitCode128(err) {
			return false, nil
		}
		return false, err
	}
	return strings.TrimSpace(out) == "true", nil
}

// Status parses `git status --porcelain` into staged, modified and untracked paths.
func (r *Repo) Status(ctx context.Context) (Status, error) {
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return Status{}, fmt.Errorf("reading status: %w", err)
	}
	return parseStatus(out), nil
}

// Diff returns the unified diff of the index against HEAD when staged is
// true, or of the working tree against the index otherwise.
func (r *Repo) Diff(ctx context.Context, staged bool) (string, error) {
	args := []string{"diff"}
	if staged {
		args = append(args, "--cached")
	}
	out, err := r.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("reading diff: %w", err)
	}
	return out, nil
}

// Commit records the staged changes with message. Failures carry git's own
// explanation (for example "nothing to commit") via *CommandError.
func (r *Repo) Commit(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("commit message cannot be empty")
	}
	_, err := r.run(ctx, "commit", "-m", message)
	return err
}

// isExitCode128 reports whether err wraps an *exec.ExitError with exit code 128.
func isExitCode128(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == 128
	}
	return false
}

// parseStatus splits porcelain v1 output. The first column is the index
// state and the second the working-tree state; "??" marks untracked files.
func parseStatus(output string) Status {
	var s Status
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		x, y, path := line[0], line[1], line[3:]
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+len(" -> "):]
		}

		if x == '?' && y == '?' {
			s.Untracked = append(s.Untracked, path)
			continue
		}
		if x != ' ' && x != '!' {
			s.Staged = append(s.Staged, path)
		}
		if y != ' ' && y != '!' {
			s.Modified = append(s.Modified, path)
		}
	}
	return s
}
