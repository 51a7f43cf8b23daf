// Package watch reports edits to the working tree while a review is open.
package watch

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a repository's working tree, skipping .git and paths
// matched by the repository's .gitignore.
type Watcher struct {
	Dir            string
	IgnorePatterns []string
}

// Run watches w.Dir recursively until the first relevant change, which it
// reports to onChange before returning. It returns nil when ctx is cancelled
// first. Watcher errors after setup are ignored.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	patterns := w.loadIgnorePatterns()

	if err := filepath.WalkDir(w.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" || (path != w.Dir && w.isIgnored(path, patterns)) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) || w.inGitDir(event.Name) || w.isIgnored(event.Name, patterns) {
				continue
			}
			onChange(event.Name)
			return nil

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func relevant(e fsnotify.Event) bool {
	return e.Has(fsnotify.Write) || e.Has(fsnotify.Create) ||
		e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename)
}

func (w *Watcher) inGitDir(path string) bool {
	rel, err := filepath.Rel(w.Dir, path)
	if err != nil {
		return false
	}
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	return first == ".git"
}

// isIgnored reports whether path matches any of the given glob patterns,
// tried against the base name and the path relative to w.Dir.
func (w *Watcher) isIgnored(path string, patterns []string) bool {
	rel := path
	if r, err := filepath.Rel(w.Dir, path); err == nil {
		rel = filepath.ToSlash(r)
	}
	base := filepath.Base(path)

	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(strings.TrimPrefix(pattern, "/"), "/")
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// loadIgnorePatterns merges the configured patterns with the repository's
// .gitignore. A missing or unreadable .gitignore contributes nothing.
func (w *Watcher) loadIgnorePatterns() []string {
	patterns := append([]string(nil), w.IgnorePatterns...)
	extra, err := readPatternFile(filepath.Join(w.Dir, ".gitignore"))
	if err != nil {
		return patterns
	}
	return append(patterns, extra...)
}

// readPatternFile reads a gitignore-style file and returns non-empty,
// non-comment, non-negated lines.
func readPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}
