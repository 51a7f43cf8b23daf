package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all configurable commit-guardian settings. Pointer fields
// distinguish "not set in this file" from an explicit false.
type Config struct {
	Port   int    `toml:"port"`
	Host   string `toml:"host"`
	Format string `toml:"format"` // "text" | "json"
	Open   *bool  `toml:"open"`   // launch the browser automatically
	Copy   *bool  `toml:"copy"`   // copy the rejection transcript to the clipboard
	Watch  *bool  `toml:"watch"`  // warn when the working tree changes mid-review

	// Ignore lists extra glob patterns the watcher skips, on top of .gitignore.
	Ignore []string `toml:"ignore"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		Port:   3456,
		Host:   "localhost",
		Format: "text",
		Open:   Bool(true),
		Copy:   Bool(false),
		Watch:  Bool(false),
	}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// OpenBrowser reports whether the browser should be launched.
func (c Config) OpenBrowser() bool { return c.Open != nil && *c.Open }

// CopyTranscript reports whether rejection transcripts go to the clipboard.
func (c Config) CopyTranscript() bool { return c.Copy != nil && *c.Copy }

// WatchTree reports whether the working-tree watcher should run.
func (c Config) WatchTree() bool { return c.Watch != nil && *c.Watch }

// Validate checks values that cannot be fixed by falling back to defaults.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("format must be text or json, got %q", c.Format)
	}
	if !isLoopback(c.Host) {
		return fmt.Errorf("host must be localhost or a loopback address, got %q", c.Host)
	}
	return nil
}

// isLoopback reports whether host names only this machine.
func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// GlobalPath returns ~/.config/commit-guardian/config.toml.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "commit-guardian", "config.toml"), nil
}

// ProjectFile is the per-repository config file name.
const ProjectFile = ".commit-guardian.toml"

// LoadGlobal reads the global config file.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .commit-guardian.toml in dir.
// Returns nil (no error) if the file is absent.
func LoadProject(dir string) (*Config, error) {
	return loadFile(filepath.Join(dir, ProjectFile), false)
}

// loadFile reads and parses a TOML config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	apply(&result, global)
	apply(&result, project)
	return result
}

func apply(dst, src *Config) {
	if src == nil {
		return
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Format != "" {
		dst.Format = src.Format
	}
	if src.Open != nil {
		dst.Open = Bool(*src.Open)
	}
	if src.Copy != nil {
		dst.Copy = Bool(*src.Copy)
	}
	if src.Watch != nil {
		dst.Watch = Bool(*src.Watch)
	}
	if src.Ignore != nil {
		dst.Ignore = append([]string(nil), src.Ignore...)
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
