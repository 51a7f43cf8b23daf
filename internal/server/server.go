// Package server runs the local HTTP endpoint the review page talks to. A
// Server lives for exactly one review: it serves the diff snapshot, accepts a
// single approve or reject decision, and then reports the outcome on Done.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fakeyudi/commit-guardian/internal/review"
)

// ErrAlreadyDecided is reported when a decision arrives after the session ended.
var ErrAlreadyDecided = errors.New("review already decided")

// Committer performs the commit on approval. *git.Repo satisfies it.
type Committer interface {
	Commit(ctx context.Context, message string) error
}

// Config carries everything the handlers need. It is fixed at construction.
type Config struct {
	Snapshot       *review.Snapshot
	DefaultMessage string
	Committer      Committer
	Renderer       review.TranscriptRenderer // defaults to review.TextRenderer
	Out            io.Writer                 // decision transcripts; defaults to io.Discard
	Errs           io.Writer                 // warnings and failures; defaults to io.Discard
	Clipboard      func(string) error        // optional; receives the rejection transcript
}

// State is the lifecycle position of a Server.
type State int

const (
	Idle State = iota
	AwaitingDecision
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingDecision:
		return "awaiting-decision"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is what the session ended with.
type Outcome struct {
	Decision review.Decision
	ExitCode int
	Err      error // commit failure, if any
}

// Server is a single-use review server.
type Server struct {
	cfg Config

	mu    sync.Mutex // serialises decisions; held for the duration of a commit
	state State

	done  chan Outcome
	stale atomic.Bool

	ln   net.Listener
	url  string
	http *http.Server
}

// New returns a Server waiting for a decision on cfg.Snapshot.
func New(cfg Config) (*Server, error) {
	if cfg.Snapshot == nil {
		return nil, errors.New("server: snapshot is required")
	}
	if cfg.Committer == nil {
		return nil, errors.New("server: committer is required")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = &review.TextRenderer{}
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Errs == nil {
		cfg.Errs = io.Discard
	}

	s := &Server{
		cfg:   cfg,
		state: AwaitingDecision,
		done:  make(chan Outcome, 1),
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkStale flags the snapshot as out of date with the working tree. The
// snapshot itself is not refreshed.
func (s *Server) MarkStale() {
	s.stale.Store(true)
}

// Done delivers the session outcome once a decision has been handled. The
// HTTP response may still be in flight; call Shutdown to drain it.
func (s *Server) Done() <-chan Outcome {
	return s.done
}

// Cancel ends a session that has no decision yet, so later decisions get
// ErrAlreadyDecided. If a decision is being handled it waits for it to
// finish, then reports false; its outcome is available on Done.
func (s *Server) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != AwaitingDecision {
		return false
	}
	s.state = Terminated
	return true
}

// finish moves the server to Terminated. Callers must hold s.mu.
func (s *Server) finish(o Outcome) {
	s.state = Terminated
	s.done <- o
}

// Serve accepts connections on the listener opened by Listen until Shutdown.
func (s *Server) Serve() error {
	if s.ln == nil {
		return errors.New("server: Serve called before Listen")
	}
	if err := s.http.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight responses to
// complete, or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
