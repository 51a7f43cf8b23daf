package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fakeyudi/commit-guardian/internal/config"
	"github.com/fakeyudi/commit-guardian/internal/console"
	"github.com/fakeyudi/commit-guardian/internal/review"
	"github.com/fakeyudi/commit-guardian/internal/server"
	"github.com/fakeyudi/commit-guardian/internal/watch"
)

// shutdownTimeout bounds how long in-flight responses may take to drain.
const shutdownTimeout = 5 * time.Second

func runReview(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	p := console.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

	dir, err := workDir()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	cfg, err := loadConfig(cmd, opts, dir)
	if err != nil {
		return err
	}

	repo := newRepo(dir)
	if err := preflight(ctx, repo, opts.message); err != nil {
		return err
	}

	snap, err := review.TakeSnapshot(ctx, repo)
	if err != nil {
		return err
	}
	renderer, err := review.NewRenderer(cfg.Format)
	if err != nil {
		return err
	}

	p.Banner(version)
	p.Changes(snap.Files, snap.Stats)
	p.Println(fmt.Sprintf("Default commit message: %q", opts.message))
	p.Println()

	var clip func(string) error
	if cfg.CopyTranscript() {
		clip = copyToClipboard
	}
	srv, err := server.New(server.Config{
		Snapshot:       snap,
		DefaultMessage: opts.message,
		Committer:      repo,
		Renderer:       renderer,
		Out:            cmd.OutOrStdout(),
		Errs:           cmd.ErrOrStderr(),
		Clipboard:      clip,
	})
	if err != nil {
		return err
	}
	if err := srv.Listen(cfg.Host, cfg.Port); err != nil {
		return err
	}

	p.URL(srv.URL())
	if cfg.OpenBrowser() {
		if err := openBrowser(srv.URL()); err != nil {
			p.Println("Could not open browser automatically. Please visit:", srv.URL())
		}
	}

	return awaitDecision(ctx, srv, cfg, dir, p)
}

// awaitDecision serves until the reviewer decides or a signal arrives, then
// drains the server. A failed commit is reported as errCommitFailed.
func awaitDecision(ctx context.Context, srv *server.Server, cfg config.Config, dir string, p *console.Printer) error {
	sigCtx, stop := notifyContext(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	defer stopWatch()

	var (
		outcome server.Outcome
		decided bool
	)

	g.Go(srv.Serve)

	g.Go(func() error {
		defer stopWatch()
		select {
		case outcome = <-srv.Done():
			decided = true
		case <-gctx.Done():
			// A decision that already started, such as a commit running
			// its hooks, is seen through to the end.
			if !srv.Cancel() {
				outcome = <-srv.Done()
				decided = true
			}
		}
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	})

	if cfg.WatchTree() {
		g.Go(func() error {
			err := newWatcher(cfg, dir).Run(watchCtx, func(string) {
				p.Warnf("working tree changed during review; the diff shown is the snapshot taken at startup")
				srv.MarkStale()
			})
			if err != nil {
				p.Warnf("watching working tree: %v", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if !decided {
		p.Println()
		p.Println("Review cancelled")
		return nil
	}
	if outcome.ExitCode != 0 {
		return errCommitFailed
	}
	return nil
}

func newWatcher(cfg config.Config, dir string) *watch.Watcher {
	return &watch.Watcher{Dir: dir, IgnorePatterns: cfg.Ignore}
}
