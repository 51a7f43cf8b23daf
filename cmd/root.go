package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/commit-guardian/internal/browser"
	"github.com/fakeyudi/commit-guardian/internal/config"
	"github.com/fakeyudi/commit-guardian/internal/console"
	"github.com/fakeyudi/commit-guardian/internal/git"
)

// version is overridden at build time with -ldflags "-X ...cmd.version=...".
var version = "dev"

// reviewRepo is the git surface the review command needs. *git.Repo implements it.
type reviewRepo interface {
	IsRepository(ctx context.Context) (bool, error)
	Status(ctx context.Context) (git.Status, error)
	Diff(ctx context.Context, staged bool) (string, error)
	Commit(ctx context.Context, message string) error
}

// Process hooks, swapped out in tests.
var (
	openBrowser     = browser.Open
	copyToClipboard = clipboard.WriteAll
	workDir         = os.Getwd
	newRepo         = func(dir string) reviewRepo { return &git.Repo{Dir: dir} }
	notifyContext   = func(ctx context.Context) (context.Context, context.CancelFunc) {
		return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	}
)

// rootOptions holds the flag values of one root command instance.
type rootOptions struct {
	message string
	port    int
	noOpen  bool
	copy    bool
	watch   bool
	format  string
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "commit-guardian -m <commit-message>",
		Short: "Review changes in the browser before they are committed",
		Long: `Commit Guardian shows your staged and unstaged changes in a local web page.
Approve them to run git commit with your message, or reject them with a
reason and line comments that are printed back to the terminal.`,
		Example: `  commit-guardian -m "Add new feature"
  commit-guardian --message "Fix bug in login" --port 4000 --no-open`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.message, "message", "m", "", "commit message (required)")
	flags.IntVarP(&opts.port, "port", "p", 0, "first port to try for the review server (default 3456)")
	flags.BoolVar(&opts.noOpen, "no-open", false, "don't open the browser automatically")
	flags.BoolVar(&opts.copy, "copy", false, "copy the rejection transcript to the clipboard")
	flags.BoolVar(&opts.watch, "watch", false, "warn when the working tree changes during the review")
	flags.StringVar(&opts.format, "format", "", "transcript format: text or json (default text)")
	return cmd
}

// loadConfig merges the global and project config files and then applies
// every flag the user set explicitly.
func loadConfig(cmd *cobra.Command, opts *rootOptions, dir string) (config.Config, error) {
	global, err := config.LoadGlobal()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading global config: %w", err)
	}
	project, err := config.LoadProject(dir)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading project config: %w", err)
	}
	cfg := config.Merge(global, project)

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("no-open") {
		cfg.Open = config.Bool(!opts.noOpen)
	}
	if flags.Changed("copy") {
		cfg.Copy = config.Bool(opts.copy)
	}
	if flags.Changed("watch") {
		cfg.Watch = config.Bool(opts.watch)
	}
	if flags.Changed("format") {
		cfg.Format = opts.format
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command and exits with its status code.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		reportError(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}

// reportError prints err the way the CLI presents failures. A failed commit
// has already been reported by the server and prints nothing more.
func reportError(w io.Writer, err error) {
	if errors.Is(err, errCommitFailed) {
		return
	}
	p := console.New(w, w)
	p.Errorf("%s", err)
	var pe *PreflightError
	if errors.As(err, &pe) && pe.Guidance != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, pe.Guidance)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
