// Package cli implements the cobra command tree for libsync.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/libsync/internal/config"
	"github.com/hupe1980/libsync/internal/logging"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs the libsync command tree and returns the process exit code.
func Execute() int {
	return exitCode(NewRootCommand().Execute(), os.Stderr)
}

// exitCode reports err on w and maps it to an exit code: 0 without error,
// the code of an *ExitError, and 1 for anything else.
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return 0
	}

	code := 1

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
		err = exitErr.Err
	}

	if err != nil {
		_, _ = fmt.Fprintln(w, "Error:", err)
	}

	return code
}

// NewRootCommand returns the libsync command with every subcommand attached.
// Its PersistentPreRunE loads the configuration and the logger into the
// command context.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "libsync",
		Short: "Watch, build, and sync local libraries into dependent apps",
		Long: `libsync keeps locally developed libraries in step with the applications
that consume them.

For every configured library it watches the source tree, runs the build
command when files change, and mirrors the build output into each
destination folder (typically node_modules/<name> of a dependent app).
A failing destination never blocks the others, and a failing build never
touches any destination.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			logger := logging.Setup(cfg)

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("logFormat", cfg.LogFormat),
				slog.String("projects", cfg.ProjectsFile),
				slog.String("configFile", cfg.ConfigFile),
			)

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .libsync.yaml)")
	pf.String("log-level", config.LogLevelInfo, "log level: debug, info, warn, error")
	pf.String("log-format", config.LogFormatText, "log format: text, json")
	pf.String("log-file", "", "also write logs to this rotating file")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")
	pf.StringP("projects", "p", config.DefaultProjectsFile, "path of the projects file (JSON or YAML)")
	pf.Int("retries", config.DefaultRetries, "polls of the build output before a sync is abandoned")
	pf.Duration("retry-delay", config.DefaultRetryDelay, "delay between build output polls")
	pf.Duration("build-timeout", 0, "maximum duration of a single build (0 = no limit)")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	cmd.AddCommand(
		newVersionCommand(),
		newWatchCommand(),
		newSyncCommand(),
		newProjectsCommand(),
		newStatusCommand(),
		newDoctorCommand(),
		newCompletionCommand(),
	)

	return cmd
}
