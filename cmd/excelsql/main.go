// Command excelsql drives the spreadsheet-to-SQL workflow from a terminal:
// select the two workbooks, optionally validate, generate, and download the
// SQL artifact.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/excelsql/internal/config"
	"github.com/JonMunkholm/excelsql/internal/logging"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	// exitBlocked means the service answered but refused to proceed:
	// validation errors or a failed generation.
	exitBlocked = 3
)

// codedError carries a process exit code.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitFailure
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	converterURL string
	logLevel     string
	jsonOutput   bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "excelsql",
		Short:         "Convert master data and employee workbooks into SQL inserts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; the environment may already be set.
			_ = godotenv.Overload()

			cfg, err := config.Load()
			if err != nil {
				return withCode(exitUsage, err)
			}
			if cmd.Flags().Changed("converter-url") {
				cfg.Converter.BaseURL = g.converterURL
			}
			level := cfg.Logging.Level
			if cmd.Flags().Changed("log-level") {
				level = g.logLevel
			}

			g.cfg = cfg
			g.logger = logging.New(level, cfg.Logging.Format, cmd.ErrOrStderr())
			slog.SetDefault(g.logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&g.converterURL, "converter-url", "", "Conversion service base URL (default: CONVERTER_BASE_URL)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level on stderr: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Print the final workflow view as JSON")

	root.AddCommand(newRunCmd(g), newValidateCmd(g))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	stop()
	os.Exit(exitCode(err))
}
