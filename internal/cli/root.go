// Package cli implements the spotify-wrapped commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/justestif/go-spotify-wrapped/internal/config"
	"github.com/justestif/go-spotify-wrapped/internal/insight"
	"github.com/justestif/go-spotify-wrapped/internal/pipeline"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitNoData  = 2
)

// Output formats.
const (
	formatJSON  = "json"
	formatTable = "table"
)

// app holds the state shared by all commands of one invocation.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	verbose    bool
	format     string
	logger     *slog.Logger
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var invErr *insight.InvariantError
	switch {
	case errors.Is(err, pipeline.ErrEmptyDataset):
		fmt.Fprintln(stderr, "error: no usable listening data")
		return ExitNoData
	case errors.As(err, &invErr):
		fmt.Fprintf(stderr, "internal error: %v\n", err)
		return ExitFailure
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitFailure
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "spotify-wrapped",
		Short:         "Year-in-review summaries from Spotify streaming history exports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default: ~/"+config.DefaultFileName+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&a.format, "format", "f", formatTable, "output format: json or table")

	root.AddCommand(a.summaryCmd(), a.cacheCmd())
	return root
}

// loadConfig reads configuration and installs the logger it describes.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, errs := config.Load(a.configPath)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	if a.format != formatJSON && a.format != formatTable {
		return nil, fmt.Errorf("unknown output format %q", a.format)
	}

	a.logger = newLogger(a.stderr, cfg.Log.Format, a.verbose)
	slog.SetDefault(a.logger)
	return cfg, nil
}

func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
