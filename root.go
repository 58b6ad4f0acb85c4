package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivescan/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries everything a subcommand needs. It is built once in
// PersistentPreRunE and attached to the command's context.
type CLIContext struct {
	Flags   CLIFlags
	Cfg     *config.Config
	CfgPath string
	Logger  *slog.Logger
	// Level is shared by every handler Logger writes through, so a config
	// reload can change verbosity without rebuilding loggers.
	Level *slog.LevelVar
}

type cliContextKey struct{}

// cliContextFrom returns the CLIContext installed by the root pre-run.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext is cliContextFrom for commands that always run after the
// root pre-run.
func mustCLIContext(cmd *cobra.Command) *CLIContext {
	cc := cliContextFrom(cmd.Context())
	if cc == nil {
		panic("drivescan: command ran without CLIContext")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:     "drivescan",
		Short:   "Google Drive folder inventory service",
		Long:    "Enumerates Google Drive folder trees as background jobs and exports them as CSV.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadCLIContext(cmd, flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())

	return cmd
}

// loadCLIContext resolves the four-layer configuration and builds the logger.
func loadCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	// Only serve defines --listen; pass it on only when set explicitly.
	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		listen := f.Value.String()
		cli.Listen = &listen
	}

	cfg, cfgPath, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, level := buildLogger(os.Stderr, cfg, flags)

	logger.Debug("config resolved", slog.String("path", cfgPath))

	return &CLIContext{
		Flags:   flags,
		Cfg:     cfg,
		CfgPath: cfgPath,
		Logger:  logger,
		Level:   level,
	}, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger(w io.Writer, cfg *config.Config, flags CLIFlags) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(effectiveLevel(cfg.Logging.LogLevel, flags))

	opts := &slog.HandlerOptions{Level: level}

	if useJSONLogs(cfg.Logging.LogFormat, w) {
		return slog.New(slog.NewJSONHandler(w, opts)), level
	}

	return slog.New(slog.NewTextHandler(w, opts)), level
}

// effectiveLevel maps the configured level name to a slog level, with CLI
// flags taking precedence.
func effectiveLevel(name string, flags CLIFlags) slog.Level {
	switch {
	case flags.Verbose:
		return slog.LevelDebug
	case flags.Quiet:
		return slog.LevelError
	}

	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// useJSONLogs resolves log_format. "auto" picks text for a terminal and JSON
// for anything else (journald, files, pipes).
func useJSONLogs(format string, w io.Writer) bool {
	switch format {
	case config.FormatJSON:
		return true
	case config.FormatText:
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return true
	}

	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
