package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/OpenAD-Plugins/internal/application/reporting"
	"github.com/turtacn/OpenAD-Plugins/internal/bootstrap"
	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/internal/session"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Workspace    string
	NoColor      bool
	Timeout      time.Duration
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config  *config.Config
	Logger  logging.Logger
	Infra   *bootstrap.Infrastructure
	Session *session.Session
	Printer *reporting.Printer
	Format  reporting.Format

	cancel context.CancelFunc
}

func (c *CLIContext) close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.Infra != nil {
		c.Infra.Close()
	}
	_ = c.Logger.Sync()
}

// NewRootCommand creates the root command with its global flags and the
// rxn and ds command trees.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "openad",
		Short:   "RXN reaction prediction and Deep Search commands",
		Long:    "openad drives IBM RXN (forward reaction prediction, retrosynthesis, recipe\ninterpretation) and Deep Search (collection search, molecule and patent lookups)\nfrom a named workspace.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cc, err := GetCLIContext(cmd); err == nil {
				cc.close()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: OPENAD_* environment and built-in defaults)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, table, json, yaml)")
	pf.StringVarP(&opts.Workspace, "workspace", "w", "", "workspace name (overrides config)")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	pf.DurationVar(&opts.Timeout, "timeout", 0, "overall command timeout, 0 for none")

	cmd.AddCommand(NewRXNCmd(), NewDeepSearchCmd(), newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Runs without configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		PersistentPostRun: func(cmd *cobra.Command, args []string) {},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "openad %s\ncommit: %s\nbuilt:  %s\n", Version, GitCommit, BuildDate)
			return err
		},
	}
}

// persistentPreRun loads config, logger, backends and the session, then
// stores the CLIContext on the command context.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	format, err := reporting.ParseFormat(opts.OutputFormat)
	if err != nil {
		return err
	}

	cfg, err := initConfig(opts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "config initialization failed")
	}

	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger := logging.NewCLILogger(level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}

	infra, err := bootstrap.NewInfrastructure(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return err
	}

	cc := &CLIContext{
		Config:  cfg,
		Logger:  logger,
		Infra:   infra,
		Session: session.New(cfg, logger, session.WithPrompter(newPrompter(cmd))),
		Printer: reporting.NewPrinter(cfg.Display.Color && !opts.NoColor),
		Format:  format,
		cancel:  cancel,
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))
	return nil
}

// initConfig loads the config file when given, otherwise environment and
// defaults, then applies the --workspace override.
func initConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.LoadOptional(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if ws := strings.TrimSpace(opts.Workspace); ws != "" {
		cfg.Workspace.Name = ws
		cfg.Workspace.RootDir = filepath.Join(cfg.Workspace.HomeDir, ws)
	}
	return cfg, nil
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "command context is nil")
	}
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		return nil, errors.New(errors.ErrCodeInternal, "CLIContext not found in command context")
	}
	return cc, nil
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// PrintError writes err to stderr, with the detail of an AppError on a
// second line.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && appErr.Cause != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "  caused by: %s\n", appErr.Cause.Error())
	}
}

// PrintSuccess writes a confirmation line to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s\n", msg)
}
