package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flowmig/internal/config"
)

// RootOptions holds global flags for all commands and the configuration
// loaded before any of them runs.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Dir      string // where the flowmig.toml search starts; defaults to the working directory
	Database string // overrides the configured database

	// Config is loaded by the root command's pre-run hook.
	Config *config.Config

	// Now stamps deployments. Defaults to time.Now.
	Now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the flowmig CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Now: time.Now}

	cmd := &cobra.Command{
		Use:   "flowmig",
		Short: "flowmig - process instance migration",
		Long: `Migrate running process instances from one deployed process definition
version to another.

Definitions are authored in CUE and deployed into a SQLite store. Running
instances are imported from YAML fixtures, migrated with a plan of
source -> target activity instructions, and inspected as activity instance
trees.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Dir, "dir", "C", "", "directory to search for flowmig.toml (default: working directory)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewInstancesCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup loads configuration, applies flag overrides and installs the
// default logger on the command's stderr.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	dir := o.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to determine working directory", err)
		}
		dir = wd
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	o.Config = cfg

	level, _ := config.ParseLevel(cfg.LogLevel)
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(cmd.ErrOrStderr(), handlerOpts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), handlerOpts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Debug("configuration loaded",
		"config", cfg.ConfigFilePath,
		"database", cfg.Database,
		"definitions_dir", cfg.DefinitionsDir)
	return nil
}
