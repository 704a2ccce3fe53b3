package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/insight/internal/config"
)

// RootOptions holds global flags for all commands, plus the configuration
// resolved from them before any subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the insight CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	defaults := config.Defaults()

	cmd := &cobra.Command{
		Use:   "insight",
		Short: "Query course sections and rooms datasets",
		Long: `insight stores sections and rooms datasets and answers JSON queries
over them: filtering, grouping, aggregation, projection and ordering.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.loadConfig(cmd)
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (default ./insight.yaml if present)")

	// Config keys; names map onto keys with dashes for underscores.
	pf.String("db-path", defaults.DBPath, "path to SQLite database")
	pf.Int("max-results", defaults.MaxResults, "largest filtered set a query may produce")
	pf.String("log-level", defaults.LogLevel, "log level (DEBUG|INFO|WARN|ERROR)")
	pf.String("log-format", defaults.LogFormat, "log format (text|json)")
	pf.Int("cache-size", defaults.CacheSize, "decoded datasets kept in memory")
	pf.Int("parallel-threshold", defaults.ParallelThreshold, "group count above which aggregation fans out")
	pf.Int("workers", defaults.Workers, "aggregation worker pool size (0 disables the pool)")

	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// loadConfig merges defaults, config file, environment and flags, then
// installs the configured logger as the slog default. Logs go to stderr so
// they never mix with command output.
func (o *RootOptions) loadConfig(cmd *cobra.Command) error {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return WrapExitError(ExitCommandError, "failed to bind flags", err)
	}
	cfg, err := config.Load(v, o.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Verbose {
		cfg.LogLevel = "DEBUG"
	}

	logger, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build logger", err)
	}
	slog.SetDefault(logger)

	o.Config = cfg
	o.Logger = logger
	return nil
}

// formatter returns an OutputFormatter for the command's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
