package cli

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/insight/internal/engine"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query [file|-]",
		Short: "Run a query",
		Long: `Run a JSON query against the stored datasets.

The query is read from the given file, or from stdin when the argument is
"-" or omitted. Results are printed as a table, or as a JSON array with
--format json.

Exit codes:
  0 - Query succeeded
  1 - Query failed (INVALID_QUERY, RESULT_TOO_LARGE, DATASET_NOT_FOUND)
  2 - Command error (unreadable file, database error)

Examples:
  insight query query.json
  echo '{"WHERE": {}, "OPTIONS": {"COLUMNS": ["rooms_name"]}}' | insight query --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			return runQuery(rootOpts, cmd, src)
		},
	}
}

func runQuery(opts *RootOptions, cmd *cobra.Command, src string) error {
	out := opts.formatter(cmd)

	data, err := readQuery(cmd, src)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read query", err)
	}

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closeApp(a)

	rows, err := a.engine.Execute(cmd.Context(), data)
	if err != nil {
		var qe *engine.QueryError
		if !errors.As(err, &qe) {
			return WrapExitError(ExitCommandError, "query failed", err)
		}
		var details any
		if len(qe.Details) > 0 {
			details = qe.Details
		}
		out.ErrorWithQuery(string(qe.Code), qe.Message, qe.QueryID, details)
		return WrapExitError(ExitFailure, "query failed", err)
	}

	if opts.Verbose {
		lines, err := a.metricSummary()
		if err == nil {
			for _, l := range lines {
				out.VerboseLog("%s", l)
			}
		}
	}
	return out.Rows(rows)
}

func readQuery(cmd *cobra.Command, src string) ([]byte, error) {
	if src == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(src)
}
