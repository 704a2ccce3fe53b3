package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/insight/internal/ingest"
	"github.com/roach88/insight/internal/schema"
	"github.com/roach88/insight/internal/store"
)

// AddResult is the payload of a successful add.
type AddResult struct {
	Dataset store.Dataset `json:"dataset"`
	Skipped int           `json:"skipped"`
}

func (r AddResult) String() string {
	return fmt.Sprintf("Added %s dataset %q with %d rows (%d skipped)",
		r.Dataset.Kind, r.Dataset.ID, r.Dataset.NumRows, r.Skipped)
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <id> <sections|rooms> <path>",
		Short: "Ingest a dataset file",
		Long: `Ingest a dataset file under a new id.

Sections are read from a ZIP archive whose courses/ directory holds one JSON
file per course. Rooms are read from a JSON array of room objects.

Exit codes:
  0 - Dataset added
  1 - Dataset rejected (invalid id, duplicate id, no valid records)
  2 - Command error (unreadable file, database error)

Examples:
  insight add sections sections courses.zip
  insight add rooms rooms campus-rooms.json --format json`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(rootOpts, cmd, args[0], args[1], args[2])
		},
	}
}

func runAdd(opts *RootOptions, cmd *cobra.Command, id, kindName, path string) error {
	out := opts.formatter(cmd)

	kind, err := schema.ParseKind(kindName)
	if err != nil {
		out.Error("E_DATASET", err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid dataset kind", err)
	}

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx := cmd.Context()
	records, report, err := a.ingest.File(ctx, id, kind, path)
	if err != nil {
		var ie *ingest.Error
		switch {
		case errors.As(err, &ie) && ie.Reason == "open":
			return WrapExitError(ExitCommandError, "failed to read dataset file", err)
		case errors.As(err, &ie), errors.Is(err, schema.ErrInvalidDatasetID):
			out.Error("E_DATASET", err.Error(), nil)
			return WrapExitError(ExitFailure, "dataset rejected", err)
		default:
			return WrapExitError(ExitCommandError, "failed to ingest dataset", err)
		}
	}
	out.VerboseLog("parsed %d records (%d skipped, %d files)", report.Accepted, report.Skipped, report.Files)

	ds, err := a.store.AddDataset(ctx, id, kind, records)
	if err != nil {
		if errors.Is(err, store.ErrDatasetExists) || errors.Is(err, schema.ErrInvalidDatasetID) ||
			errors.Is(err, store.ErrInvalidRecord) || errors.Is(err, store.ErrEmptyDataset) {
			out.Error("E_DATASET", err.Error(), nil)
			return WrapExitError(ExitFailure, "dataset rejected", err)
		}
		return WrapExitError(ExitCommandError, "failed to store dataset", err)
	}

	return out.Success(AddResult{Dataset: ds, Skipped: report.Skipped})
}

// RemoveResult is the payload of a successful remove.
type RemoveResult struct {
	ID string `json:"id"`
}

func (r RemoveResult) String() string {
	return fmt.Sprintf("Removed dataset %q", r.ID)
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a dataset",
		Long: `Remove a dataset and all of its records.

Exit codes:
  0 - Dataset removed
  1 - No such dataset, or invalid id
  2 - Command error (database error)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(rootOpts, cmd, args[0])
		},
	}
}

func runRemove(opts *RootOptions, cmd *cobra.Command, id string) error {
	out := opts.formatter(cmd)

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.store.RemoveDataset(cmd.Context(), id); err != nil {
		switch {
		case isNotFound(err):
			out.Error("DATASET_NOT_FOUND", err.Error(), nil)
			return WrapExitError(ExitFailure, "dataset not found", err)
		case errors.Is(err, schema.ErrInvalidDatasetID):
			out.Error("E_DATASET", err.Error(), nil)
			return WrapExitError(ExitFailure, "invalid dataset id", err)
		default:
			return WrapExitError(ExitCommandError, "failed to remove dataset", err)
		}
	}
	return out.Success(RemoveResult{ID: id})
}

// DatasetList is the payload of list; its text form is a table.
type DatasetList []store.Dataset

func (l DatasetList) String() string {
	if len(l) == 0 {
		return "No datasets."
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tROWS")
	for _, d := range l {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", d.ID, d.Kind, d.NumRows)
	}
	tw.Flush()
	return strings.TrimSuffix(b.String(), "\n")
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List datasets",
		Long:          "List every dataset in the order it was added, with its kind and row count.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, cmd)
		},
	}
}

func runList(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer closeApp(a)

	datasets, err := a.store.ListDatasets(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list datasets", err)
	}
	return opts.formatter(cmd).Success(DatasetList(datasets))
}
