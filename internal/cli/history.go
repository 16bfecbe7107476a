package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/odoorpc/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database  string
	Limit     int
	Record    string
	Snapshots string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded batch runs and snapshots",
		Long: `Show what the history database recorded.

Without arguments, lists recent batch runs. With a run id, shows that run's
per-record outcomes. --record lists every recorded outcome for one record,
and --snapshots lists the stored snapshots of one record. Records are
written as model/id.

Example:
  odoorpc history --db odoorpc.db
  odoorpc history 01928c6e-0000-7000-8000-000000000000
  odoorpc history --record stock.move/299986
  odoorpc history --snapshots stock.picking/108080`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "history database (default: config store.path)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.Record, "record", "", "show outcomes for model/id")
	cmd.Flags().StringVar(&opts.Snapshots, "snapshots", "", "show snapshots for model/id")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command, args []string) error {
	a, err := setup(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if opts.Database != "" {
		a.cfg.Store.Path = opts.Database
	}
	if a.cfg.Store.Path == "" {
		return NewExitError(ExitCommandError, "no history database: set store.path or pass --db")
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()

	switch {
	case len(args) == 1:
		run, err := st.ReadRun(ctx, args[0])
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitFailure, fmt.Sprintf("run %s not found", args[0]))
		}
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read run", err)
		}
		return a.out.Success(runView(run))

	case opts.Record != "":
		ref, err := parseRef(opts.Record)
		if err != nil {
			return err
		}
		items, err := st.RecordHistory(ctx, ref)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read record history", err)
		}
		return a.out.Success(itemsView(items))

	case opts.Snapshots != "":
		ref, err := parseRef(opts.Snapshots)
		if err != nil {
			return err
		}
		snaps, err := st.ListSnapshots(ctx, ref.Model, ref.ID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list snapshots", err)
		}
		return a.out.Success(snapshotsView(snaps))
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list runs", err)
	}
	return a.out.Success(runsView(runs))
}

type runView store.Run

func (r runView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s at %s\n", r.ID, r.StartedAt.Format(time.RFC3339))
	b.WriteString(itemsView(r.Items).String())
	if r.Summary != "" {
		fmt.Fprintf(&b, "\n%s", r.Summary)
	}
	return b.String()
}

type runsView []store.Run

func (rs runsView) String() string {
	if len(rs) == 0 {
		return "no runs recorded"
	}
	lines := make([]string, len(rs))
	for i, r := range rs {
		lines[i] = fmt.Sprintf("%s  %s  %s", r.ID, r.StartedAt.Format(time.RFC3339), r.Summary)
	}
	return strings.Join(lines, "\n")
}

type itemsView []store.RunItem

func (items itemsView) String() string {
	if len(items) == 0 {
		return "no outcomes recorded"
	}
	lines := make([]string, len(items))
	for i, it := range items {
		line := fmt.Sprintf("%s: %s", it.Ref, it.Status)
		if it.Detail != "" {
			line += " (" + it.Detail + ")"
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

type snapshotsView []store.Snapshot

func (ss snapshotsView) String() string {
	if len(ss) == 0 {
		return "no snapshots stored"
	}
	lines := make([]string, len(ss))
	for i, s := range ss {
		lines[i] = fmt.Sprintf("%d  %s  %s/%d  %s", s.Seq, s.CreatedAt.Format(time.RFC3339), s.Model, s.RecordID, s.Digest)
	}
	return strings.Join(lines, "\n")
}
