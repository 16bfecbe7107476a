package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/odoorpc/internal/snapshot"
	"github.com/roach88/odoorpc/internal/value"
)

// FetchOptions holds flags for the fetch and statuses commands.
type FetchOptions struct {
	*RootOptions
	OutDir string
	Stdout bool
}

// FetchResult describes one written snapshot.
type FetchResult struct {
	ID     int64  `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Count  int    `json:"count"`
	Path   string `json:"path,omitempty"`
	Digest string `json:"digest"`
	Stored bool   `json:"stored"`
}

type fetchResults []FetchResult

func (r fetchResults) String() string {
	lines := make([]string, len(r))
	for i, f := range r {
		where := f.Path
		if where == "" {
			where = "-"
		}
		label := f.Name
		if label == "" {
			label = "statuses"
		}
		lines[i] = fmt.Sprintf("%s  %s  %d records  %s", where, label, f.Count, f.Digest[:12])
	}
	return strings.Join(lines, "\n")
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch <picking-id>...",
		Short: "Snapshot pickings with their moves",
		Long: `Snapshot stock pickings with their moves to JSON files.

Each picking is written to stock_picking_<id>.json in the output directory,
restricted to the configured whitelists. If a history database is
configured, each distinct document is also stored there.

Example:
  odoorpc fetch 108080 --out ./snapshots
  odoorpc fetch 108080 --stdout`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, cmd, args)
		},
	}

	addFetchFlags(cmd, opts)
	return cmd
}

// NewStatusesCommand creates the statuses command.
func NewStatusesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "statuses",
		Short: "Export every order status",
		Long: `Export every salla.order.status record to salla_order_status_all.json.

Each entry has exactly the fields id, externalStatusId, name, type and
slug; fields the server does not return are null.

Example:
  odoorpc statuses --out ./snapshots`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatuses(opts, cmd)
		},
	}

	addFetchFlags(cmd, opts)
	return cmd
}

func addFetchFlags(cmd *cobra.Command, opts *FetchOptions) {
	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "", "output directory (default: config output.dir)")
	cmd.Flags().BoolVar(&opts.Stdout, "stdout", false, "print the document instead of writing a file")
}

func runFetch(opts *FetchOptions, cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	a, err := setup(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.close(ctx)

	f := a.fetcher()
	var docs []value.Value
	results := make(fetchResults, 0, len(ids))
	for _, id := range ids {
		p, err := f.Picking(ctx, id)
		if err != nil {
			return remoteError(fmt.Sprintf("fetch picking %d", id), err)
		}
		digest, err := p.Digest()
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("encode picking %d", id), err)
		}
		docs = append(docs, p.Value())
		results = append(results, FetchResult{ID: id, Name: p.Name(), Count: len(p.Moves), Digest: digest})
	}

	return a.emitSnapshots(cmd, opts, snapshot.ModelPicking, results, docs, func(r FetchResult) string {
		return snapshot.PickingFilename(r.ID)
	})
}

func runStatuses(opts *FetchOptions, cmd *cobra.Command) error {
	a, err := setup(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.close(ctx)

	entries, err := a.fetcher().Statuses(ctx)
	if err != nil {
		return remoteError("fetch order statuses", err)
	}
	doc := snapshot.StatusArray(entries)
	digest, err := value.Digest(value.DomainSnapshot, doc)
	if err != nil {
		return WrapExitError(ExitFailure, "encode order statuses", err)
	}
	results := fetchResults{{Count: len(entries), Digest: digest}}
	return a.emitSnapshots(cmd, opts, snapshot.ModelStatus, results, []value.Value{doc}, func(FetchResult) string {
		return snapshot.StatusFilename
	})
}

// emitSnapshots prints the documents or writes them to files, storing
// each in the history database when one is configured.
func (a *app) emitSnapshots(cmd *cobra.Command, opts *FetchOptions, model string, results fetchResults, docs []value.Value, filename func(FetchResult) string) error {
	ctx := cmd.Context()
	st, err := a.openStore()
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		for i, doc := range docs {
			_, inserted, err := st.PutSnapshot(ctx, model, results[i].ID, doc, time.Now())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to store snapshot", err)
			}
			results[i].Stored = inserted
		}
	}

	if opts.Stdout {
		if len(docs) == 1 {
			return a.out.Success(docs[0])
		}
		return a.out.Success(value.Array(docs))
	}

	dir := opts.OutDir
	if dir == "" {
		dir = a.cfg.Output.Dir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}
	for i, doc := range docs {
		path := filepath.Join(dir, filename(results[i]))
		if err := snapshot.WriteFile(path, doc); err != nil {
			return WrapExitError(ExitFailure, "failed to write snapshot", err)
		}
		results[i].Path = path
		a.logger.Info("snapshot written", "path", path, "digest", results[i].Digest)
	}
	return a.out.Success(results)
}
