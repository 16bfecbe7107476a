package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/odoorpc/internal/snapshot"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Fields        []string
	PickingFields []string
	NoVerify      bool
	DryRun        bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <snapshot-file>",
		Short: "Write a picking snapshot back to Odoo",
		Long: `Write the values recorded in a picking snapshot back to Odoo.

Each move in the snapshot becomes an update of the --fields it carries
(product_uom_qty and description_picking by default). Parent picking
fields are only written when named with --picking-fields. Updates go
through the same batching and verification as the update command.

Example:
  odoorpc replay stock_picking_108080.json
  odoorpc replay stock_picking_108080.json --fields product_uom_qty --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringSliceVar(&opts.Fields, "fields", nil, "move fields to write back")
	cmd.Flags().StringSliceVar(&opts.PickingFields, "picking-fields", nil, "picking fields to write back")
	cmd.Flags().BoolVar(&opts.NoVerify, "no-verify", false, "skip reading values back")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show the planned writes without sending them")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, path string) error {
	a, err := setup(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}
	p, err := snapshot.DecodePicking(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid snapshot "+path, err)
	}

	reqs := p.MoveUpdates(opts.Fields...)
	if len(opts.PickingFields) > 0 {
		if req, ok := p.PickingUpdate(opts.PickingFields...); ok {
			reqs = append(reqs, req)
		}
	}
	if len(reqs) == 0 {
		return NewExitError(ExitCommandError, "snapshot has none of the requested fields")
	}
	a.logger.Debug("replaying snapshot", "picking", p.ID(), "name", p.Name(), "requests", len(reqs))

	if opts.DryRun {
		return a.out.Success(planView{a.planner().Plan(reqs)})
	}

	if err := a.connect(); err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.close(ctx)

	b := a.batcher(a.cfg.Batch.Verify && !opts.NoVerify, a.cfg.Batch.MultiID)
	return a.finishBatch(ctx, b.Run(ctx, reqs))
}
