package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/odoorpc/internal/batch"
	"github.com/roach88/odoorpc/internal/picking"
	"github.com/roach88/odoorpc/internal/value"
)

// UpdateOptions holds flags for the update and update-pickings commands.
type UpdateOptions struct {
	*RootOptions
	Model     string
	IDs       []int64
	Set       []string
	NoVerify  bool
	PerRecord bool
	DryRun    bool
	Hook      string
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Write field values to records in bulk",
		Long: `Write field values to records in bulk.

Requests come from --model/--ids/--set, or from the updates section of the
config file. Field aliases (such as quantity on stock.move) are resolved,
records with identical values are written together, and every write is
read back to confirm the server kept it. A record that fails does not
stop the others.

Example:
  odoorpc update --model stock.move --ids 299986,299987 --set quantity=99
  odoorpc update --config odoorpc.yaml --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Model, "model", "", "model to update")
	cmd.Flags().Int64SliceVar(&opts.IDs, "ids", nil, "record ids")
	addWriteFlags(cmd, opts)

	return cmd
}

// NewUpdatePickingsCommand creates the update-pickings command.
func NewUpdatePickingsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update-pickings [picking-id...]",
		Short: "Update status fields on pickings",
		Long: `Update status fields on stock pickings and verify them.

Picking ids and fields default to the pickings section of the config file.
With --hook, the named model method (such as update_salla) is called for
each picking that was updated successfully.

Example:
  odoorpc update-pickings 108080 108081 --set salla_order_status_id=2 --set x_studio_delivered=true
  odoorpc update-pickings --hook update_salla`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdatePickings(opts, cmd, args)
		},
	}

	addWriteFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.Hook, "hook", "", "model method to call for each updated picking (default: config pickings.hook)")

	return cmd
}

func addWriteFlags(cmd *cobra.Command, opts *UpdateOptions) {
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "field=value to write (repeatable; JSON values keep their type)")
	cmd.Flags().BoolVar(&opts.NoVerify, "no-verify", false, "skip reading values back")
	cmd.Flags().BoolVar(&opts.PerRecord, "per-record", false, "write each record separately")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show the planned writes without sending them")
}

func (o *UpdateOptions) verify(a *app) bool  { return a.cfg.Batch.Verify && !o.NoVerify }
func (o *UpdateOptions) multiID(a *app) bool { return a.cfg.Batch.MultiID && !o.PerRecord }

func runUpdate(opts *UpdateOptions, cmd *cobra.Command) error {
	a, err := setup(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	var reqs []batch.UpdateRequest
	if opts.Model != "" || len(opts.IDs) > 0 || len(opts.Set) > 0 {
		if opts.Model == "" || len(opts.IDs) == 0 || len(opts.Set) == 0 {
			return NewExitError(ExitCommandError, "--model, --ids and --set must be given together")
		}
		vals, err := parseAssignments(opts.Set)
		if err != nil {
			return err
		}
		reqs = batch.Requests(opts.Model, opts.IDs, vals)
	} else {
		reqs, err = a.cfg.UpdateRequests()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid updates in config", err)
		}
	}
	if len(reqs) == 0 {
		return NewExitError(ExitCommandError, "nothing to update: give --model/--ids/--set or configure updates")
	}

	if opts.DryRun {
		return a.out.Success(planView{a.planner().Plan(reqs)})
	}

	if err := a.connect(); err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.close(ctx)

	return a.finishBatch(ctx, a.batcher(opts.verify(a), opts.multiID(a)).Run(ctx, reqs))
}

// PickingUpdateResult is the outcome of update-pickings.
type PickingUpdateResult struct {
	Report *batch.BatchReport     `json:"report"`
	Hook   string                 `json:"hook,omitempty"`
	Hooks  map[string]value.Value `json:"hooks,omitempty"`
	Errors map[string]string      `json:"hook_errors,omitempty"`
}

func (r PickingUpdateResult) String() string {
	var b strings.Builder
	b.WriteString(reportView{r.Report}.String())
	for _, ref := range r.Report.Succeeded() {
		key := fmt.Sprint(ref.ID)
		if res, ok := r.Hooks[key]; ok {
			out, _ := value.MarshalCanonical(res)
			fmt.Fprintf(&b, "\nhook %s(%d): %s", r.Hook, ref.ID, out)
		} else if msg, ok := r.Errors[key]; ok {
			fmt.Fprintf(&b, "\nhook %s(%d) failed: %s", r.Hook, ref.ID, msg)
		}
	}
	return b.String()
}

func runUpdatePickings(opts *UpdateOptions, cmd *cobra.Command, args []string) error {
	a, err := setup(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	ids := a.cfg.Pickings.IDs
	if len(args) > 0 {
		if ids, err = parseIDs(args); err != nil {
			return err
		}
	}
	vals, err := a.cfg.PickingValues()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid pickings.fields in config", err)
	}
	if len(opts.Set) > 0 {
		if vals, err = parseAssignments(opts.Set); err != nil {
			return err
		}
	}
	hook := opts.Hook
	if hook == "" {
		hook = a.cfg.Pickings.Hook
	}

	if opts.DryRun {
		return a.out.Success(planView{a.planner().Plan(batch.Requests(picking.Model, ids, vals))})
	}

	if err := a.connect(); err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.close(ctx)

	b := a.batcher(opts.verify(a), opts.multiID(a))
	svc := picking.New(a.client, b, picking.WithLogger(a.logger))
	report, err := svc.UpdateStatus(ctx, ids, vals)
	if err != nil {
		return remoteError("update pickings", err)
	}
	if err := a.recordRun(ctx, report); err != nil {
		return err
	}

	result := PickingUpdateResult{Report: report, Hook: hook}
	hookFailed := false
	if hook != "" {
		result.Hooks = map[string]value.Value{}
		result.Errors = map[string]string{}
		for _, ref := range report.Succeeded() {
			res, err := svc.RunHook(ctx, hook, ref.ID)
			key := fmt.Sprint(ref.ID)
			if err != nil {
				hookFailed = true
				result.Errors[key] = err.Error()
				continue
			}
			result.Hooks[key] = res
		}
	}

	if err := a.out.Success(result); err != nil {
		return err
	}
	if !report.OK() {
		return WrapExitError(ExitFailure, report.Summary(), errBatchFailed)
	}
	if hookFailed {
		return NewExitError(ExitFailure, fmt.Sprintf("hook %s failed for %d picking(s)", hook, len(result.Errors)))
	}
	return nil
}

// planView renders a dry-run plan.
type planView struct {
	*batch.Plan
}

func (p planView) String() string {
	var b strings.Builder
	for _, g := range p.Groups {
		vals, _ := value.Marshal(g.Values)
		fmt.Fprintf(&b, "write %s %v %s\n", g.Model, g.Members, vals)
	}
	for _, r := range p.Rejected {
		fmt.Fprintf(&b, "reject %s: %s\n", r.Ref, r.Error)
	}
	fmt.Fprintf(&b, "%d groups, %d rejected", len(p.Groups), len(p.Rejected))
	return b.String()
}
