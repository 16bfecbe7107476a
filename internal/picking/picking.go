package picking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/odoorpc/internal/batch"
	"github.com/roach88/odoorpc/internal/odoo"
	"github.com/roach88/odoorpc/internal/value"
)

const (
	Model = "stock.picking"

	// BackorderWizard is the wizard button_validate opens when some moves
	// are not fully done.
	BackorderWizard = "stock.backorder.confirmation"

	actWindow = "ir.actions.act_window"
)

// Caller invokes model methods. *odoo.Client implements it.
type Caller interface {
	CallMethod(ctx context.Context, model, method string, args []any, kwargs map[string]any) (value.Value, error)
}

// Service runs picking workflows.
type Service struct {
	caller  Caller
	batcher *batch.Batcher
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service. Status updates go through b, which should have
// verification enabled.
func New(c Caller, b *batch.Batcher, opts ...Option) *Service {
	s := &Service{caller: c, batcher: b, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "picking")
	return s
}

// UpdateStatus writes vals to every picking in ids. Pickings sharing the
// value set are written together; the report carries per-picking outcomes.
func (s *Service) UpdateStatus(ctx context.Context, ids []int64, vals value.Object) (*batch.BatchReport, error) {
	if len(ids) == 0 {
		return nil, &odoo.InvalidArgumentError{Op: "update picking status", Reason: "no picking ids"}
	}
	if len(vals) == 0 {
		return nil, &odoo.InvalidArgumentError{Op: "update picking status", Reason: "no fields to update"}
	}
	report := s.batcher.Run(ctx, batch.Requests(Model, ids, vals))
	s.logger.Info("picking status updated", "run_id", report.RunID, "pickings", len(ids), "ok", report.OK())
	return report, nil
}

// ValidateOptions control button_validate's context.
type ValidateOptions struct {
	SkipSMS         bool
	CancelBackorder bool
}

// DefaultValidateOptions skips SMS notifications and cancels backorders.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{SkipSMS: true, CancelBackorder: true}
}

func (o ValidateOptions) kwargs() map[string]any {
	return map[string]any{"context": map[string]any{
		"skip_sms":         o.SkipSMS,
		"skip_backorder":   o.CancelBackorder,
		"cancel_backorder": o.CancelBackorder,
	}}
}

// ValidateResult describes a completed validation.
type ValidateResult struct {
	PickingID int64       `json:"picking_id"`
	Result    value.Value `json:"result"`

	// Wizard is set when the backorder wizard had to be processed.
	Wizard   string  `json:"wizard,omitempty"`
	WizardID int64   `json:"wizard_id,omitempty"`
	PickIDs  []int64 `json:"pick_ids,omitempty"`

	// Backorder is true when remaining quantities were kept as a backorder.
	Backorder bool `json:"backorder"`
}

// Validate calls button_validate on one picking. If the server answers
// with the backorder wizard, the wizard is created for the pickings it
// names and processed, cancelling or keeping the backorder per opts. Any
// other wizard yields a WizardRequiredError.
func (s *Service) Validate(ctx context.Context, id int64, opts ValidateOptions) (*ValidateResult, error) {
	if id <= 0 {
		return nil, &odoo.InvalidArgumentError{Op: "validate picking", Reason: fmt.Sprintf("invalid picking id %d", id)}
	}
	kwargs := opts.kwargs()
	res, err := s.caller.CallMethod(ctx, Model, "button_validate", []any{[]int64{id}}, kwargs)
	if err != nil {
		return nil, err
	}
	out := &ValidateResult{PickingID: id, Result: res}

	action, ok := value.AsObject(res)
	if !ok {
		s.logger.Info("picking validated", "id", id)
		return out, nil
	}
	if typ, _ := value.AsString(action["type"]); typ != actWindow {
		s.logger.Info("picking validated", "id", id, "action", typ)
		return out, nil
	}
	wizard, _ := value.AsString(action["res_model"])
	if wizard != BackorderWizard {
		return nil, &WizardRequiredError{PickingID: id, Model: wizard, Action: action}
	}

	pickIDs := []int64{id}
	if actx, ok := value.AsObject(action["context"]); ok {
		if ids, ok := value.IntSlice(actx["default_pick_ids"]); ok && len(ids) > 0 {
			pickIDs = ids
		}
	}
	created, err := s.caller.CallMethod(ctx, BackorderWizard, "create",
		[]any{map[string]any{"pick_ids": []any{[]any{6, 0, pickIDs}}}}, kwargs)
	if err != nil {
		return nil, fmt.Errorf("create backorder wizard: %w", err)
	}
	wizardID, ok := createdID(created)
	if !ok {
		return nil, fmt.Errorf("create backorder wizard: unexpected result %s", value.KindOf(created))
	}

	method := "process"
	if opts.CancelBackorder {
		method = "process_cancel_backorder"
	}
	res, err = s.caller.CallMethod(ctx, BackorderWizard, method, []any{[]int64{wizardID}}, kwargs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	out.Result = res
	out.Wizard = BackorderWizard
	out.WizardID = wizardID
	out.PickIDs = pickIDs
	out.Backorder = !opts.CancelBackorder
	s.logger.Info("picking validated", "id", id, "wizard", wizardID, "pickings", pickIDs, "backorder", out.Backorder)
	return out, nil
}

// createdID reads the id create returns: a bare id, or a one-element list
// when called with a list of value sets.
func createdID(v value.Value) (int64, bool) {
	if ids, ok := value.IntSlice(v); ok {
		if len(ids) != 1 {
			return 0, false
		}
		return ids[0], true
	}
	return value.AsInt(v)
}

// RunHook calls a model-level method that takes a picking id, such as
// update_salla.
func (s *Service) RunHook(ctx context.Context, method string, id int64) (value.Value, error) {
	if method == "" {
		return nil, &odoo.InvalidArgumentError{Op: "run hook", Reason: "method is required"}
	}
	if id <= 0 {
		return nil, &odoo.InvalidArgumentError{Op: "run hook", Reason: fmt.Sprintf("invalid picking id %d", id)}
	}
	res, err := s.caller.CallMethod(ctx, Model, method, []any{id}, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info("hook called", "method", method, "id", id)
	return res, nil
}
