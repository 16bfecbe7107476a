package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/odoorpc/internal/odoo"
	"github.com/roach88/odoorpc/internal/telemetry"
	"github.com/roach88/odoorpc/internal/value"
)

// Writer issues writes. *odoo.Client implements it.
type Writer interface {
	WriteRecords(ctx context.Context, model string, ids []int64, vals value.Object) (bool, error)
}

// Reader reads records back for verification. *odoo.Client implements it.
type Reader interface {
	ReadRecord(ctx context.Context, model string, id int64, fields odoo.Whitelist) (value.Object, error)
}

// Batcher normalizes, groups, and submits update requests.
type Batcher struct {
	writer  Writer
	reader  Reader
	norm    Normalizer
	multiID bool
	runIDs  RunIDGenerator
	now     func() time.Time
	logger  *slog.Logger
	tel     *telemetry.Manager
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithAliases sets the alias table. Default: DefaultAliases().
func WithAliases(t AliasTable) Option {
	return func(b *Batcher) { b.norm.Aliases = t }
}

// WithStrict enables strict normalization: fields must be aliases or appear
// in known for their model.
func WithStrict(known map[string][]string) Option {
	return func(b *Batcher) {
		b.norm.Strict = true
		b.norm.Known = known
	}
}

// WithMultiID controls whether a group is written in one call. Default true.
func WithMultiID(enabled bool) Option {
	return func(b *Batcher) { b.multiID = enabled }
}

// WithVerification enables the read-back pass through r.
func WithVerification(r Reader) Option {
	return func(b *Batcher) { b.reader = r }
}

// WithRunIDs sets the run id generator. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(b *Batcher) { b.runIDs = g }
}

// WithClock sets the time source for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Batcher) { b.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Batcher) { b.logger = l }
}

// WithTelemetry records spans and per-record outcome counters.
func WithTelemetry(m *telemetry.Manager) Option {
	return func(b *Batcher) { b.tel = m }
}

// New creates a Batcher that writes through w.
func New(w Writer, opts ...Option) *Batcher {
	b := &Batcher{
		writer:  w,
		norm:    Normalizer{Aliases: DefaultAliases()},
		multiID: true,
		runIDs:  UUIDv7Generator{},
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "batch")
	return b
}

// Normalize resolves aliases in reqs. See Normalizer.
func (b *Batcher) Normalize(reqs []UpdateRequest) ([]UpdateRequest, error) {
	return b.norm.Normalize(reqs)
}

// Plan is the result of validating, normalizing, and grouping requests.
type Plan struct {
	Groups []UpdateGroup

	// Rejected holds requests that failed validation or normalization, in
	// input order. They are reported as failures without being written.
	Rejected []ItemResult
}

// Plan validates, normalizes, and groups reqs. A bad request is rejected
// on its own; the rest are still planned.
//
// A record may appear once in the plan. A repeat with identical values is
// dropped; a repeat with different values is rejected and the first
// request for the record is kept.
func (b *Batcher) Plan(reqs []UpdateRequest) *Plan {
	plan := &Plan{}
	valid := make([]UpdateRequest, 0, len(reqs))
	seen := make(map[RecordRef]value.Object)
	for _, req := range reqs {
		norm, err := b.prepare(req)
		if err == nil {
			if prev, ok := seen[norm.Ref()]; ok {
				if value.Identical(prev, norm.Values) {
					b.logger.Debug("duplicate update request dropped", "model", req.Model, "id", req.ID)
					continue
				}
				err = &InvalidRequestError{Model: req.Model, ID: req.ID, Reason: "conflicting duplicate request"}
			}
		}
		if err != nil {
			plan.Rejected = append(plan.Rejected, ItemResult{
				Ref:    req.Ref(),
				Values: req.Values,
				Status: StatusFailed,
				Err:    err,
				Error:  err.Error(),
			})
			continue
		}
		seen[norm.Ref()] = norm.Values
		valid = append(valid, norm)
	}
	// Every valid request has an encodable value set and a unique ref.
	plan.Groups, _ = Group(valid)
	return plan
}

func (b *Batcher) prepare(req UpdateRequest) (UpdateRequest, error) {
	switch {
	case req.Model == "":
		return req, &InvalidRequestError{Model: req.Model, ID: req.ID, Reason: "missing model"}
	case req.ID <= 0:
		return req, &InvalidRequestError{Model: req.Model, ID: req.ID, Reason: "record id must be positive"}
	case len(req.Values) == 0:
		return req, &InvalidRequestError{Model: req.Model, ID: req.ID, Reason: "no fields to update"}
	}
	norm, err := b.norm.normalizeOne(req)
	if err != nil {
		return req, err
	}
	if _, err := value.MarshalExact(norm.Values); err != nil {
		return req, &InvalidRequestError{Model: req.Model, ID: req.ID, Reason: err.Error()}
	}
	return norm, nil
}

// Run plans and submits reqs. Rejected requests appear in the report as
// failures after the submitted ones.
func (b *Batcher) Run(ctx context.Context, reqs []UpdateRequest) *BatchReport {
	plan := b.Plan(reqs)
	report := b.submit(ctx, plan.Groups)
	for _, item := range plan.Rejected {
		b.logger.Warn("update request rejected", "model", item.Ref.Model, "id", item.Ref.ID, "error", item.Error)
		report.add(item)
	}
	b.recordTelemetry(ctx, report)
	return report
}

// Submit writes each group and returns per-record outcomes. A group is
// written with one multi-id call when enabled; if that call fails, each
// member is retried alone so one bad record fails only itself.
func (b *Batcher) Submit(ctx context.Context, groups []UpdateGroup) *BatchReport {
	report := b.submit(ctx, groups)
	b.recordTelemetry(ctx, report)
	return report
}

func (b *Batcher) submit(ctx context.Context, groups []UpdateGroup) *BatchReport {
	report := &BatchReport{
		RunID:     b.runIDs.Generate(),
		StartedAt: b.now(),
		Groups:    len(groups),
		Verified:  b.reader != nil,
	}
	ctx, span := b.tel.StartSpan(ctx, "batch.submit",
		attribute.String("batch.run_id", report.RunID),
		attribute.Int("batch.groups", len(groups)),
	)

	logger := b.logger.With("run_id", report.RunID)
	for _, g := range groups {
		for _, item := range b.submitGroup(ctx, logger, g, report) {
			report.add(item)
		}
	}
	report.FinishedAt = b.now()

	c := report.Counts()
	logger.Info("batch submitted",
		"groups", report.Groups,
		"writes", report.Writes,
		"ok", c[StatusOK],
		"failed", c[StatusFailed],
		"mismatch", c[StatusMismatch],
		"unverified", c[StatusUnverified],
	)
	var spanErr error
	if !report.OK() {
		spanErr = fmt.Errorf("%d of %d records not ok", len(report.Items)-c[StatusOK], len(report.Items))
	}
	telemetry.EndSpan(span, spanErr)
	return report
}

func (b *Batcher) submitGroup(ctx context.Context, logger *slog.Logger, g UpdateGroup, report *BatchReport) []ItemResult {
	items := make([]ItemResult, len(g.Members))
	for i, id := range g.Members {
		items[i] = ItemResult{Ref: RecordRef{Model: g.Model, ID: id}, Values: g.Values}
	}

	written := false
	if b.multiID && len(g.Members) > 1 {
		report.Writes++
		_, err := b.writer.WriteRecords(ctx, g.Model, g.Members, g.Values)
		if err == nil {
			written = true
			for i := range items {
				items[i].Status = StatusOK
			}
		} else {
			logger.Warn("group write failed, retrying records individually",
				"model", g.Model, "ids", g.Members, "error", b.tel.MaskText(err.Error()))
		}
	}
	if !written {
		for i := range items {
			if err := ctx.Err(); err != nil {
				items[i].Status, items[i].Err = StatusFailed, err
				continue
			}
			report.Writes++
			if _, err := b.writer.WriteRecords(ctx, g.Model, []int64{items[i].Ref.ID}, g.Values); err != nil {
				logger.Warn("write failed", "model", g.Model, "id", items[i].Ref.ID, "error", b.tel.MaskText(err.Error()))
				items[i].Status, items[i].Err = StatusFailed, err
				continue
			}
			items[i].Status = StatusOK
		}
	}

	if b.reader == nil {
		return items
	}
	for i := range items {
		if items[i].Status != StatusOK {
			continue
		}
		mismatches, err := b.verify(ctx, items[i].Ref, g.Values)
		switch {
		case err != nil:
			items[i].Status, items[i].Err = StatusUnverified, fmt.Errorf("verify: %w", err)
		case len(mismatches) > 0:
			items[i].Status = StatusMismatch
			items[i].Mismatches = mismatches
			items[i].Err = &VerificationError{Ref: items[i].Ref, Mismatches: mismatches}
		}
	}
	return items
}

func (b *Batcher) recordTelemetry(ctx context.Context, report *BatchReport) {
	per := make(map[string]*telemetry.BatchData)
	var order []string
	for _, it := range report.Items {
		d, ok := per[it.Ref.Model]
		if !ok {
			d = &telemetry.BatchData{Model: it.Ref.Model}
			per[it.Ref.Model] = d
			order = append(order, it.Ref.Model)
		}
		switch it.Status {
		case StatusOK:
			d.Succeeded++
		case StatusFailed:
			d.Failed++
		default:
			d.Mismatched++
		}
	}
	for _, model := range order {
		b.tel.RecordBatch(ctx, *per[model])
	}
}
