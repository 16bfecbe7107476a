package snapshot

import (
	"context"
	"log/slog"

	"github.com/roach88/odoorpc/internal/odoo"
	"github.com/roach88/odoorpc/internal/value"
)

// Reader is the read side of the façade. *odoo.Client implements it.
type Reader interface {
	ReadRecord(ctx context.Context, model string, id int64, fields odoo.Whitelist) (value.Object, error)
	SearchRead(ctx context.Context, model string, domain odoo.Domain, fields odoo.Whitelist, opts odoo.SearchOptions) ([]value.Object, error)
	ReadAllRecords(ctx context.Context, model string, domain odoo.Domain, fields odoo.Whitelist) ([]value.Object, error)
}

// Fetcher builds snapshots from remote reads.
type Fetcher struct {
	r             Reader
	pickingFields odoo.Whitelist
	moveFields    odoo.Whitelist
	statusFields  odoo.Whitelist
	logger        *slog.Logger
}

// FetchOption configures a Fetcher.
type FetchOption func(*Fetcher)

// WithPickingFields overrides the picking whitelist. The move link field is
// always read.
func WithPickingFields(fields odoo.Whitelist) FetchOption {
	return func(f *Fetcher) { f.pickingFields = fields }
}

// WithMoveFields overrides the move whitelist.
func WithMoveFields(fields odoo.Whitelist) FetchOption {
	return func(f *Fetcher) { f.moveFields = fields }
}

// WithStatusFields overrides the status whitelist.
func WithStatusFields(fields odoo.Whitelist) FetchOption {
	return func(f *Fetcher) { f.statusFields = fields }
}

// WithFetchLogger sets the logger.
func WithFetchLogger(l *slog.Logger) FetchOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher with the default whitelists.
func NewFetcher(r Reader, opts ...FetchOption) *Fetcher {
	f := &Fetcher{
		r:             r,
		pickingFields: DefaultPickingFields,
		moveFields:    DefaultMoveFields,
		statusFields:  DefaultStatusFields,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Picking reads one picking and its moves.
func (f *Fetcher) Picking(ctx context.Context, id int64) (*Picking, error) {
	fields := odoo.Fields(append(append([]string{}, f.pickingFields...), LinkField)...)
	rec, err := f.r.ReadRecord(ctx, ModelPicking, id, fields)
	if err != nil {
		return nil, err
	}

	// An empty one2many reads back as [] or false.
	moveIDs, _ := value.IntSlice(rec[LinkField])
	p := &Picking{
		Parent:  rec.Without(LinkField),
		MoveIDs: moveIDs,
		Moves:   []value.Object{},
	}
	if p.MoveIDs == nil {
		p.MoveIDs = []int64{}
	}
	if len(moveIDs) > 0 {
		moves, err := f.r.SearchRead(ctx, ModelMove, odoo.IDIn(moveIDs...), f.moveFields, odoo.SearchOptions{})
		if err != nil {
			return nil, err
		}
		p.Moves = moves
	}
	f.logger.Info("fetched picking", "id", id, "name", p.Name(), "moves", len(p.Moves))
	return p, nil
}

// Statuses reads every order status as reference-data entries.
func (f *Fetcher) Statuses(ctx context.Context) ([]value.Object, error) {
	records, err := f.r.ReadAllRecords(ctx, ModelStatus, odoo.Domain{}, f.statusFields)
	if err != nil {
		return nil, err
	}
	out := make([]value.Object, len(records))
	for i, rec := range records {
		out[i] = StatusEntry(rec)
	}
	f.logger.Info("fetched order statuses", "count", len(out))
	return out, nil
}
