package odoo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/odoorpc/internal/rpc"
	"github.com/roach88/odoorpc/internal/value"
)

// Invoker dispatches one model method. *rpc.Transport implements it.
type Invoker interface {
	Invoke(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error)
}

// SearchOptions bounds a search_read.
type SearchOptions struct {
	Limit  int
	Offset int
	Order  string
}

func (o SearchOptions) apply(kwargs map[string]any) {
	if o.Limit > 0 {
		kwargs["limit"] = o.Limit
	}
	if o.Offset > 0 {
		kwargs["offset"] = o.Offset
	}
	if o.Order != "" {
		kwargs["order"] = o.Order
	}
}

// Client is the read/write façade over an authenticated transport. It never
// touches session state directly.
type Client struct {
	inv    Invoker
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New wraps inv in a Client.
func New(inv Invoker, opts ...Option) *Client {
	c := &Client{inv: inv, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "odoo")
	return c
}

// ReadRecord reads one record restricted to the whitelisted fields.
func (c *Client) ReadRecord(ctx context.Context, model string, id int64, fields Whitelist) (value.Object, error) {
	const op = "read record"
	if err := fields.validate(op); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, &InvalidArgumentError{Op: op, Reason: fmt.Sprintf("record id must be positive, got %d", id)}
	}

	records, err := c.readRaw(ctx, model, []int64{id}, map[string]any{"fields": fields.args()})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &RecordNotFoundError{Model: model, IDs: []int64{id}}
	}
	return fields.Filter(records[0]), nil
}

// SearchRead returns the records matching domain, each restricted to the
// whitelisted fields, in server order.
func (c *Client) SearchRead(ctx context.Context, model string, domain Domain, fields Whitelist, opts SearchOptions) ([]value.Object, error) {
	if err := fields.validate("search read"); err != nil {
		return nil, err
	}
	kwargs := map[string]any{"fields": fields.args()}
	opts.apply(kwargs)

	records, err := c.searchReadRaw(ctx, model, domain, kwargs)
	if err != nil {
		return nil, err
	}
	for i, rec := range records {
		records[i] = fields.Filter(rec)
	}
	return records, nil
}

// ReadAllRecords is SearchRead without a limit. Use it only for small
// reference datasets.
func (c *Client) ReadAllRecords(ctx context.Context, model string, domain Domain, fields Whitelist) ([]value.Object, error) {
	return c.SearchRead(ctx, model, domain, fields, SearchOptions{})
}

// ReadRecordAllFields reads every field of one record, bypassing the
// whitelist. Exploration only.
func (c *Client) ReadRecordAllFields(ctx context.Context, model string, id int64) (value.Object, error) {
	if id <= 0 {
		return nil, &InvalidArgumentError{Op: "read all fields", Reason: fmt.Sprintf("record id must be positive, got %d", id)}
	}
	c.logger.Warn("reading without field whitelist", "model", model, "id", id, "unrestricted", true)

	records, err := c.readRaw(ctx, model, []int64{id}, map[string]any{})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &RecordNotFoundError{Model: model, IDs: []int64{id}}
	}
	return records[0], nil
}

// SearchReadAllFields is the unrestricted counterpart of SearchRead.
// Exploration only.
func (c *Client) SearchReadAllFields(ctx context.Context, model string, domain Domain, opts SearchOptions) ([]value.Object, error) {
	c.logger.Warn("searching without field whitelist", "model", model, "unrestricted", true)
	kwargs := map[string]any{}
	opts.apply(kwargs)
	return c.searchReadRaw(ctx, model, domain, kwargs)
}

// FieldsGet returns the model's field definitions, optionally limited to
// the given attributes (such as "type" or "string").
func (c *Client) FieldsGet(ctx context.Context, model string, attributes ...string) (value.Object, error) {
	kwargs := map[string]any{}
	if len(attributes) > 0 {
		kwargs["attributes"] = attributes
	}
	v, err := c.CallMethod(ctx, model, "fields_get", nil, kwargs)
	if err != nil {
		return nil, err
	}
	obj, ok := value.AsObject(v)
	if !ok {
		return nil, fmt.Errorf("fields_get %s: expected object, got %s", model, value.KindOf(v))
	}
	return obj, nil
}

// WriteRecord writes vals to one record.
func (c *Client) WriteRecord(ctx context.Context, model string, id int64, vals value.Object) (bool, error) {
	return c.WriteRecords(ctx, model, []int64{id}, vals)
}

// WriteRecords writes the same vals to every id in one call. A missing
// record fails the whole call with RecordNotFoundError; any other fault or
// a falsy result yields WriteRejectedError.
func (c *Client) WriteRecords(ctx context.Context, model string, ids []int64, vals value.Object) (bool, error) {
	const op = "write"
	if len(ids) == 0 {
		return false, &InvalidArgumentError{Op: op, Reason: "no record ids"}
	}
	for _, id := range ids {
		if id <= 0 {
			return false, &InvalidArgumentError{Op: op, Reason: fmt.Sprintf("record id must be positive, got %d", id)}
		}
	}
	if len(vals) == 0 {
		return false, &InvalidArgumentError{Op: op, Reason: "no field values"}
	}

	raw, err := c.inv.Invoke(ctx, model, "write", []any{ids, vals}, nil)
	if err != nil {
		if fault, ok := remoteFault(err); ok {
			if fault.Missing() {
				return false, &RecordNotFoundError{Model: model, IDs: ids, Err: err}
			}
			return false, &WriteRejectedError{Model: model, IDs: ids, Err: err}
		}
		return false, err
	}
	res, err := value.Decode(raw)
	if err != nil {
		return false, fmt.Errorf("decode write result: %w", err)
	}
	if !value.Truthy(res) {
		return false, &WriteRejectedError{Model: model, IDs: ids, Result: res}
	}
	c.logger.Debug("wrote records", "model", model, "ids", ids, "fields", vals.SortedKeys())
	return true, nil
}

// CallMethod invokes an arbitrary model method. No whitelist applies; the
// caller interprets the result.
func (c *Client) CallMethod(ctx context.Context, model, method string, args []any, kwargs map[string]any) (value.Value, error) {
	raw, err := c.inv.Invoke(ctx, model, method, args, kwargs)
	if err != nil {
		return nil, err
	}
	v, err := value.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s.%s result: %w", model, method, err)
	}
	return v, nil
}

func (c *Client) readRaw(ctx context.Context, model string, ids []int64, kwargs map[string]any) ([]value.Object, error) {
	raw, err := c.inv.Invoke(ctx, model, "read", []any{ids}, kwargs)
	if err != nil {
		if fault, ok := remoteFault(err); ok && fault.Missing() {
			return nil, &RecordNotFoundError{Model: model, IDs: ids, Err: err}
		}
		return nil, err
	}
	return decodeRecords(raw, model, "read")
}

func (c *Client) searchReadRaw(ctx context.Context, model string, domain Domain, kwargs map[string]any) ([]value.Object, error) {
	raw, err := c.inv.Invoke(ctx, model, "search_read", []any{domain.arg()}, kwargs)
	if err != nil {
		return nil, err
	}
	return decodeRecords(raw, model, "search_read")
}

func decodeRecords(raw json.RawMessage, model, method string) ([]value.Object, error) {
	v, err := value.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s.%s result: %w", model, method, err)
	}
	if _, ok := v.(value.Null); ok {
		return []value.Object{}, nil
	}
	arr, ok := value.AsArray(v)
	if !ok {
		return nil, fmt.Errorf("%s.%s: expected list of records, got %s", model, method, value.KindOf(v))
	}
	out := make([]value.Object, 0, len(arr))
	for i, elem := range arr {
		rec, ok := value.AsObject(elem)
		if !ok {
			return nil, fmt.Errorf("%s.%s: record %d is %s, not an object", model, method, i, value.KindOf(elem))
		}
		out = append(out, rec)
	}
	return out, nil
}

// remoteFault extracts a model-level fault. Session and login failures are
// not model faults even when they wrap one.
func remoteFault(err error) (rpc.Fault, bool) {
	if rpc.IsSessionExpired(err) || rpc.IsAuthentication(err) {
		return rpc.Fault{}, false
	}
	if re, ok := rpc.AsRPCError(err); ok {
		return re.Fault, true
	}
	return rpc.Fault{}, false
}
