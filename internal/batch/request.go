package batch

import (
	"fmt"

	"github.com/roach88/odoorpc/internal/value"
)

// RecordRef identifies one remote record.
type RecordRef struct {
	Model string `json:"model"`
	ID    int64  `json:"id"`
}

func (r RecordRef) String() string {
	return fmt.Sprintf("%s/%d", r.Model, r.ID)
}

// UpdateRequest asks for Values to be written to one record. Field names may
// be aliases until the request is normalized.
type UpdateRequest struct {
	Model  string       `json:"model"`
	ID     int64        `json:"id"`
	Values value.Object `json:"values"`
}

// Ref returns the record the request targets.
func (r UpdateRequest) Ref() RecordRef {
	return RecordRef{Model: r.Model, ID: r.ID}
}

// Requests builds one request per id, all with the same values.
func Requests(model string, ids []int64, vals value.Object) []UpdateRequest {
	out := make([]UpdateRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, UpdateRequest{Model: model, ID: id, Values: vals.Clone()})
	}
	return out
}

// AliasTable maps model -> semantic field name -> concrete field name.
type AliasTable map[string]map[string]string

// DefaultAliases returns the built-in alias table.
func DefaultAliases() AliasTable {
	return AliasTable{
		"stock.move": {"quantity": "product_uom_qty"},
	}
}

// Resolve returns the concrete name for field on model.
func (t AliasTable) Resolve(model, field string) (string, bool) {
	concrete, ok := t[model][field]
	return concrete, ok
}

// Merge returns a new table with other's entries layered over t's.
func (t AliasTable) Merge(other AliasTable) AliasTable {
	out := make(AliasTable, len(t)+len(other))
	for _, src := range []AliasTable{t, other} {
		for model, aliases := range src {
			if out[model] == nil {
				out[model] = make(map[string]string, len(aliases))
			}
			for alias, field := range aliases {
				out[model][alias] = field
			}
		}
	}
	return out
}
