package odoo

import "github.com/roach88/odoorpc/internal/value"

// Domain is a search filter passed to the server verbatim. Terms are
// [field, operator, value] triples or prefix operators such as "|".
type Domain []any

// Cond builds one [field, operator, value] term.
func Cond(field, op string, v any) []any {
	return []any{field, op, v}
}

// IDIn matches the given record ids.
func IDIn(ids ...int64) Domain {
	return Domain{Cond("id", "in", ids)}
}

func (d Domain) arg() []any {
	if d == nil {
		return []any{}
	}
	return []any(d)
}

// Many2OneID extracts the record id from a many2one value, which the server
// reads back as [id, display_name] and accepts on write as a bare id.
func Many2OneID(v value.Value) (int64, bool) {
	if arr, ok := value.AsArray(v); ok {
		if len(arr) != 2 {
			return 0, false
		}
		return value.AsInt(arr[0])
	}
	return value.AsInt(v)
}
