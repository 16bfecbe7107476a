package batch

import (
	"context"

	"github.com/roach88/odoorpc/internal/odoo"
	"github.com/roach88/odoorpc/internal/value"
)

// verify re-reads the written fields of one record and compares them with
// the intended values.
func (b *Batcher) verify(ctx context.Context, ref RecordRef, want value.Object) ([]Mismatch, error) {
	got, err := b.reader.ReadRecord(ctx, ref.Model, ref.ID, odoo.Fields(want.SortedKeys()...))
	if err != nil {
		return nil, err
	}
	var mismatches []Mismatch
	for _, field := range want.SortedKeys() {
		actual, ok := got[field]
		if !ok {
			actual = value.Null{}
		}
		if !persisted(want[field], actual) {
			mismatches = append(mismatches, Mismatch{Field: field, Want: want[field], Got: actual})
		}
	}
	return mismatches, nil
}

// persisted reports whether the server's read-back value got reflects a
// write of want. It follows the server's read conventions: empty fields
// read back as false, many2one fields read back as [id, name], and x2many
// command lists cannot be compared at all.
//
// Scalar numbers compare by numeric value, since a float field written
// with 5 reads back as 5.0. Everything else must be identical: strings
// compare byte for byte, so a server that normalizes "Cafe\u0301" into
// "Café" is reported as a mismatch rather than hidden.
func persisted(want, got value.Value) bool {
	if !value.Truthy(want) && !value.Truthy(got) {
		return true
	}
	if w, ok := want.(value.Bool); ok {
		return value.Truthy(got) == bool(w)
	}
	if w, ok := want.(value.Array); ok {
		if isCommandList(w) {
			return true
		}
	} else if id, ok := odoo.Many2OneID(got); ok {
		got = value.Int(id)
	}
	if isNumber(want) && isNumber(got) {
		w, _ := value.AsFloat(want)
		g, _ := value.AsFloat(got)
		return w == g
	}
	return value.Identical(want, got)
}

func isNumber(v value.Value) bool {
	switch v.(type) {
	case value.Int, value.Float:
		return true
	}
	return false
}

// isCommandList detects x2many write commands such as [[6, 0, ids]].
func isCommandList(arr value.Array) bool {
	if len(arr) == 0 {
		return false
	}
	_, ok := arr[0].(value.Array)
	return ok
}
