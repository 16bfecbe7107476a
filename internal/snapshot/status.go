package snapshot

import (
	"fmt"

	"github.com/roach88/odoorpc/internal/odoo"
	"github.com/roach88/odoorpc/internal/value"
)

// DefaultStatusFields is the order-status whitelist.
var DefaultStatusFields = odoo.Fields("id", "salla_status_id", "name", "type", "slug")

// statusRenames maps remote field names to document names.
var statusRenames = map[string]string{"salla_status_id": "externalStatusId"}

// StatusKeys are the exact keys of every reference-data entry.
var StatusKeys = []string{"id", "externalStatusId", "name", "type", "slug"}

// StatusEntry converts one remote status record to its document form:
// exactly StatusKeys, with absent fields as null.
func StatusEntry(rec value.Object) value.Object {
	renamed := make(value.Object, len(rec))
	for k, v := range rec {
		if to, ok := statusRenames[k]; ok {
			k = to
		}
		renamed[k] = v
	}
	out := make(value.Object, len(StatusKeys))
	for _, k := range StatusKeys {
		if v, ok := renamed[k]; ok {
			out[k] = v
		} else {
			out[k] = value.Null{}
		}
	}
	return out
}

// StatusArray wraps entries as a document value.
func StatusArray(entries []value.Object) value.Array {
	arr := make(value.Array, len(entries))
	for i, e := range entries {
		arr[i] = e
	}
	return arr
}

// DecodeStatuses parses a reference-data document.
func DecodeStatuses(data []byte) ([]value.Object, error) {
	v, err := value.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode status list: %w", err)
	}
	arr, ok := value.AsArray(v)
	if !ok {
		return nil, fmt.Errorf("status list: expected array, got %s", value.KindOf(v))
	}
	out := make([]value.Object, 0, len(arr))
	for i, elem := range arr {
		obj, ok := value.AsObject(elem)
		if !ok {
			return nil, fmt.Errorf("status list[%d]: expected object, got %s", i, value.KindOf(elem))
		}
		if len(obj) != len(StatusKeys) {
			return nil, fmt.Errorf("status list[%d]: expected fields %v", i, StatusKeys)
		}
		for _, k := range StatusKeys {
			if _, ok := obj[k]; !ok {
				return nil, fmt.Errorf("status list[%d]: missing %q", i, k)
			}
		}
		out = append(out, obj)
	}
	return out, nil
}
