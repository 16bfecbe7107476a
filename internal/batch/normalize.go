package batch

import (
	"errors"

	"github.com/roach88/odoorpc/internal/value"
)

// Normalizer resolves semantic field aliases to concrete field names.
//
// In permissive mode (the default) unknown fields pass through unchanged.
// In strict mode every field must be an alias or listed in Known for the
// request's model.
type Normalizer struct {
	Aliases AliasTable
	Strict  bool
	Known   map[string][]string
}

// Normalize returns normalized copies of reqs. The input is not modified.
// All request errors are reported together.
func (n Normalizer) Normalize(reqs []UpdateRequest) ([]UpdateRequest, error) {
	out := make([]UpdateRequest, 0, len(reqs))
	var errs []error
	for _, req := range reqs {
		norm, err := n.normalizeOne(req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, norm)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (n Normalizer) normalizeOne(req UpdateRequest) (UpdateRequest, error) {
	vals := make(value.Object, len(req.Values))
	aliasOf := make(map[string]string)

	// Concrete keys first so a conflicting alias is always the one blamed.
	keys := req.Values.SortedKeys()
	for _, pass := range []bool{false, true} {
		for _, field := range keys {
			concrete, isAlias := n.Aliases.Resolve(req.Model, field)
			if isAlias != pass {
				continue
			}
			if !isAlias {
				if n.Strict && !n.known(req.Model, field) {
					return UpdateRequest{}, &UnknownFieldMappingError{Model: req.Model, ID: req.ID, Field: field}
				}
				vals[field] = req.Values[field]
				continue
			}
			if existing, ok := vals[concrete]; ok {
				if !value.Identical(existing, req.Values[field]) {
					alias := field
					if prev, ok := aliasOf[concrete]; ok {
						alias = prev + ", " + field
					}
					return UpdateRequest{}, &FieldConflictError{Model: req.Model, ID: req.ID, Alias: alias, Field: concrete}
				}
				continue
			}
			vals[concrete] = req.Values[field]
			aliasOf[concrete] = field
		}
	}
	return UpdateRequest{Model: req.Model, ID: req.ID, Values: vals}, nil
}

func (n Normalizer) known(model, field string) bool {
	for _, f := range n.Known[model] {
		if f == field {
			return true
		}
	}
	return false
}
