package odoo

import (
	"github.com/roach88/odoorpc/internal/value"
)

// Whitelist is the ordered set of fields one read may return.
type Whitelist []string

// Fields builds a Whitelist, dropping empty names and duplicates while
// keeping first-seen order.
func Fields(names ...string) Whitelist {
	seen := make(map[string]bool, len(names))
	out := make(Whitelist, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Contains reports whether name is whitelisted.
func (w Whitelist) Contains(name string) bool {
	for _, f := range w {
		if f == name {
			return true
		}
	}
	return false
}

// Filter returns the whitelisted fields of rec. Fields missing from rec are
// omitted, not defaulted.
func (w Whitelist) Filter(rec value.Object) value.Object {
	return rec.Pick(w...)
}

func (w Whitelist) validate(op string) error {
	if len(Fields(w...)) == 0 {
		return &InvalidArgumentError{Op: op, Reason: "field whitelist must not be empty"}
	}
	return nil
}

func (w Whitelist) args() []string {
	return []string(Fields(w...))
}
