package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Validate checks c against the embedded schema. All violations are
// reported together.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.Encode(c.schemaView())
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Problems: problems(err)}
	}
	return nil
}

// schemaView is the plain form the schema constrains. Durations are
// nanoseconds.
func (c *Config) schemaView() map[string]any {
	whitelists := make(map[string]any, len(c.Whitelists))
	for m, f := range c.Whitelists {
		whitelists[m] = nonNilStrings(f)
	}
	aliases := make(map[string]any, len(c.Aliases))
	for m, a := range c.Aliases {
		aliases[m] = a
	}
	records := make([]any, len(c.Updates.Records))
	for i, r := range c.Updates.Records {
		records[i] = r
	}
	ids := make([]any, len(c.Pickings.IDs))
	for i, id := range c.Pickings.IDs {
		ids[i] = id
	}
	fields := c.Pickings.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return map[string]any{
		"odoo": map[string]any{
			"url":      c.Odoo.URL,
			"database": c.Odoo.Database,
			"username": c.Odoo.Username,
			"password": c.Odoo.Password,
			"timeout":  int64(c.Odoo.Timeout),
		},
		"whitelists": whitelists,
		"aliases":    aliases,
		"batch": map[string]any{
			"multi_id": c.Batch.MultiID,
			"verify":   c.Batch.Verify,
			"strict":   c.Batch.Strict,
		},
		"store":  map[string]any{"path": c.Store.Path},
		"output": map[string]any{"dir": c.Output.Dir},
		"telemetry": map[string]any{
			"enabled":      c.Telemetry.Enabled,
			"service_name": c.Telemetry.ServiceName,
			"exporter":     c.Telemetry.Exporter,
			"endpoint":     c.Telemetry.Endpoint,
		},
		"updates": map[string]any{
			"model":   c.Updates.Model,
			"records": records,
		},
		"pickings": map[string]any{
			"ids":    ids,
			"fields": fields,
			"hook":   c.Pickings.Hook,
		},
	}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// problems flattens a CUE error into one line per violation, sorted.
func problems(err error) []string {
	var out []string
	for _, e := range cueerrors.Errors(err) {
		path := strings.Join(e.Path(), ".")
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path != "" {
			msg = path + ": " + msg
		}
		out = append(out, msg)
	}
	sort.Strings(out)
	return out
}
