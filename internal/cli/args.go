package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/odoorpc/internal/batch"
	"github.com/roach88/odoorpc/internal/value"
)

// parseID parses a positive record id argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid record id %q", s))
	}
	return id, nil
}

// parseIDs parses every argument as a record id.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseAssignments parses field=value pairs. Values that are valid JSON
// are decoded (so 5, true, and [1,2] keep their types); anything else is
// a string.
func parseAssignments(pairs []string) (value.Object, error) {
	out := make(value.Object, len(pairs))
	for _, p := range pairs {
		field, raw, ok := strings.Cut(p, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid assignment %q: want field=value", p))
		}
		v, err := value.Decode([]byte(raw))
		if err != nil {
			v = value.String(raw)
		}
		out[field] = v
	}
	return out, nil
}

// parseRef parses model/id.
func parseRef(s string) (batch.RecordRef, error) {
	model, rawID, ok := strings.Cut(s, "/")
	if !ok || model == "" {
		return batch.RecordRef{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid record %q: want model/id", s))
	}
	id, err := parseID(rawID)
	if err != nil {
		return batch.RecordRef{}, err
	}
	return batch.RecordRef{Model: model, ID: id}, nil
}

// parseJSONArray decodes a JSON array flag into positional arguments.
func parseJSONArray(flag, raw string) ([]any, error) {
	v, err := value.Decode([]byte(raw))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --%s JSON", flag), err)
	}
	arr, ok := value.AsArray(v)
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("--%s must be a JSON array, got %s", flag, value.KindOf(v)))
	}
	out := make([]any, len(arr))
	for i, elem := range arr {
		out[i] = elem
	}
	return out, nil
}

// parseJSONObject decodes a JSON object flag into keyword arguments.
func parseJSONObject(flag, raw string) (map[string]any, error) {
	v, err := value.Decode([]byte(raw))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --%s JSON", flag), err)
	}
	obj, ok := value.AsObject(v)
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("--%s must be a JSON object, got %s", flag, value.KindOf(v)))
	}
	out := make(map[string]any, len(obj))
	for k, elem := range obj {
		out[k] = elem
	}
	return out, nil
}
