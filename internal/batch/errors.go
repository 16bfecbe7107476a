package batch

import (
	"errors"
	"fmt"
	"strings"
)

// UnknownFieldMappingError reports, in strict mode, a field that is neither
// an alias nor a known concrete field of the model.
type UnknownFieldMappingError struct {
	Model string
	ID    int64
	Field string
}

func (e *UnknownFieldMappingError) Error() string {
	return fmt.Sprintf("%s/%d: unknown field %q", e.Model, e.ID, e.Field)
}

// FieldConflictError reports an alias and its concrete field supplied with
// different values in the same request.
type FieldConflictError struct {
	Model string
	ID    int64
	Alias string
	Field string
}

func (e *FieldConflictError) Error() string {
	return fmt.Sprintf("%s/%d: %q and its alias %q carry different values", e.Model, e.ID, e.Field, e.Alias)
}

// InvalidRequestError reports a request that cannot be submitted at all.
type InvalidRequestError struct {
	Model  string
	ID     int64
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("%s/%d: invalid update request: %s", e.Model, e.ID, e.Reason)
}

// VerificationError reports a successful write whose read-back state does
// not match the written values.
type VerificationError struct {
	Ref        RecordRef
	Mismatches []Mismatch
}

func (e *VerificationError) Error() string {
	parts := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		parts = append(parts, m.String())
	}
	return fmt.Sprintf("%s: verification failed: %s", e.Ref, strings.Join(parts, "; "))
}

// IsVerification returns true if err is, or wraps, a VerificationError.
func IsVerification(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}
