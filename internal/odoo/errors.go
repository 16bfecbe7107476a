package odoo

import (
	"errors"
	"fmt"

	"github.com/roach88/odoorpc/internal/value"
)

// RecordNotFoundError reports records that do not exist remotely.
type RecordNotFoundError struct {
	Model string
	IDs   []int64
	Err   error
}

func (e *RecordNotFoundError) Error() string {
	msg := fmt.Sprintf("%s record %s not found", e.Model, formatIDs(e.IDs))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecordNotFoundError) Unwrap() error { return e.Err }

// WriteRejectedError reports a write the server refused, either with a
// fault or with a falsy result.
type WriteRejectedError struct {
	Model  string
	IDs    []int64
	Result value.Value
	Err    error
}

func (e *WriteRejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("write %s %s rejected: %v", e.Model, formatIDs(e.IDs), e.Err)
	}
	res, _ := value.MarshalCanonical(e.Result)
	return fmt.Sprintf("write %s %s rejected: server returned %s", e.Model, formatIDs(e.IDs), res)
}

func (e *WriteRejectedError) Unwrap() error { return e.Err }

// InvalidArgumentError reports a caller error detected before any request
// is sent.
type InvalidArgumentError struct {
	Op     string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// IsNotFound returns true if err is, or wraps, a RecordNotFoundError.
func IsNotFound(err error) bool {
	var nf *RecordNotFoundError
	return errors.As(err, &nf)
}

// IsWriteRejected returns true if err is, or wraps, a WriteRejectedError.
func IsWriteRejected(err error) bool {
	var wr *WriteRejectedError
	return errors.As(err, &wr)
}

func formatIDs(ids []int64) string {
	if len(ids) == 1 {
		return fmt.Sprintf("%d", ids[0])
	}
	return fmt.Sprintf("%v", ids)
}
