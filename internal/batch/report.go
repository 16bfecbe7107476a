package batch

import (
	"fmt"
	"time"

	"github.com/roach88/odoorpc/internal/value"
)

// Status is the outcome of one record in a batch.
type Status string

const (
	// StatusOK means the write succeeded (and verified, if verification ran).
	StatusOK Status = "ok"

	// StatusFailed means the write, or the request itself, was rejected.
	StatusFailed Status = "failed"

	// StatusMismatch means the write succeeded but read-back values differ.
	StatusMismatch Status = "mismatch"

	// StatusUnverified means the write succeeded but the read-back failed.
	StatusUnverified Status = "unverified"
)

// Mismatch is one field whose persisted value differs from the written one.
type Mismatch struct {
	Field string      `json:"field"`
	Want  value.Value `json:"want"`
	Got   value.Value `json:"got"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s = %s (expected %s)", m.Field, render(m.Got), render(m.Want))
}

// ItemResult is the outcome for one record.
type ItemResult struct {
	Ref        RecordRef    `json:"ref"`
	Values     value.Object `json:"values"`
	Status     Status       `json:"status"`
	Error      string       `json:"error,omitempty"`
	Mismatches []Mismatch   `json:"mismatches,omitempty"`

	// Err is the typed cause behind Error.
	Err error `json:"-"`
}

// BatchReport aggregates per-record outcomes of one submission.
type BatchReport struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Groups     int          `json:"groups"`
	Writes     int          `json:"writes"`
	Verified   bool         `json:"verified"`
	Items      []ItemResult `json:"items"`
}

func (r *BatchReport) add(item ItemResult) {
	if item.Err != nil {
		item.Error = item.Err.Error()
	}
	r.Items = append(r.Items, item)
}

// Succeeded returns the records whose write succeeded, including those that
// later failed verification.
func (r *BatchReport) Succeeded() []RecordRef {
	var out []RecordRef
	for _, it := range r.Items {
		if it.Status != StatusFailed {
			out = append(out, it.Ref)
		}
	}
	return out
}

// Failed maps each record whose write failed to its error.
func (r *BatchReport) Failed() map[RecordRef]error {
	out := make(map[RecordRef]error)
	for _, it := range r.Items {
		if it.Status == StatusFailed {
			out[it.Ref] = it.Err
		}
	}
	return out
}

// Mismatched maps each record that failed verification to its error.
func (r *BatchReport) Mismatched() map[RecordRef]error {
	out := make(map[RecordRef]error)
	for _, it := range r.Items {
		if it.Status == StatusMismatch || it.Status == StatusUnverified {
			out[it.Ref] = it.Err
		}
	}
	return out
}

// Counts returns the number of items per status.
func (r *BatchReport) Counts() map[Status]int {
	out := make(map[Status]int, 4)
	for _, it := range r.Items {
		out[it.Status]++
	}
	return out
}

// OK reports whether every record was written and, if verification ran,
// verified.
func (r *BatchReport) OK() bool {
	for _, it := range r.Items {
		if it.Status != StatusOK {
			return false
		}
	}
	return true
}

// Lines renders one report line per record.
func (r *BatchReport) Lines() []string {
	lines := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		line := fmt.Sprintf("%-10s %s", it.Status, it.Ref)
		switch {
		case it.Status == StatusOK:
			line += " " + render(it.Values)
		case it.Error != "":
			line += ": " + it.Error
		}
		lines = append(lines, line)
	}
	return lines
}

// Summary renders a one-line count of outcomes.
func (r *BatchReport) Summary() string {
	c := r.Counts()
	return fmt.Sprintf("run %s: %d ok, %d failed, %d mismatch, %d unverified (%d groups, %d writes)",
		r.RunID, c[StatusOK], c[StatusFailed], c[StatusMismatch], c[StatusUnverified], r.Groups, r.Writes)
}

func render(v value.Value) string {
	b, err := value.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%s>", value.KindOf(v))
	}
	return string(b)
}
