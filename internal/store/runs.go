package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/odoorpc/internal/batch"
	"github.com/roach88/odoorpc/internal/value"
)

// Run is a stored batch run.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Groups     int       `json:"groups"`
	Writes     int       `json:"writes"`
	Verified   bool      `json:"verified"`
	Summary    string    `json:"summary"`
	Items      []RunItem `json:"items,omitempty"`
}

// RunItem is the stored outcome of one record.
type RunItem struct {
	Ref    batch.RecordRef `json:"ref"`
	Status batch.Status    `json:"status"`
	Values value.Object    `json:"values"`
	Detail string          `json:"detail,omitempty"`
}

// WriteRun records a batch report. Writing the same run id twice is a
// no-op.
func (s *Store) WriteRun(ctx context.Context, report *batch.BatchReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO batch_runs (id, started_at, finished_at, group_count, write_count, verified, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		report.RunID,
		formatTime(report.StartedAt),
		formatTime(report.FinishedAt),
		report.Groups,
		report.Writes,
		report.Verified,
		report.Summary(),
	)
	if err != nil {
		return fmt.Errorf("write run %s: %w", report.RunID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("write run %s: %w", report.RunID, err)
	} else if n == 0 {
		return nil
	}

	for i, it := range report.Items {
		vals, err := value.Marshal(it.Values)
		if err != nil {
			return fmt.Errorf("write run %s item %s: %w", report.RunID, it.Ref, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO batch_items (run_id, position, model, record_id, status, vals, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, report.RunID, i, it.Ref.Model, it.Ref.ID, string(it.Status), string(vals), itemDetail(it)); err != nil {
			return fmt.Errorf("write run %s item %s: %w", report.RunID, it.Ref, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run %s: %w", report.RunID, err)
	}
	return nil
}

// itemDetail is the error text of a failed item, or the mismatched fields
// of one that failed verification.
func itemDetail(it batch.ItemResult) string {
	if len(it.Mismatches) > 0 {
		parts := make([]string, len(it.Mismatches))
		for i, m := range it.Mismatches {
			parts[i] = m.String()
		}
		return strings.Join(parts, "; ")
	}
	return it.Error
}

// ReadRun retrieves a run with its items.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, group_count, write_count, verified, summary
		FROM batch_runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT model, record_id, status, vals, detail
		FROM batch_items
		WHERE run_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return Run{}, fmt.Errorf("query run items: %w", err)
	}
	defer rows.Close()

	run.Items = []RunItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return Run{}, err
		}
		run.Items = append(run.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("iterate run items: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs without their items, newest
// first. A limit of zero or less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, group_count, write_count, verified, summary
		FROM batch_runs
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// RecordHistory returns every stored outcome for one record, oldest run
// first.
func (s *Store) RecordHistory(ctx context.Context, ref batch.RecordRef) ([]RunItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.model, i.record_id, i.status, i.vals, i.detail
		FROM batch_items i
		JOIN batch_runs r ON r.id = i.run_id
		WHERE i.model = ? AND i.record_id = ?
		ORDER BY r.seq ASC, i.position ASC
	`, ref.Model, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("query record history: %w", err)
	}
	defer rows.Close()

	out := []RunItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record history: %w", err)
	}
	return out, nil
}

func scanRun(row scanner) (Run, error) {
	var (
		run               Run
		started, finished string
	)
	if err := row.Scan(&run.ID, &started, &finished, &run.Groups, &run.Writes, &run.Verified, &run.Summary); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return run, nil
}

func scanItem(row scanner) (RunItem, error) {
	var (
		it     RunItem
		status string
		vals   string
	)
	if err := row.Scan(&it.Ref.Model, &it.Ref.ID, &status, &vals, &it.Detail); err != nil {
		return RunItem{}, fmt.Errorf("scan run item: %w", err)
	}
	it.Status = batch.Status(status)
	v, err := value.Decode([]byte(vals))
	if err != nil {
		return RunItem{}, fmt.Errorf("decode run item %s: %w", it.Ref, err)
	}
	it.Values, _ = value.AsObject(v)
	return it, nil
}
