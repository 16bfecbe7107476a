package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/odoorpc/internal/value"
)

// Snapshot is one stored snapshot document.
type Snapshot struct {
	Seq       int64       `json:"seq"`
	Digest    string      `json:"digest"`
	Model     string      `json:"model"`
	RecordID  int64       `json:"record_id"`
	Document  value.Value `json:"document"`
	CreatedAt time.Time   `json:"created_at"`
}

// PutSnapshot stores doc under its content digest. Storing a document that
// is already present is a no-op; inserted reports whether a row was added.
// The returned Snapshot is the stored row in either case.
func (s *Store) PutSnapshot(ctx context.Context, model string, recordID int64, doc value.Value, createdAt time.Time) (snap Snapshot, inserted bool, err error) {
	canonical, err := value.MarshalCanonical(doc)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("put snapshot: %w", err)
	}
	digest, err := value.Digest(value.DomainSnapshot, doc)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("put snapshot: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (digest, model, record_id, document, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(digest) DO NOTHING
	`, digest, model, recordID, string(canonical), formatTime(createdAt))
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("put snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("put snapshot: %w", err)
	}

	snap, err = s.ReadSnapshot(ctx, digest)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, n > 0, nil
}

// ReadSnapshot retrieves a snapshot by digest.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSnapshot(ctx context.Context, digest string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, digest, model, record_id, document, created_at
		FROM snapshots
		WHERE digest = ?
	`, digest)
	return scanSnapshot(row)
}

// LatestSnapshot retrieves the most recently stored snapshot of a record.
// Returns sql.ErrNoRows if the record has none.
func (s *Store) LatestSnapshot(ctx context.Context, model string, recordID int64) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, digest, model, record_id, document, created_at
		FROM snapshots
		WHERE model = ? AND record_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, model, recordID)
	return scanSnapshot(row)
}

// ListSnapshots returns every stored snapshot of a record, oldest first.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListSnapshots(ctx context.Context, model string, recordID int64) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, digest, model, record_id, document, created_at
		FROM snapshots
		WHERE model = ? AND record_id = ?
		ORDER BY seq ASC
	`, model, recordID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := []Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var (
		snap      Snapshot
		document  string
		createdAt string
	)
	if err := row.Scan(&snap.Seq, &snap.Digest, &snap.Model, &snap.RecordID, &document, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	doc, err := value.Decode([]byte(document))
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", snap.Digest, err)
	}
	snap.Document = doc
	if snap.CreatedAt, err = parseTime(createdAt); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", snap.Digest, err)
	}
	return snap, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
