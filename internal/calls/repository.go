package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository is the persistence contract for call records.
//
// Mutations are single conditional UPDATEs keyed by record id: callbacks may
// race with each other and with concurrent reads, and multiple service
// instances may run behind a load balancer, so read-modify-write sequences
// and in-process locks are both off the table. A false return from
// MarkInProgress/Finish means the guard did not match (already terminal or
// wrong state) and the write was a no-op.
type Repository interface {
	Create(ctx context.Context, rec CallRecord) error
	GetByID(ctx context.Context, id string) (CallRecord, error)
	List(ctx context.Context, skip, limit int) ([]CallRecord, error)
	ListByCaller(ctx context.Context, callerID string, skip, limit int) ([]CallRecord, error)

	SetProviderCallID(ctx context.Context, id, providerCallID string) error
	MarkInProgress(ctx context.Context, id string) (bool, error)
	Finish(ctx context.Context, id string, status Status, endTime time.Time, durationSeconds int) (bool, error)
}

// NOTE: This repository assumes a calls table:
//   calls(id UUID PK, caller_id UUID REFERENCES users(id), destination TEXT,
//         provider_call_id TEXT, status TEXT, start_time TIMESTAMPTZ,
//         end_time TIMESTAMPTZ NULL, duration_seconds INT NULL,
//         created_at TIMESTAMPTZ)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, rec CallRecord) error {
	const q = `
INSERT INTO calls (id, caller_id, destination, provider_call_id, status, start_time, end_time, duration_seconds, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.CallerID,
		rec.Destination,
		rec.ProviderCallID,
		rec.Status,
		rec.StartTime,
		rec.EndTime,
		rec.DurationSeconds,
		rec.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (CallRecord, error) {
	const q = `
SELECT id, caller_id, destination, provider_call_id, status, start_time, end_time, duration_seconds, created_at
FROM calls
WHERE id = $1
`
	var rec CallRecord
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID,
		&rec.CallerID,
		&rec.Destination,
		&rec.ProviderCallID,
		&rec.Status,
		&rec.StartTime,
		&rec.EndTime,
		&rec.DurationSeconds,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) List(ctx context.Context, skip, limit int) ([]CallRecord, error) {
	const q = `
SELECT id, caller_id, destination, provider_call_id, status, start_time, end_time, duration_seconds, created_at
FROM calls
ORDER BY created_at, id
OFFSET $1 LIMIT $2
`
	return r.queryMany(ctx, q, skip, limit)
}

func (r *PostgresRepo) ListByCaller(ctx context.Context, callerID string, skip, limit int) ([]CallRecord, error) {
	const q = `
SELECT id, caller_id, destination, provider_call_id, status, start_time, end_time, duration_seconds, created_at
FROM calls
WHERE caller_id = $1
ORDER BY created_at, id
OFFSET $2 LIMIT $3
`
	return r.queryMany(ctx, q, callerID, skip, limit)
}

func (r *PostgresRepo) SetProviderCallID(ctx context.Context, id, providerCallID string) error {
	const q = `
UPDATE calls SET provider_call_id = $2
WHERE id = $1
`
	_, err := r.db.ExecContext(ctx, q, id, providerCallID)
	return err
}

// MarkInProgress applies ringing -> in-progress atomically.
func (r *PostgresRepo) MarkInProgress(ctx context.Context, id string) (bool, error) {
	const q = `
UPDATE calls SET status = $2
WHERE id = $1 AND status = $3
`
	res, err := r.db.ExecContext(ctx, q, id, StatusInProgress, StatusRinging)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Finish applies a terminal transition atomically. The guard excludes
// terminal rows so duplicate deliveries cannot overwrite end_time/duration.
func (r *PostgresRepo) Finish(ctx context.Context, id string, status Status, endTime time.Time, durationSeconds int) (bool, error) {
	if !status.IsTerminal() {
		return false, ErrInvalidArgument
	}
	const q = `
UPDATE calls SET status = $2, end_time = $3, duration_seconds = $4
WHERE id = $1 AND status NOT IN ($5, $6)
`
	res, err := r.db.ExecContext(ctx, q, id, status, endTime, durationSeconds, StatusCompleted, StatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) queryMany(ctx context.Context, q string, args ...any) ([]CallRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var rec CallRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.CallerID,
			&rec.Destination,
			&rec.ProviderCallID,
			&rec.Status,
			&rec.StartTime,
			&rec.EndTime,
			&rec.DurationSeconds,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
