package messages

import (
	"context"
	"database/sql"
)

// Repository is the persistence contract for messages.
type Repository interface {
	Create(ctx context.Context, m Message) error
	ListForUser(ctx context.Context, userID string, skip, limit int) ([]Message, error)
}

// NOTE: This repository assumes a messages table:
//   messages(id UUID PK, sender_id UUID REFERENCES users(id),
//            recipient_id UUID REFERENCES users(id), body TEXT,
//            created_at TIMESTAMPTZ)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, m Message) error {
	const q = `
INSERT INTO messages (id, sender_id, recipient_id, body, created_at)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := r.db.ExecContext(ctx, q, m.ID, m.SenderID, m.RecipientID, m.Body, m.CreatedAt)
	return err
}

func (r *PostgresRepo) ListForUser(ctx context.Context, userID string, skip, limit int) ([]Message, error) {
	const q = `
SELECT id, sender_id, recipient_id, body, created_at
FROM messages
WHERE sender_id = $1 OR recipient_id = $1
ORDER BY created_at, id
OFFSET $2 LIMIT $3
`
	rows, err := r.db.QueryContext(ctx, q, userID, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
