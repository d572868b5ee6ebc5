package cache

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"casechat-sync/internal/models"
)

// Snapshot mirrors reconciled messages so a restarted daemon can render a
// conversation before the history fetch completes. It is a dumb copy of
// the merge result; the external message store stays the source of truth.
type Snapshot interface {
	UpsertMessages(ctx context.Context, msgs []models.Message) error
	CaseMessages(ctx context.Context, caseID int64) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID int64) error
	Close() error
}

// Open connects the snapshot database, or returns a noop snapshot when no
// DSN is configured.
func Open(dsn string) (Snapshot, error) {
	if dsn == "" {
		log.Printf("snapshot cache disabled: empty dsn")
		return noopSnapshot{}, nil
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect snapshot cache: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate snapshot cache: %w", err)
	}
	return &pgSnapshot{db: db}, nil
}

func migrate(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS case_messages (
        id BIGINT PRIMARY KEY,
        case_id BIGINT NOT NULL,
        sender_id TEXT NOT NULL,
        recipient_id TEXT NOT NULL,
        body TEXT NOT NULL,
        is_read BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMPTZ NOT NULL
    );
    CREATE INDEX IF NOT EXISTS case_messages_case_idx ON case_messages (case_id, created_at, id);`)
	return err
}

type pgSnapshot struct {
	db *sqlx.DB
}

// UpsertMessages writes messages with the same insert-or-ignore discipline
// as the in-memory merge; only the monotonic read flag may change an
// existing row.
func (s *pgSnapshot) UpsertMessages(ctx context.Context, msgs []models.Message) error {
	for _, msg := range msgs {
		_, err := s.db.ExecContext(ctx, `INSERT INTO case_messages
            (id, case_id, sender_id, recipient_id, body, is_read, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
            ON CONFLICT (id) DO UPDATE
            SET is_read = case_messages.is_read OR EXCLUDED.is_read`,
			msg.ID, msg.CaseID, msg.SenderID, msg.RecipientID, msg.Body, msg.IsRead, msg.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// CaseMessages reads the snapshot for a case in merge order.
func (s *pgSnapshot) CaseMessages(ctx context.Context, caseID int64) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.SelectContext(ctx, &msgs, `SELECT id, case_id, sender_id, recipient_id, body, is_read, created_at
        FROM case_messages WHERE case_id=$1 ORDER BY created_at ASC, id ASC`, caseID)
	return msgs, err
}

// MarkRead flips the read flag, false to true only.
func (s *pgSnapshot) MarkRead(ctx context.Context, messageID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE case_messages SET is_read = TRUE WHERE id=$1`, messageID)
	return err
}

func (s *pgSnapshot) Close() error {
	return s.db.Close()
}

type noopSnapshot struct{}

func (noopSnapshot) UpsertMessages(ctx context.Context, msgs []models.Message) error { return nil }

func (noopSnapshot) CaseMessages(ctx context.Context, caseID int64) ([]models.Message, error) {
	return nil, nil
}

func (noopSnapshot) MarkRead(ctx context.Context, messageID int64) error { return nil }

func (noopSnapshot) Close() error { return nil }
