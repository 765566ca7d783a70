package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/repository"
)

var _ repository.EventStore = (*Store)(nil)

func (s *Store) migrateJournal() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS order_events (
			id TEXT PRIMARY KEY,
			stream_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			UNIQUE (stream_id, version)
		)
	`)
	return err
}

func (s *Store) AppendEvent(ctx context.Context, record entity.EventStoreRecord) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Idempotency: a redelivered event keeps its first position.
	var existing string
	err = tx.QueryRowContext(ctx, s.rebind("SELECT id FROM order_events WHERE id = ?"), record.ID).Scan(&existing)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to check event %s: %w", record.ID, err)
	}

	var current int
	err = tx.QueryRowContext(ctx, s.rebind("SELECT COALESCE(MAX(version), 0) FROM order_events WHERE stream_id = ?"), record.StreamID).Scan(&current)
	if err != nil {
		return false, fmt.Errorf("failed to get current stream version: %w", err)
	}

	occurredAt := record.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO order_events (id, stream_id, version, event_type, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), record.ID, record.StreamID, current+1, record.EventType, string(record.Payload), occurredAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert event %s: %w", record.EventType, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (s *Store) LoadEvents(ctx context.Context, streamID string) ([]entity.EventStoreRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, stream_id, version, event_type, payload, occurred_at
		FROM order_events WHERE stream_id = ? ORDER BY version ASC
	`), streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for stream %s: %w", streamID, err)
	}
	defer rows.Close()

	var events []entity.EventStoreRecord
	for rows.Next() {
		var (
			record  entity.EventStoreRecord
			payload string
		)
		if err := rows.Scan(&record.ID, &record.StreamID, &record.Version, &record.EventType, &payload, &record.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan event record: %w", err)
		}
		record.Payload = []byte(payload)
		events = append(events, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}
