package messagelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-whatsapp/internal/infrastructure/database"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// defaultRecentLimit caps Recent queries when the caller passes no limit.
const defaultRecentLimit = 50

// Message is one logged message.
type Message struct {
	ID        int64
	SessionID string
	Direction string
	ChatID    string
	Sender    string
	Body      string
	Timestamp time.Time
	CreatedAt time.Time
}

// Store is the SQLite-backed message log.
type Store struct {
	db *database.DB
}

// NewStore creates a store over an open database. The messages table must
// exist (migrations applied).
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Record inserts one message and returns its row ID.
func (s *Store) Record(ctx context.Context, msg Message) (int64, error) {
	if msg.SessionID == "" {
		return 0, fmt.Errorf("%w: session id is required", ErrInvalidMessage)
	}
	if msg.Direction != DirectionInbound && msg.Direction != DirectionOutbound {
		return 0, fmt.Errorf("%w: direction must be %s or %s", ErrInvalidMessage, DirectionInbound, DirectionOutbound)
	}
	if msg.ChatID == "" {
		return 0, fmt.Errorf("%w: chat id is required", ErrInvalidMessage)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (session_id, direction, chat_id, sender, body, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Direction, msg.ChatID, msg.Sender, msg.Body,
		ts.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("recording message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading message id: %w", err)
	}
	return id, nil
}

// Last returns the most recently recorded message for a session.
func (s *Store) Last(ctx context.Context, sessionID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, direction, chat_id, sender, body, timestamp, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT 1`,
		sessionID,
	)

	msg, err := scanMessage(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNoMessages, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading last message: %w", err)
	}
	return msg, nil
}

// Recent returns up to limit messages for a session, newest first.
// A non-positive limit uses the default.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, direction, chat_id, sender, body, timestamp, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

// Prune deletes messages recorded before the cutoff and returns the
// number of rows removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM messages WHERE timestamp < ?",
		before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning messages: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned messages: %w", err)
	}
	return n, nil
}

// scanMessage reads one row. Timestamps are stored as RFC3339 text.
func scanMessage(scan func(dest ...any) error) (*Message, error) {
	var msg Message
	var ts, created string

	if err := scan(&msg.ID, &msg.SessionID, &msg.Direction, &msg.ChatID,
		&msg.Sender, &msg.Body, &ts, &created); err != nil {
		return nil, err
	}

	// Parse errors leave zero times; the format is controlled by Record.
	msg.Timestamp, _ = time.Parse(time.RFC3339, ts)
	msg.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &msg, nil
}
