package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/driftline/chatwire/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id      TEXT NOT NULL,
	sender_id    TEXT NOT NULL,
	msg_type     TEXT NOT NULL,
	text_content TEXT NOT NULL DEFAULT '',
	media_url    TEXT NOT NULL DEFAULT '',
	sent_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_send_order ON messages (room_id, sent_at, id);

CREATE TABLE IF NOT EXISTS read_markers (
	user_id              TEXT NOT NULL,
	room_id              TEXT NOT NULL,
	last_read_message_id INTEGER NOT NULL,
	read_at              INTEGER NOT NULL,
	PRIMARY KEY (user_id, room_id)
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	joined_at INTEGER NOT NULL,
	PRIMARY KEY (room_id, user_id)
);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== MessageStore implementation ====

// AppendMessage stores a new message, assigning its id and sent_at.
func (s *SQLiteStore) AppendMessage(ctx context.Context, roomID, senderID, msgType, textContent, mediaURL string) (*store.Message, error) {
	sentAt := time.Now().UTC()

	query := `
		INSERT INTO messages (room_id, sender_id, msg_type, text_content, media_url, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, roomID, senderID, msgType, textContent, mediaURL, sentAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	return &store.Message{
		ID:          id,
		RoomID:      roomID,
		SenderID:    senderID,
		Type:        msgType,
		TextContent: textContent,
		MediaURL:    mediaURL,
		SentAt:      sentAt,
	}, nil
}

// GetMessage fetches a message by id within a room.
func (s *SQLiteStore) GetMessage(ctx context.Context, roomID string, messageID int64) (*store.Message, error) {
	query := `
		SELECT id, room_id, sender_id, msg_type, text_content, media_url, sent_at
		FROM messages
		WHERE room_id = ? AND id = ?
	`
	var msg store.Message
	var sentAt int64
	err := s.db.QueryRowContext(ctx, query, roomID, messageID).Scan(
		&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Type, &msg.TextContent, &msg.MediaURL, &sentAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	msg.SentAt = time.Unix(0, sentAt).UTC()
	return &msg, nil
}

// CountAfter counts messages strictly after `after` in send-order,
// excluding those sent by excludeUser.
func (s *SQLiteStore) CountAfter(ctx context.Context, roomID string, after *store.Message, excludeUser string) (int, error) {
	var (
		query string
		args  []any
	)
	if after == nil {
		query = `SELECT COUNT(*) FROM messages WHERE room_id = ? AND sender_id != ?`
		args = []any{roomID, excludeUser}
	} else {
		query = `
			SELECT COUNT(*) FROM messages
			WHERE room_id = ? AND sender_id != ?
			  AND (sent_at > ? OR (sent_at = ? AND id > ?))
		`
		nanos := after.SentAt.UnixNano()
		args = []any{roomID, excludeUser, nanos, nanos, after.ID}
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count after: %w", err)
	}
	return count, nil
}

// ==== ReadMarkerStore implementation ====

// GetMarker fetches the read marker for (userID, roomID).
func (s *SQLiteStore) GetMarker(ctx context.Context, userID, roomID string) (*store.ReadMarker, error) {
	query := `
		SELECT user_id, room_id, last_read_message_id, read_at
		FROM read_markers
		WHERE user_id = ? AND room_id = ?
	`
	var marker store.ReadMarker
	var readAt int64
	err := s.db.QueryRowContext(ctx, query, userID, roomID).Scan(
		&marker.UserID, &marker.RoomID, &marker.LastReadMessageID, &readAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrMarkerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get marker: %w", err)
	}
	marker.ReadAt = time.Unix(0, readAt).UTC()
	return &marker, nil
}

// PutMarker upserts the read marker for its (userID, roomID).
func (s *SQLiteStore) PutMarker(ctx context.Context, marker *store.ReadMarker) error {
	query := `
		INSERT INTO read_markers (user_id, room_id, last_read_message_id, read_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, room_id) DO UPDATE SET
			last_read_message_id = excluded.last_read_message_id,
			read_at = excluded.read_at
	`
	_, err := s.db.ExecContext(ctx, query, marker.UserID, marker.RoomID, marker.LastReadMessageID, marker.ReadAt.UnixNano())
	if err != nil {
		return fmt.Errorf("put marker: %w", err)
	}
	return nil
}

// ==== MembershipStore implementation ====

// IsMember reports whether userID belongs to roomID.
func (s *SQLiteStore) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	query := `SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?`
	var one int
	err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}
	return true, nil
}

// AddMember records userID as a member of roomID. Idempotent.
func (s *SQLiteStore) AddMember(ctx context.Context, userID, roomID string) error {
	query := `
		INSERT INTO room_members (room_id, user_id, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, roomID, userID, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}
