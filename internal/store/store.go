package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMessageNotFound is returned when a message id does not exist in a room.
	ErrMessageNotFound = errors.New("message not found")
	// ErrMarkerNotFound is returned when a user has no read marker in a room.
	ErrMarkerNotFound = errors.New("read marker not found")
)

// Message is a persisted chat message. Immutable once created; the store
// assigns ID and SentAt on append. Send-order is (SentAt, ID).
type Message struct {
	ID          int64
	RoomID      string
	SenderID    string
	Type        string
	TextContent string
	MediaURL    string
	SentAt      time.Time
}

// Before reports whether m precedes other in send-order.
func (m *Message) Before(other *Message) bool {
	if m.SentAt.Equal(other.SentAt) {
		return m.ID < other.ID
	}
	return m.SentAt.Before(other.SentAt)
}

// ReadMarker records the most recent message a user has acknowledged in a room.
type ReadMarker struct {
	UserID            string
	RoomID            string
	LastReadMessageID int64
	ReadAt            time.Time
}

// MessageStore persists messages and answers send-order queries.
type MessageStore interface {
	// AppendMessage assigns ID and SentAt, stores the message durably and
	// returns the stored record. Must complete before the message is dispatched.
	AppendMessage(ctx context.Context, roomID, senderID, msgType, textContent, mediaURL string) (*Message, error)
	// GetMessage fetches a message by id within a room.
	GetMessage(ctx context.Context, roomID string, messageID int64) (*Message, error)
	// CountAfter counts messages in roomID strictly after `after` in
	// send-order, excluding those sent by excludeUser. A nil `after` counts
	// every message in the room.
	CountAfter(ctx context.Context, roomID string, after *Message, excludeUser string) (int, error)
}

// ReadMarkerStore persists per-(user, room) read markers.
type ReadMarkerStore interface {
	GetMarker(ctx context.Context, userID, roomID string) (*ReadMarker, error)
	PutMarker(ctx context.Context, marker *ReadMarker) error
}

// MembershipStore answers whether a user belongs to a room.
type MembershipStore interface {
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
	AddMember(ctx context.Context, userID, roomID string) error
}

// Store is the full persistence collaborator consumed by the delivery core.
type Store interface {
	MessageStore
	ReadMarkerStore
	MembershipStore
	Close() error
}
