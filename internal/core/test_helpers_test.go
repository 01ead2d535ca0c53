package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftline/chatwire/internal/store"
	"github.com/driftline/chatwire/proto"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memStore is an in-memory store.Store for core tests.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	clock   time.Time
	msgs    map[string][]*store.Message
	markers map[string]*store.ReadMarker
	members map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		clock:   time.Unix(1700000000, 0).UTC(),
		msgs:    make(map[string][]*store.Message),
		markers: make(map[string]*store.ReadMarker),
		members: make(map[string]bool),
	}
}

func (m *memStore) AppendMessage(_ context.Context, roomID, senderID, msgType, textContent, mediaURL string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.clock = m.clock.Add(time.Second)
	msg := &store.Message{
		ID:          m.nextID,
		RoomID:      roomID,
		SenderID:    senderID,
		Type:        msgType,
		TextContent: textContent,
		MediaURL:    mediaURL,
		SentAt:      m.clock,
	}
	m.msgs[roomID] = append(m.msgs[roomID], msg)
	return msg, nil
}

func (m *memStore) GetMessage(_ context.Context, roomID string, messageID int64) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.msgs[roomID] {
		if msg.ID == messageID {
			return msg, nil
		}
	}
	return nil, store.ErrMessageNotFound
}

func (m *memStore) CountAfter(_ context.Context, roomID string, after *store.Message, excludeUser string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, msg := range m.msgs[roomID] {
		if msg.SenderID == excludeUser {
			continue
		}
		if after == nil || after.Before(msg) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) GetMarker(_ context.Context, userID, roomID string) (*store.ReadMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	marker, ok := m.markers[userID+"|"+roomID]
	if !ok {
		return nil, store.ErrMarkerNotFound
	}
	copied := *marker
	return &copied, nil
}

func (m *memStore) PutMarker(_ context.Context, marker *store.ReadMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *marker
	m.markers[marker.UserID+"|"+marker.RoomID] = &copied
	return nil
}

func (m *memStore) IsMember(_ context.Context, userID, roomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[roomID+"|"+userID], nil
}

func (m *memStore) AddMember(_ context.Context, userID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[roomID+"|"+userID] = true
	return nil
}

func (m *memStore) Close() error { return nil }

// seedMessages appends n messages from senderID and returns them in send-order.
func seedMessages(t *testing.T, st *memStore, roomID, senderID string, n int) []*store.Message {
	t.Helper()

	msgs := make([]*store.Message, 0, n)
	for i := 0; i < n; i++ {
		msg, err := st.AppendMessage(context.Background(), roomID, senderID, proto.MessageTypeText, fmt.Sprintf("m%d", i+1), "")
		if err != nil {
			t.Fatalf("append message: %v", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// mustFrame waits for the next frame of the given type on the session queue.
func mustFrame(t *testing.T, s *Session, frameType string) *proto.Frame {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case frame := <-s.queue:
			if frame.Type == frameType {
				return frame
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected frame type %q not received", frameType)
	return nil
}
