package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/driftline/chatwire/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

func TestAppendAndGetMessage(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	msg, err := st.AppendMessage(ctx, "general", "alice", "text", "hello", "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID == 0 {
		t.Fatal("append did not assign an id")
	}
	if msg.SentAt.IsZero() {
		t.Fatal("append did not assign sent_at")
	}

	got, err := st.GetMessage(ctx, "general", msg.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TextContent != "hello" || got.SenderID != "alice" || got.Type != "text" {
		t.Fatalf("unexpected message: %+v", got)
	}
	if !got.SentAt.Equal(msg.SentAt) {
		t.Fatalf("sent_at mismatch: %v vs %v", got.SentAt, msg.SentAt)
	}
}

func TestGetMessageScopedToRoom(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	msg, err := st.AppendMessage(ctx, "general", "alice", "text", "hello", "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := st.GetMessage(ctx, "other-room", msg.ID); !errors.Is(err, store.ErrMessageNotFound) {
		t.Fatalf("got %v, want ErrMessageNotFound", err)
	}
}

func TestMessageIDsIncreaseInSendOrder(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	var prev *store.Message
	for i := 0; i < 5; i++ {
		msg, err := st.AppendMessage(ctx, "general", "alice", "text", "m", "")
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if prev != nil && !prev.Before(msg) {
			t.Fatalf("message %d not after its predecessor", i)
		}
		prev = msg
	}
}

func TestCountAfter(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	var msgs []*store.Message
	for _, sender := range []string{"bob", "bob", "alice", "bob", "carol"} {
		msg, err := st.AppendMessage(ctx, "general", sender, "text", "m", "")
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		msgs = append(msgs, msg)
	}

	// All foreign messages when no watermark exists.
	count, err := st.CountAfter(ctx, "general", nil, "alice")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 4 {
		t.Fatalf("count = %d, want 4", count)
	}

	// After the second message: alice's own third message is excluded.
	count, err = st.CountAfter(ctx, "general", msgs[1], "alice")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	// After the last message there is nothing unread.
	count, err = st.CountAfter(ctx, "general", msgs[4], "alice")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

func TestReadMarkerUpsert(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	if _, err := st.GetMarker(ctx, "alice", "general"); !errors.Is(err, store.ErrMarkerNotFound) {
		t.Fatalf("got %v, want ErrMarkerNotFound", err)
	}

	first := &store.ReadMarker{
		UserID:            "alice",
		RoomID:            "general",
		LastReadMessageID: 3,
		ReadAt:            time.Now().UTC(),
	}
	if err := st.PutMarker(ctx, first); err != nil {
		t.Fatalf("put: %v", err)
	}

	second := &store.ReadMarker{
		UserID:            "alice",
		RoomID:            "general",
		LastReadMessageID: 7,
		ReadAt:            time.Now().UTC(),
	}
	if err := st.PutMarker(ctx, second); err != nil {
		t.Fatalf("put again: %v", err)
	}

	got, err := st.GetMarker(ctx, "alice", "general")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastReadMessageID != 7 {
		t.Fatalf("marker = %d, want 7", got.LastReadMessageID)
	}
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	member, err := st.IsMember(ctx, "alice", "general")
	if err != nil {
		t.Fatalf("is member: %v", err)
	}
	if member {
		t.Fatal("alice is a member before joining")
	}

	if err := st.AddMember(ctx, "alice", "general"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	// Idempotent.
	if err := st.AddMember(ctx, "alice", "general"); err != nil {
		t.Fatalf("add member twice: %v", err)
	}

	member, err = st.IsMember(ctx, "alice", "general")
	if err != nil {
		t.Fatalf("is member: %v", err)
	}
	if !member {
		t.Fatal("alice not a member after joining")
	}
}
