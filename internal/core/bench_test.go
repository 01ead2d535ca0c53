package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/driftline/chatwire/internal/store"
)

func benchmarkBroadcast(b *testing.B, recipients int) {
	registry := NewRegistry(nopLogger())
	dispatcher := NewDispatcher(registry, 0, nopLogger())

	sessions := make([]*Session, 0, recipients)
	for i := 0; i < recipients; i++ {
		s := NewSession(fmt.Sprintf("user%d", i), "bench", 512)
		if err := registry.Add(s); err != nil {
			b.Fatalf("add: %v", err)
		}
		sessions = append(sessions, s)
	}

	// Drain every queue but the first to avoid backpressure.
	for _, s := range sessions[1:] {
		go func(sess *Session) {
			for range sess.queue {
			}
		}(s)
	}
	target := sessions[0]

	msg := &store.Message{
		ID:          1,
		RoomID:      "bench",
		SenderID:    "sender",
		Type:        "text",
		TextContent: "payload",
		SentAt:      time.Now(),
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		dispatcher.Publish(msg)
		<-target.queue
	}
}

func BenchmarkBroadcast_10(b *testing.B)  { benchmarkBroadcast(b, 10) }
func BenchmarkBroadcast_100(b *testing.B) { benchmarkBroadcast(b, 100) }
func BenchmarkBroadcast_500(b *testing.B) { benchmarkBroadcast(b, 500) }
