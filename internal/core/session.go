package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/chatwire/proto"
)

// CloseReason says why a session was shut down.
type CloseReason string

const (
	CloseReasonNormal     CloseReason = "normal"
	CloseReasonSuperseded CloseReason = "superseded"
	CloseReasonUnhealthy  CloseReason = "unhealthy"
	CloseReasonHeartbeat  CloseReason = "heartbeat_timeout"
)

// Session is one live transport connection bound to a (user, room) pair.
// The Registry owns its lifecycle; the transport's write loop drains Queue
// until Done is closed.
type Session struct {
	ID     string
	UserID string
	RoomID string

	queue chan *proto.Frame
	done  chan struct{}

	lastPong       atomic.Int64 // unix nanos of the last observed pong
	totalDrops     atomic.Int64
	overflowStreak atomic.Int64

	closeOnce sync.Once
	reason    CloseReason
}

// NewSession builds a session with a bounded outbound queue.
func NewSession(userID, roomID string, queueCap int) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		RoomID: roomID,
		queue:  make(chan *proto.Frame, queueCap),
		done:   make(chan struct{}),
	}
	s.lastPong.Store(time.Now().UnixNano())
	return s
}

// TryEnqueue attempts a non-blocking enqueue onto the outbound queue.
// Returns false if the session is closed or the queue is full; a full queue
// drops the frame for this recipient only.
func (s *Session) TryEnqueue(frame *proto.Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.queue <- frame:
		s.overflowStreak.Store(0)
		return true
	default:
		s.totalDrops.Add(1)
		s.overflowStreak.Add(1)
		return false
	}
}

// Queue exposes the outbound queue to the session's write loop.
func (s *Session) Queue() <-chan *proto.Frame {
	return s.queue
}

// Done is closed when the session is shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close shuts the session down. Idempotent; the first reason wins.
func (s *Session) Close(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.done)
	})
}

// Reason reports why the session closed. Valid only after Done is closed.
func (s *Session) Reason() CloseReason {
	return s.reason
}

// RecordPong notes a pong observed by the read loop.
func (s *Session) RecordPong(t time.Time) {
	s.lastPong.Store(t.UnixNano())
}

// LastPong returns the time of the most recent pong.
func (s *Session) LastPong() time.Time {
	return time.Unix(0, s.lastPong.Load())
}

// DropCount returns the total frames dropped due to queue overflow.
func (s *Session) DropCount() int64 {
	return s.totalDrops.Load()
}

// OverflowStreak returns consecutive drops since the last successful enqueue.
func (s *Session) OverflowStreak() int64 {
	return s.overflowStreak.Load()
}
