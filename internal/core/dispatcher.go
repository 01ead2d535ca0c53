package core

import (
	"github.com/rs/zerolog"

	"github.com/driftline/chatwire/internal/metrics"
	"github.com/driftline/chatwire/internal/store"
	"github.com/driftline/chatwire/proto"
)

// Dispatcher fans persisted message events out to all sessions of a room.
// Publish runs on the caller's goroutine and only performs non-blocking
// enqueues; it never waits on a slow network peer.
type Dispatcher struct {
	registry      *Registry
	overflowLimit int64
	log           *zerolog.Logger
}

// NewDispatcher constructs a dispatcher. overflowLimit is the number of
// consecutive per-session drops after which the session is closed as
// unhealthy; zero or negative disables the limit.
func NewDispatcher(registry *Registry, overflowLimit int64, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:      registry,
		overflowLimit: overflowLimit,
		log:           logger,
	}
}

// Publish delivers an already-persisted message to every session in its room.
func (d *Dispatcher) Publish(msg *store.Message) {
	frame, err := proto.NewFrame(proto.TypeChatMessage, msg.RoomID, proto.ChatMessageOut{
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		MessageType: msg.Type,
		TextContent: msg.TextContent,
		MediaURL:    msg.MediaURL,
		SentAt:      msg.SentAt.UnixNano(),
	})
	if err != nil {
		d.log.Error().Err(err).Int64("message_id", msg.ID).Msg("encode chat message")
		return
	}

	metrics.MessagesPublished.Inc()
	d.fanOut(msg.RoomID, frame)
}

// PublishReadReceipt tells room members that a user's read marker advanced.
func (d *Dispatcher) PublishReadReceipt(marker *store.ReadMarker) {
	frame, err := proto.NewFrame(proto.TypeReadReceipt, marker.RoomID, proto.ReadReceiptOut{
		UserID:           marker.UserID,
		ThroughMessageID: marker.LastReadMessageID,
		ReadAt:           marker.ReadAt.UnixNano(),
	})
	if err != nil {
		d.log.Error().Err(err).Str("user_id", marker.UserID).Msg("encode read receipt")
		return
	}

	d.fanOut(marker.RoomID, frame)
}

func (d *Dispatcher) fanOut(roomID string, frame *proto.Frame) {
	for _, session := range d.registry.SessionsForRoom(roomID) {
		if session.TryEnqueue(frame) {
			continue
		}

		metrics.MessagesDropped.WithLabelValues(metrics.ReasonQueueFull).Inc()
		d.log.Warn().
			Str("session_id", session.ID).
			Str("room_id", roomID).
			Str("type", frame.Type).
			Msg("outbound queue full, frame dropped")

		// A full queue alone does not close the session; sustained
		// overflow does.
		if d.overflowLimit > 0 && session.OverflowStreak() >= d.overflowLimit {
			session.Close(CloseReasonUnhealthy)
			d.registry.Remove(session.ID)
			metrics.SessionsEvicted.WithLabelValues(metrics.ReasonOverflowLimit).Inc()
			d.log.Warn().
				Str("session_id", session.ID).
				Int64("drops", session.DropCount()).
				Msg("session closed as unhealthy after repeated overflow")
		}
	}
}
