package core

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftline/chatwire/internal/metrics"
	"github.com/driftline/chatwire/internal/store"
)

const aggregatorShards = 64

// Aggregator owns read markers: it advances per-user watermarks, recomputes
// unread counts and announces advances through the dispatcher. Conflicting
// updates to the same (user, room) key are serialized on a sharded lock so
// the marker stays monotonic under concurrent calls from multiple devices;
// distinct keys proceed in parallel.
type Aggregator struct {
	store      store.Store
	dispatcher *Dispatcher
	locks      [aggregatorShards]sync.Mutex
	log        *zerolog.Logger
}

// NewAggregator constructs a read-receipt aggregator.
func NewAggregator(st store.Store, dispatcher *Dispatcher, logger *zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:      st,
		dispatcher: dispatcher,
		log:        logger,
	}
}

// MarkRead advances the user's read marker to throughMessageID if it is at or
// after the stored marker in send-order; earlier ids are a no-op, so the call
// is idempotent and safe out of order across devices. It returns the unread
// count for (userID, roomID) after the call. ErrUnknownMessage is returned
// when throughMessageID does not exist in the room.
func (a *Aggregator) MarkRead(ctx context.Context, userID, roomID string, throughMessageID int64) (int, error) {
	lock := &a.locks[a.shard(userID, roomID)]
	lock.Lock()
	defer lock.Unlock()

	target, err := a.store.GetMessage(ctx, roomID, throughMessageID)
	if errors.Is(err, store.ErrMessageNotFound) {
		return 0, ErrUnknownMessage
	}
	if err != nil {
		return 0, fmt.Errorf("resolve message: %w", err)
	}

	current, err := a.store.GetMarker(ctx, userID, roomID)
	if err != nil && !errors.Is(err, store.ErrMarkerNotFound) {
		return 0, fmt.Errorf("get marker: %w", err)
	}

	if current != nil && current.LastReadMessageID != throughMessageID {
		currentMsg, err := a.store.GetMessage(ctx, roomID, current.LastReadMessageID)
		if err != nil {
			return 0, fmt.Errorf("resolve current marker: %w", err)
		}
		if target.Before(currentMsg) {
			// Regression: keep the stored marker, report unread against it.
			return a.store.CountAfter(ctx, roomID, currentMsg, userID)
		}
	}

	marker := &store.ReadMarker{
		UserID:            userID,
		RoomID:            roomID,
		LastReadMessageID: throughMessageID,
		ReadAt:            time.Now().UTC(),
	}
	if err := a.store.PutMarker(ctx, marker); err != nil {
		return 0, fmt.Errorf("put marker: %w", err)
	}

	unread, err := a.store.CountAfter(ctx, roomID, target, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}

	metrics.ReadMarkersAdvanced.Inc()
	a.log.Debug().
		Str("user_id", userID).
		Str("room_id", roomID).
		Int64("through_message_id", throughMessageID).
		Int("unread", unread).
		Msg("read marker advanced")

	a.dispatcher.PublishReadReceipt(marker)
	return unread, nil
}

// UnreadCount reports the messages after the user's marker, excluding their
// own. A user with no marker counts every foreign message in the room.
func (a *Aggregator) UnreadCount(ctx context.Context, userID, roomID string) (int, error) {
	marker, err := a.store.GetMarker(ctx, userID, roomID)
	if errors.Is(err, store.ErrMarkerNotFound) {
		return a.store.CountAfter(ctx, roomID, nil, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("get marker: %w", err)
	}

	markerMsg, err := a.store.GetMessage(ctx, roomID, marker.LastReadMessageID)
	if err != nil {
		return 0, fmt.Errorf("resolve marker: %w", err)
	}
	return a.store.CountAfter(ctx, roomID, markerMsg, userID)
}

func (a *Aggregator) shard(userID, roomID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(roomID))
	return h.Sum32() % aggregatorShards
}
