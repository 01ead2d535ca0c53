package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/driftline/chatwire/internal/auth"
	"github.com/driftline/chatwire/internal/core"
	"github.com/driftline/chatwire/internal/metrics"
	"github.com/driftline/chatwire/internal/store"
	"github.com/driftline/chatwire/proto"
)

// errSessionClosed signals that the server shut the session down; the close
// status sent to the client is derived from the session's close reason.
var errSessionClosed = errors.New("session closed")

// WSHandler upgrades HTTP connections, admits them to the registry and runs
// the per-connection read and write loops.
type WSHandler struct {
	registry   *core.Registry
	dispatcher *core.Dispatcher
	aggregator *core.Aggregator
	validator  *auth.Validator
	store      store.Store
	queueCap   int
	log        *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(
	registry *core.Registry,
	dispatcher *core.Dispatcher,
	aggregator *core.Aggregator,
	validator *auth.Validator,
	st store.Store,
	queueCap int,
	logger *zerolog.Logger,
) stdhttp.Handler {
	return &WSHandler{
		registry:   registry,
		dispatcher: dispatcher,
		aggregator: aggregator,
		validator:  validator,
		store:      st,
		queueCap:   queueCap,
		log:        logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	roomID := r.URL.Query().Get("chatroom_id")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if roomID == "" {
		conn.Close(websocket.StatusPolicyViolation, "chatroom_id is required")
		return
	}

	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws credential rejected")
		conn.Close(websocket.StatusPolicyViolation, core.ErrCodeAuthRejected)
		return
	}

	member, err := h.store.IsMember(ctx, claims.UserID, roomID)
	if err != nil {
		h.log.Error().Err(err).Msg("membership check failed")
		conn.Close(websocket.StatusInternalError, "membership check failed")
		return
	}
	if !member {
		conn.Close(websocket.StatusPolicyViolation, core.ErrCodeNotMember)
		return
	}

	session := core.NewSession(claims.UserID, roomID, h.queueCap)
	if err := h.admit(session); err != nil {
		conn.Close(websocket.StatusTryAgainLater, "session conflict")
		return
	}
	defer func() {
		session.Close(core.CloseReasonNormal)
		h.registry.Remove(session.ID)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	conn.Close(h.closeStatus(session, err))
}

// admit enforces one session per (user, room): a later session supersedes
// and closes the former.
func (h *WSHandler) admit(session *core.Session) error {
	for range 3 {
		if old := h.registry.Lookup(session.RoomID, session.UserID); old != nil {
			old.Close(core.CloseReasonSuperseded)
			h.registry.Remove(old.ID)
			metrics.SessionsEvicted.WithLabelValues(metrics.ReasonSuperseded).Inc()
			h.log.Info().
				Str("session_id", old.ID).
				Str("user_id", old.UserID).
				Str("room_id", old.RoomID).
				Msg("session superseded by newer connection")
		}
		if err := h.registry.Add(session); err == nil {
			return nil
		}
	}
	return core.ErrDuplicateSession
}

func (h *WSHandler) closeStatus(session *core.Session, err error) (websocket.StatusCode, string) {
	select {
	case <-session.Done():
		// Server-initiated shutdowns use a non-normal status so clients
		// enter backoff instead of staying disconnected.
		switch session.Reason() {
		case core.CloseReasonSuperseded:
			return websocket.StatusGoingAway, "superseded by newer session"
		case core.CloseReasonUnhealthy:
			return websocket.StatusGoingAway, "slow consumer"
		case core.CloseReasonHeartbeat:
			return websocket.StatusGoingAway, "heartbeat timeout"
		}
	default:
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errSessionClosed) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("ws connection closed with error")
		}
	}
	return status, reason
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var frame proto.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Malformed frames are dropped; the connection stays open.
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("malformed frame dropped")
			h.sendError(session, core.NewError(core.ErrCodeMalformedFrame, "malformed frame"))
			continue
		}

		if frame.ChatroomID != "" && frame.ChatroomID != session.RoomID {
			h.sendError(session, core.NewError(core.ErrCodeBadRequest, "chatroom_id does not match session"))
			continue
		}

		h.handleFrame(ctx, session, &frame)
	}
}

func (h *WSHandler) handleFrame(ctx context.Context, session *core.Session, frame *proto.Frame) {
	switch frame.Type {
	case proto.TypeChatMessage:
		var in proto.ChatMessageIn
		if err := json.Unmarshal(frame.Data, &in); err != nil {
			h.sendError(session, core.NewError(core.ErrCodeMalformedFrame, "malformed chat_message payload"))
			return
		}
		if !validChatMessage(in) {
			h.sendError(session, core.NewError(core.ErrCodeBadRequest, "invalid chat_message payload"))
			return
		}
		msg, err := h.store.AppendMessage(ctx, session.RoomID, session.UserID, in.MessageType, in.TextContent, in.MediaURL)
		if err != nil {
			h.log.Error().Err(err).Str("session_id", session.ID).Msg("persist message")
			h.sendError(session, core.NewError(core.ErrCodeInternal, "message not stored"))
			return
		}
		h.dispatcher.Publish(msg)

	case proto.TypeReadReceipt:
		var in proto.ReadReceiptIn
		if err := json.Unmarshal(frame.Data, &in); err != nil {
			h.sendError(session, core.NewError(core.ErrCodeMalformedFrame, "malformed read_receipt payload"))
			return
		}
		_, err := h.aggregator.MarkRead(ctx, session.UserID, session.RoomID, in.ThroughMessageID)
		if errors.Is(err, core.ErrUnknownMessage) {
			h.sendError(session, core.NewError(core.ErrCodeUnknownMessage, "unknown message id"))
			return
		}
		if err != nil {
			h.log.Error().Err(err).Str("session_id", session.ID).Msg("mark read")
			h.sendError(session, core.NewError(core.ErrCodeInternal, "read marker not updated"))
		}

	case proto.TypePong:
		session.RecordPong(time.Now())

	case proto.TypePing:
		var hb proto.Heartbeat
		_ = json.Unmarshal(frame.Data, &hb)
		pong, err := proto.NewFrame(proto.TypePong, session.RoomID, hb)
		if err == nil {
			session.TryEnqueue(pong)
		}

	default:
		h.log.Warn().Str("session_id", session.ID).Str("type", frame.Type).Msg("unknown frame type")
		h.sendError(session, core.NewError(core.ErrCodeMalformedFrame, "unknown frame type"))
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	for {
		select {
		case frame := <-session.Queue():
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				h.log.Error().Err(err).Str("session_id", session.ID).Msg("write ws frame")
				return err
			}
		case <-session.Done():
			return errSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sendError pushes an error frame through the session's own queue so the
// write loop stays the single socket writer.
func (h *WSHandler) sendError(session *core.Session, cerr *core.CoreError) {
	frame, err := proto.NewFrame(proto.TypeError, session.RoomID, proto.Error{Code: cerr.Code, Msg: cerr.Message})
	if err != nil {
		return
	}
	session.TryEnqueue(frame)
}

func validChatMessage(in proto.ChatMessageIn) bool {
	switch in.MessageType {
	case proto.MessageTypeText:
		return in.TextContent != ""
	case proto.MessageTypeMedia:
		return in.MediaURL != ""
	default:
		return false
	}
}
