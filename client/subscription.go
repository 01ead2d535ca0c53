package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/driftline/chatwire/proto"
)

var (
	// ErrAuthRequired is returned by Subscribe when no credential is set.
	ErrAuthRequired = errors.New("auth credential required")
	// ErrAuthRejected is recorded when the server refuses the credential.
	// Terminal for the subscription; no retry is scheduled.
	ErrAuthRejected = errors.New("auth rejected")
	// ErrReconnectExhausted is recorded when the attempt limit is reached.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrNotConnected is returned by Send when no live connection exists.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadySubscribed is returned by Subscribe when a run is active.
	ErrAlreadySubscribed = errors.New("already subscribed")
)

// Options configures a Subscription.
type Options struct {
	// BaseURL is the server's ws endpoint, e.g. "ws://localhost:8080/ws".
	// Ignored when Dialer is set.
	BaseURL    string
	RoomID     string
	Credential string

	// Dialer overrides the default WebSocket dialer. Tests inject fakes here.
	Dialer Dialer

	BaseDelay   time.Duration // first reconnect delay, default 1s
	MaxDelay    time.Duration // delay cap, default 30s
	MaxAttempts int           // failed attempts before giving up, default 5
	FrameBuffer int           // received-frame channel capacity, default 64

	Logger *zerolog.Logger
}

// Subscription owns the lifecycle of one logical room feed: it dials,
// delivers frames, answers pings and reconnects with bounded exponential
// backoff after abnormal closes. A single run goroutine drives the state
// machine, so at most one connection attempt is ever in flight.
type Subscription struct {
	opts   Options
	dialer Dialer
	log    zerolog.Logger

	mu       sync.Mutex
	state    State
	attempts int
	lastErr  error
	conn     Conn
	cancel   context.CancelFunc
	runDone  chan struct{}

	frames chan *proto.Frame
	states chan State

	// after is the reconnect timer; tests replace it to observe delays.
	after func(time.Duration) <-chan time.Time
}

// NewSubscription builds a subscription in StateIdle.
func NewSubscription(opts Options) *Subscription {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.FrameBuffer <= 0 {
		opts.FrameBuffer = 64
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &WebSocketDialer{
			BaseURL:    opts.BaseURL,
			Credential: opts.Credential,
			RoomID:     opts.RoomID,
		}
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("room_id", opts.RoomID).Logger()
	}

	return &Subscription{
		opts:   opts,
		dialer: dialer,
		log:    logger,
		state:  StateIdle,
		frames: make(chan *proto.Frame, opts.FrameBuffer),
		states: make(chan State, 32),
		after: func(d time.Duration) <-chan time.Time {
			return time.After(d)
		},
	}
}

// Subscribe starts the connection loop. Fails with ErrAuthRequired when no
// credential is present and with ErrAlreadySubscribed when a run is active.
func (s *Subscription) Subscribe(ctx context.Context) error {
	if s.opts.Credential == "" {
		return ErrAuthRequired
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadySubscribed
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.runDone = done
	s.lastErr = nil
	// Claim the state before the run goroutine starts so a concurrent
	// Subscribe cannot slip in a second run loop.
	s.state = StateConnecting
	s.mu.Unlock()

	go s.run(runCtx, done)
	return nil
}

// Unsubscribe performs a normal closure and blocks until the run loop has
// returned to StateIdle. No reconnect follows.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.runDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Resubscribe resets a GivenUp subscription to Idle and subscribes again.
func (s *Subscription) Resubscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateGivenUp {
		s.state = StateIdle
		s.attempts = 0
		s.lastErr = nil
	}
	s.mu.Unlock()
	return s.Subscribe(ctx)
}

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error, if any (ErrAuthRejected or
// ErrReconnectExhausted).
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Frames delivers frames received from the server, pings excluded.
func (s *Subscription) Frames() <-chan *proto.Frame {
	return s.frames
}

// States announces every state transition in order.
func (s *Subscription) States() <-chan State {
	return s.states
}

// Send writes a frame on the live connection.
func (s *Subscription) Send(ctx context.Context, frame *proto.Frame) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	return conn.WriteFrame(ctx, frame)
}

// SendText publishes a text chat message to the subscribed room.
func (s *Subscription) SendText(ctx context.Context, text string) error {
	frame, err := proto.NewFrame(proto.TypeChatMessage, s.opts.RoomID, proto.ChatMessageIn{
		MessageType: proto.MessageTypeText,
		TextContent: text,
	})
	if err != nil {
		return err
	}
	return s.Send(ctx, frame)
}

// SendMedia publishes a media chat message referencing the given URL.
func (s *Subscription) SendMedia(ctx context.Context, mediaURL string) error {
	frame, err := proto.NewFrame(proto.TypeChatMessage, s.opts.RoomID, proto.ChatMessageIn{
		MessageType: proto.MessageTypeMedia,
		MediaURL:    mediaURL,
	})
	if err != nil {
		return err
	}
	return s.Send(ctx, frame)
}

// MarkRead acknowledges messages through the given id.
func (s *Subscription) MarkRead(ctx context.Context, throughMessageID int64) error {
	frame, err := proto.NewFrame(proto.TypeReadReceipt, s.opts.RoomID, proto.ReadReceiptIn{
		ThroughMessageID: throughMessageID,
	})
	if err != nil {
		return err
	}
	return s.Send(ctx, frame)
}

func (s *Subscription) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		s.setState(StateConnecting)

		conn, err := s.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.toIdle()
				return
			}
			if isAuthRejected(err) {
				s.terminate(ErrAuthRejected)
				return
			}
			s.log.Warn().Err(err).Msg("dial failed")
			if !s.waitBackoff(ctx) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.attempts = 0
		s.mu.Unlock()
		s.setState(StateConnected)
		s.log.Debug().Msg("connected")

		err = s.pump(ctx, conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			// Explicit unsubscribe: normal closure, no retry.
			s.setState(StateClosing)
			_ = conn.Close(websocket.StatusNormalClosure, "unsubscribe")
			s.toIdle()
			return
		}

		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure:
			// Server asked to stop; reconnecting would be rude.
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			s.toIdle()
			return
		case websocket.StatusPolicyViolation:
			_ = conn.Close(websocket.StatusNormalClosure, "auth rejected")
			s.terminate(ErrAuthRejected)
			return
		}

		s.log.Warn().Err(err).Msg("connection lost")
		_ = conn.Close(websocket.StatusNormalClosure, "reconnecting")
		if !s.waitBackoff(ctx) {
			return
		}
	}
}

// pump reads frames until the connection fails, replying to pings inline.
func (s *Subscription) pump(ctx context.Context, conn Conn) error {
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			return err
		}

		if frame.Type == proto.TypePing {
			pong := &proto.Frame{Type: proto.TypePong, ChatroomID: frame.ChatroomID, Data: frame.Data}
			if err := conn.WriteFrame(ctx, pong); err != nil {
				return err
			}
			continue
		}

		select {
		case s.frames <- frame:
		default:
			s.log.Warn().Str("type", frame.Type).Msg("frame buffer full, dropping")
		}
	}
}

// waitBackoff counts a failed attempt and sleeps min(base<<(n-1), cap).
// Returns false when the run loop must stop (given up or unsubscribed).
func (s *Subscription) waitBackoff(ctx context.Context) bool {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	if attempt >= s.opts.MaxAttempts {
		s.log.Warn().Int("attempts", attempt).Msg("reconnect attempts exhausted")
		s.terminate(ErrReconnectExhausted)
		return false
	}

	delay := s.opts.BaseDelay << (attempt - 1)
	if delay <= 0 || delay > s.opts.MaxDelay {
		delay = s.opts.MaxDelay
	}

	s.setState(StateBackoff)
	s.log.Debug().Dur("delay", delay).Int("attempt", attempt).Msg("backing off")

	select {
	case <-s.after(delay):
		return true
	case <-ctx.Done():
		s.toIdle()
		return false
	}
}

func (s *Subscription) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	select {
	case s.states <- state:
	default:
	}
}

func (s *Subscription) toIdle() {
	s.mu.Lock()
	s.attempts = 0
	s.releaseCancelLocked()
	s.mu.Unlock()
	s.setState(StateIdle)
}

func (s *Subscription) terminate(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.releaseCancelLocked()
	s.mu.Unlock()
	if errors.Is(err, ErrReconnectExhausted) {
		s.setState(StateGivenUp)
	} else {
		s.setState(StateIdle)
	}
}

// releaseCancelLocked cancels the run context before dropping it so a
// finished run never holds its parent context's resources.
func (s *Subscription) releaseCancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func isAuthRejected(err error) bool {
	return errors.Is(err, ErrAuthRejected) ||
		websocket.CloseStatus(err) == websocket.StatusPolicyViolation
}
