package client

import (
	"context"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/driftline/chatwire/proto"
)

// Conn is one live transport connection as seen by the subscription.
type Conn interface {
	ReadFrame(ctx context.Context) (*proto.Frame, error)
	WriteFrame(ctx context.Context, frame *proto.Frame) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer establishes a connection for a subscription. Implementations carry
// the server address, credential and room; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebSocketDialer dials a chatwire server's /ws endpoint.
type WebSocketDialer struct {
	// BaseURL is the ws endpoint, e.g. "ws://localhost:8080/ws".
	BaseURL    string
	Credential string
	RoomID     string
}

// Dial performs the transport handshake with the credential and room id as
// query parameters.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", d.Credential)
	q.Set("chatroom_id", d.RoomID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadFrame(ctx context.Context) (*proto.Frame, error) {
	var frame proto.Frame
	if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

func (c *wsConn) WriteFrame(ctx context.Context, frame *proto.Frame) error {
	return wsjson.Write(ctx, c.conn, frame)
}

func (c *wsConn) Close(code websocket.StatusCode, reason string) error {
	return c.conn.Close(code, reason)
}
