// Package proto defines the wire frames exchanged between the server and
// its clients. It is imported by both the server and the client package.
package proto

import "encoding/json"

// Frame is the envelope for messages in both directions.
type Frame struct {
	Type       string          `json:"type"`
	ChatroomID string          `json:"chatroom_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Frame types recognized on the wire.
const (
	TypeChatMessage = "chat_message"
	TypeReadReceipt = "read_receipt"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeError       = "error"
)

// Message content types carried inside chat_message frames.
const (
	MessageTypeText  = "text"
	MessageTypeMedia = "media"
)

// ChatMessageIn is the client payload for a new chat message.
type ChatMessageIn struct {
	MessageType string `json:"message_type"`
	TextContent string `json:"text_content,omitempty"`
	MediaURL    string `json:"media_url,omitempty"`
}

// ChatMessageOut is delivered to room members for each persisted message.
type ChatMessageOut struct {
	MessageID   int64  `json:"message_id"`
	SenderID    string `json:"sender_id"`
	MessageType string `json:"message_type"`
	TextContent string `json:"text_content,omitempty"`
	MediaURL    string `json:"media_url,omitempty"`
	SentAt      int64  `json:"sent_at"`
}

// ReadReceiptIn is the client payload acknowledging messages as read.
type ReadReceiptIn struct {
	ThroughMessageID int64 `json:"through_message_id"`
}

// ReadReceiptOut tells room members that a user's read marker advanced.
type ReadReceiptOut struct {
	UserID           string `json:"user_id"`
	ThroughMessageID int64  `json:"through_message_id"`
	ReadAt           int64  `json:"read_at"`
}

// Heartbeat is the payload of ping and pong frames.
type Heartbeat struct {
	Timestamp int64 `json:"timestamp"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// NewFrame marshals payload into a Frame envelope.
func NewFrame(frameType, chatroomID string, payload any) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: frameType, ChatroomID: chatroomID, Data: data}, nil
}
