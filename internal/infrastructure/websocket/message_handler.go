package websocket

import (
	"encoding/json"
	"log"
	"time"

	"transportchat/internal/domain/entity"
	"transportchat/pkg/errors"
)

// WebSocket Message Types
const (
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeSendMessage       = "send_message"
	MessageTypeMessages          = "messages"
	MessageTypeMessageSent       = "message_sent"
	MessageTypeSubscriptionError = "subscription_error"
	MessageTypeError             = "error"
	MessageTypeInbox             = "inbox"
)

// WSMessage is a frame sent to the client.
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// clientFrame is a frame received from the client.
type clientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type SendMessageData struct {
	Text string `json:"text"`
}

type MessageData struct {
	ID        string `json:"id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
}

type MessagesData struct {
	ChatID   string        `json:"chat_id"`
	Messages []MessageData `json:"messages"`
}

type MessageSentData struct {
	ChatID  string      `json:"chat_id"`
	Message MessageData `json:"message"`
}

type InboxData struct {
	Chats     []*entity.ConversationSummary `json:"chats"`
	Total     int                           `json:"total_unread"`
	HasUnread bool                          `json:"has_unread"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewMessageData(m *entity.Message) MessageData {
	data := MessageData{
		ID:       m.ID,
		SenderID: m.SenderID,
		Text:     m.Text,
		Pending:  m.Pending(),
	}
	if !m.Pending() {
		data.Timestamp = m.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return data
}

func NewMessagesData(chatID string, messages []*entity.Message) MessagesData {
	data := MessagesData{ChatID: chatID, Messages: make([]MessageData, 0, len(messages))}
	for _, m := range messages {
		data.Messages = append(data.Messages, NewMessageData(m))
	}
	return data
}

func NewErrorData(err error) ErrorData {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return ErrorData{Code: appErr.Code, Message: appErr.Message}
	}
	return ErrorData{Code: errors.CodeInternal, Message: "Internal server error"}
}

// SendFrame encodes and queues a frame.
func (c *Client) SendFrame(frameType string, data interface{}) bool {
	payload, err := json.Marshal(WSMessage{
		Type:      frameType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("WebSocket: failed to encode %s frame for %s: %v", frameType, c.ID, err)
		return false
	}
	return c.Enqueue(payload)
}

func (c *Client) SendError(err error) bool {
	return c.SendFrame(MessageTypeError, NewErrorData(err))
}

// HandleClientMessage processes incoming WebSocket messages
func (c *Client) HandleClientMessage(messageBytes []byte) {
	var frame clientFrame
	if err := json.Unmarshal(messageBytes, &frame); err != nil {
		log.Printf("WebSocket: Failed to unmarshal message from client %s: %v", c.ID, err)
		c.SendError(errors.BadRequest("Invalid message format", err))
		return
	}

	switch frame.Type {
	case MessageTypePing:
		c.SendFrame(MessageTypePong, nil)

	case "":
		c.SendError(errors.BadRequest("Message type is required", nil))

	default:
		if c.handler == nil {
			c.SendError(errors.BadRequest("Unsupported message type: "+frame.Type, nil))
			return
		}
		c.handler(c, frame.Type, frame.Data)
	}
}
