package handler

import (
	"context"
	"encoding/json"
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"transportchat/internal/adapter/api/middleware"
	"transportchat/internal/domain/entity"
	ws "transportchat/internal/infrastructure/websocket"
	"transportchat/internal/usecase"
	"transportchat/pkg/errors"
	"transportchat/pkg/logger"
	"transportchat/pkg/response"
)

type WebSocketHandler struct {
	chatUseCase *usecase.ChatUseCase
	wsManager   *ws.Manager
	sendBuffer  int
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Mobile clients send no Origin; auth is by token.
	},
}

func NewWebSocketHandler(chatUseCase *usecase.ChatUseCase, wsManager *ws.Manager, sendBuffer int) *WebSocketHandler {
	return &WebSocketHandler{
		chatUseCase: chatUseCase,
		wsManager:   wsManager,
		sendBuffer:  sendBuffer,
	}
}

// HandleChat runs one chat session for the lifetime of the connection.
func (h *WebSocketHandler) HandleChat(c echo.Context) error {
	identity := middleware.Identity(c)
	if identity == nil {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}
	counterpartID := c.QueryParam("counterpart")
	if counterpartID == "" {
		return response.Error(c, errors.MissingIdentity("Counterpart id is required"))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	session := h.chatUseCase.NewSession(identity)
	defer session.Close()

	client := ws.NewClient(identity.UID, conn, h.sendBuffer, func(client *ws.Client, frameType string, data json.RawMessage) {
		if frameType != ws.MessageTypeSendMessage {
			client.SendError(errors.BadRequest("Unsupported message type: "+frameType, nil))
			return
		}

		var in ws.SendMessageData
		if err := json.Unmarshal(data, &in); err != nil {
			client.SendError(errors.BadRequest("Invalid send_message data", err))
			return
		}

		msg, err := session.Send(ctx, in.Text)
		if err != nil {
			client.SendError(err)
			return
		}
		if msg != nil {
			client.SendFrame(ws.MessageTypeMessageSent, ws.MessageSentData{
				ChatID:  session.ConversationID(),
				Message: ws.NewMessageData(msg),
			})
		}
	})

	if !h.wsManager.Add(client) {
		conn.Close()
		return nil
	}
	go client.WritePump()

	err = session.Open(ctx, counterpartID, func(messages []*entity.Message) {
		client.SendFrame(ws.MessageTypeMessages, ws.NewMessagesData(session.ConversationID(), messages))
	}, func(err error) {
		client.SendFrame(ws.MessageTypeSubscriptionError, ws.NewErrorData(err))
	})
	if err != nil {
		client.SendError(err)
		h.wsManager.Remove(client)
		return nil
	}

	logger.Info("Chat session %s opened by %s", session.ConversationID(), identity.UID)
	client.ReadPump(h.wsManager)
	logger.Info("Chat session %s closed by %s", session.ConversationID(), identity.UID)
	return nil
}

// HandleInbox streams the caller's conversation list.
func (h *WebSocketHandler) HandleInbox(c echo.Context) error {
	uid := middleware.UID(c)
	if uid == "" {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	client := ws.NewClient(uid, conn, h.sendBuffer, nil)
	if !h.wsManager.Add(client) {
		conn.Close()
		return nil
	}
	go client.WritePump()

	sub, err := h.chatUseCase.WatchInbox(ctx, uid, func(chats []*entity.ConversationSummary) {
		status := usecase.SummarizeUnread(chats, uid)
		client.SendFrame(ws.MessageTypeInbox, ws.InboxData{
			Chats:     chats,
			Total:     status.Total,
			HasUnread: status.HasUnread,
		})
	}, func(err error) {
		client.SendFrame(ws.MessageTypeSubscriptionError, ws.NewErrorData(err))
	})
	if err != nil {
		client.SendError(err)
		h.wsManager.Remove(client)
		return nil
	}
	defer sub.Unsubscribe()

	client.ReadPump(h.wsManager)
	return nil
}
