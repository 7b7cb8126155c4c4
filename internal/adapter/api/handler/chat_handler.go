package handler

import (
	"github.com/labstack/echo/v4"

	"transportchat/internal/adapter/api/middleware"
	"transportchat/internal/usecase"
	"transportchat/pkg/response"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"max=2000"`
}

// GetInbox returns the caller's conversations, most recent first.
func (h *ChatHandler) GetInbox(c echo.Context) error {
	chats, err := h.chatUseCase.ListInbox(c.Request().Context(), middleware.UID(c))
	if err != nil {
		return response.Error(c, err)
	}

	return response.List(c, chats, len(chats))
}

func (h *ChatHandler) GetUnread(c echo.Context) error {
	status, err := h.chatUseCase.UnreadTotal(c.Request().Context(), middleware.UID(c))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, status)
}

func (h *ChatHandler) GetChat(c echo.Context) error {
	summary, err := h.chatUseCase.GetSummary(c.Request().Context(), middleware.UID(c), c.Param("counterpartId"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, summary)
}

func (h *ChatHandler) GetMessages(c echo.Context) error {
	messages, err := h.chatUseCase.LoadMessages(c.Request().Context(), middleware.UID(c), c.Param("counterpartId"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.List(c, messages, len(messages))
}

// SendMessage posts one message. Blank text is accepted and ignored.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	msg, err := h.chatUseCase.SendMessage(c.Request().Context(), middleware.Identity(c), c.Param("counterpartId"), req.Text)
	if err != nil {
		return response.Error(c, err)
	}
	if msg == nil {
		return response.Accepted(c, map[string]bool{"ignored": true})
	}

	return response.Created(c, msg)
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	if err := h.chatUseCase.MarkRead(c.Request().Context(), middleware.UID(c), c.Param("counterpartId")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Chat marked as read"})
}
