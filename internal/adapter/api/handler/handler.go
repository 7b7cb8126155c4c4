package handler

import (
	ws "transportchat/internal/infrastructure/websocket"
	"transportchat/internal/usecase"
)

var (
	chatHandler      *ChatHandler
	profileHandler   *ProfileHandler
	webSocketHandler *WebSocketHandler
)

func Setup(chatUseCase *usecase.ChatUseCase, wsManager *ws.Manager, wsSendBuffer int) {
	chatHandler = NewChatHandler(chatUseCase)
	profileHandler = NewProfileHandler(chatUseCase)
	webSocketHandler = NewWebSocketHandler(chatUseCase, wsManager, wsSendBuffer)
}

func GetChatHandler() *ChatHandler {
	return chatHandler
}

func GetProfileHandler() *ProfileHandler {
	return profileHandler
}

func GetWebSocketHandler() *WebSocketHandler {
	return webSocketHandler
}
