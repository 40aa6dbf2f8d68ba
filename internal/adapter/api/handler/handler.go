package handler

import (
	ws "pairchat/internal/infrastructure/websocket"
	"pairchat/internal/usecase"
)

var (
	messageHandler    *MessageHandler
	accountHandler    *AccountHandler
	presenceHandler   *PresenceHandler
	friendshipHandler *FriendshipHandler
	webSocketHandler  *WebSocketHandler
	healthHandler     *HealthHandler
	devTokenHandler   *DevTokenHandler
)

// Setup builds the handlers the routers look up. issuer may be nil when the
// auth provider cannot mint tokens locally; the dev routes are then skipped.
func Setup(
	messageUseCase *usecase.MessageUseCase,
	mediaUseCase *usecase.MediaUseCase,
	wsManager *ws.Manager,
	allowedOrigins []string,
	store Pinger,
	issuer TokenIssuer,
) {
	messageHandler = NewMessageHandler(messageUseCase, mediaUseCase)
	accountHandler = NewAccountHandler(messageUseCase)
	presenceHandler = NewPresenceHandler(wsManager)
	friendshipHandler = NewFriendshipHandler(wsManager)
	webSocketHandler = NewWebSocketHandler(wsManager, allowedOrigins)
	healthHandler = NewHealthHandler(store, func() int { return len(wsManager.OnlineUsers()) })
	devTokenHandler = nil
	if issuer != nil {
		devTokenHandler = NewDevTokenHandler(issuer)
	}
}

func GetMessageHandler() *MessageHandler {
	return messageHandler
}

func GetAccountHandler() *AccountHandler {
	return accountHandler
}

func GetPresenceHandler() *PresenceHandler {
	return presenceHandler
}

func GetFriendshipHandler() *FriendshipHandler {
	return friendshipHandler
}

func GetWebSocketHandler() *WebSocketHandler {
	return webSocketHandler
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}
