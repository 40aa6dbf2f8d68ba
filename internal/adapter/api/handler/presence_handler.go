package handler

import (
	"github.com/labstack/echo/v4"

	"pairchat/pkg/response"
)

type Presence interface {
	OnlineUsers() []string
}

type PresenceHandler struct {
	presence Presence
}

func NewPresenceHandler(presence Presence) *PresenceHandler {
	return &PresenceHandler{
		presence: presence,
	}
}

func (h *PresenceHandler) List(c echo.Context) error {
	return response.Success(c, map[string][]string{
		"users": h.presence.OnlineUsers(),
	})
}
