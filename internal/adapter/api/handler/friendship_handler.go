package handler

import (
	"github.com/labstack/echo/v4"

	ws "pairchat/internal/infrastructure/websocket"
	"pairchat/pkg/errors"
	"pairchat/pkg/response"
)

type FriendshipSignaler interface {
	SignalFriendship(kind, targetUserID string, friend ws.FriendSummary) bool
}

type FriendshipHandler struct {
	signaler FriendshipSignaler
}

func NewFriendshipHandler(signaler FriendshipSignaler) *FriendshipHandler {
	return &FriendshipHandler{
		signaler: signaler,
	}
}

type friendshipSignalRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=newFriendRequest requestAccepted friendListUpdated"`
	TargetID string `json:"target_id" validate:"required"`
	Friend   struct {
		ID      string `json:"id" validate:"required"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	} `json:"friend"`
}

// Signal relays a friend workflow event to one user. A request or an
// acceptance must describe the caller; a list refresh may only target the
// caller.
func (h *FriendshipHandler) Signal(c echo.Context) error {
	var req friendshipSignalRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	switch req.Kind {
	case ws.TypeNewFriendRequest, ws.TypeRequestAccepted:
		if req.Friend.ID != userID {
			return response.Error(c, errors.Forbidden("Friend summary must describe the caller", nil))
		}
		if req.TargetID == userID {
			return response.Error(c, errors.BadRequest("Cannot signal yourself", nil))
		}
	case ws.TypeFriendListUpdated:
		if req.TargetID != userID {
			return response.Error(c, errors.Forbidden("Friend list updates may only target the caller", nil))
		}
	}

	delivered := h.signaler.SignalFriendship(req.Kind, req.TargetID, ws.FriendSummary{
		ID:      req.Friend.ID,
		Name:    req.Friend.Name,
		Picture: req.Friend.Picture,
	})

	return response.Success(c, map[string]bool{"delivered": delivered})
}
