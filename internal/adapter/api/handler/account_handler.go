package handler

import (
	"github.com/labstack/echo/v4"

	"pairchat/internal/usecase"
	"pairchat/pkg/response"
)

type AccountHandler struct {
	messageUseCase *usecase.MessageUseCase
}

func NewAccountHandler(messageUseCase *usecase.MessageUseCase) *AccountHandler {
	return &AccountHandler{
		messageUseCase: messageUseCase,
	}
}

// Delete removes every message the caller took part in. The identity record
// itself is owned by the auth provider.
func (h *AccountHandler) Delete(c echo.Context) error {
	userID := c.Get("uid").(string)

	n, err := h.messageUseCase.PurgeAccount(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"deleted_user_id":  userID,
		"messages_removed": n,
	})
}
