package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"pairchat/pkg/response"
)

type TokenIssuer interface {
	IssueToken(userID string) (string, time.Time, error)
}

type DevTokenHandler struct {
	issuer TokenIssuer
}

func NewDevTokenHandler(issuer TokenIssuer) *DevTokenHandler {
	return &DevTokenHandler{
		issuer: issuer,
	}
}

type devTokenRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

// IssueToken signs a token for any user id. Only mounted in development.
func (h *DevTokenHandler) IssueToken(c echo.Context) error {
	var req devTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	token, expiresAt, err := h.issuer.IssueToken(req.UserID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"token":      token,
		"user_id":    req.UserID,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}
