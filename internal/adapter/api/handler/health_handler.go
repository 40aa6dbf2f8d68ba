package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	store  Pinger
	online func() int
}

func NewHealthHandler(store Pinger, online func() int) *HealthHandler {
	return &HealthHandler{
		store:  store,
		online: online,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status": "Server is running",
		"time":   time.Now().Format(time.RFC3339),
	}
	if h.online != nil {
		body["online_users"] = h.online()
	}
	return c.JSON(http.StatusOK, body)
}

func (h *HealthHandler) CheckStoreHealth(c echo.Context) error {
	if h.store == nil {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "In-memory store",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "Message store unreachable",
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "Message store connected successfully",
	})
}
