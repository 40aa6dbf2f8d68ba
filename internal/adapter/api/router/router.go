package router

import (
	"github.com/labstack/echo/v4"

	"pairchat/internal/adapter/api/middleware"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, environment string) {
	SetupMessageRouter(e, authMiddleware)
	SetupAccountRouter(e, authMiddleware)
	SetupWebSocketRouter(e, authMiddleware)
	SetupHealthRouter(e)
	SetupDevRouter(e, environment)
}
