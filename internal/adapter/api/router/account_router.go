package router

import (
	"github.com/labstack/echo/v4"

	"pairchat/internal/adapter/api/handler"
	"pairchat/internal/adapter/api/middleware"
)

func SetupAccountRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	v1 := e.Group("/v1")
	v1.Use(authMiddleware.Authenticate)

	v1.DELETE("/account", handler.GetAccountHandler().Delete)
	v1.GET("/presence", handler.GetPresenceHandler().List)
	v1.POST("/signals/friendship", handler.GetFriendshipHandler().Signal)
}
