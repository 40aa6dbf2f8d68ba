package router

import (
	"github.com/labstack/echo/v4"

	"pairchat/internal/adapter/api/handler"
	"pairchat/internal/adapter/api/middleware"
)

func SetupMessageRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	messageHandler := handler.GetMessageHandler()

	msg := e.Group("/v1/msg")
	msg.Use(authMiddleware.Authenticate)

	msg.POST("/create", messageHandler.Create)
	msg.GET("/get/:contactId", messageHandler.Get)
	msg.POST("/mark-read/:contactId", messageHandler.MarkRead)
	msg.DELETE("/delete/:messageId", messageHandler.Delete)
	msg.POST("/star/:messageId", messageHandler.Star)
	msg.POST("/hide/:messageId", messageHandler.Hide)
	msg.POST("/clear/:contactId", messageHandler.Clear)
	msg.POST("/upload", messageHandler.Upload)
}
