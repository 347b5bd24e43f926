package router

import (
	"context"

	"chat_sync_service/internal/chat/app"
	"chat_sync_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 註冊 chat sync 的路由
func RegisterRoutes(r *fiber.App, chatWebsocket *app.ChatWebsocketHandler) {
	r.Get("/healthz", ConnectCheck)
	r.Post("/debug", DebugLogFlag)

	ws := r.Group("/ws", middlewares.JWTMiddleware(), requireUpgrade)
	ws.Get("", websocket.New(func(c *websocket.Conn) {
		// 每條連線一個 Engine, 連線結束才返回
		chatWebsocket.HandleConnection(context.Background(), c)
	}))
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
