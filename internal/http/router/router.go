package router

import (
	"github.com/gin-gonic/gin"

	"github.com/kenzic/unhinged-side-quest-research-agent/internal/http/handler"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/service"
)

func SetupRoutes(router *gin.Engine, chat service.ChatService) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		chatHandler := handler.NewChatHandler(chat)
		ChatRouter(v1, chatHandler)
	}
}
