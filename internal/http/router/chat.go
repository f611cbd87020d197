package router

import (
	"github.com/gin-gonic/gin"

	"github.com/kenzic/unhinged-side-quest-research-agent/internal/http/handler"
)

func ChatRouter(rg *gin.RouterGroup, h *handler.ChatHandler) {
	rg.POST("/chat", h.Chat)
	rg.POST("/chat/async", h.ChatAsync)
	rg.GET("/conversations/:id", h.Conversation)
	rg.GET("/turns/:turn_id/events", h.TurnEvents)
}
