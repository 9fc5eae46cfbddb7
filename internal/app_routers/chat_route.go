package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/configuration"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/handler"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	api := router.Group("/api")
	api.Use(handler.AuthRequired([]byte(container.Config.Auth.Secret)))
	{
		api.GET("/conversations", container.ChatHandler.ListConversations)
		api.POST("/conversations", container.ChatHandler.CreateConversation)
		api.GET("/conversations/:conversationId/messages", container.ChatHandler.GetMessages)
		api.POST("/conversations/:conversationId/messages", container.ChatHandler.SendMessage)
		api.POST("/conversations/:conversationId/read", container.ChatHandler.MarkRead)
		api.DELETE("/conversations/:conversationId/messages/:messageId", container.ChatHandler.DeleteMessage)
		api.GET("/users/search", container.ChatHandler.SearchUsers)
	}
}
