package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/repo"
	"github.com/Manzilah-gp/manzilah-web-sub001/internal/service"
)

type ChatHandler interface {
	ListConversations(c *gin.Context)
	GetMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	DeleteMessage(c *gin.Context)
	SearchUsers(c *gin.Context)
	CreateConversation(c *gin.Context)
}

type chatHandler struct {
	service service.ChatService
}

func NewChatHandler(svc service.ChatService) ChatHandler {
	return &chatHandler{service: svc}
}

func (h *chatHandler) ListConversations(c *gin.Context) {
	views, err := h.service.ListConversations(c.Request.Context(), c.GetString(CtxUserID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": views})
}

func (h *chatHandler) GetMessages(c *gin.Context) {
	messages, err := h.service.GetHistory(c.Request.Context(), c.GetString(CtxUserID), c.Param("conversationId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *chatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	msg, err := h.service.SendMessage(
		c.Request.Context(),
		c.GetString(CtxUserID),
		c.GetString(CtxUsername),
		c.Param("conversationId"),
		req.Text,
	)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *chatHandler) MarkRead(c *gin.Context) {
	err := h.service.MarkRead(c.Request.Context(), c.GetString(CtxUserID), c.Param("conversationId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *chatHandler) DeleteMessage(c *gin.Context) {
	err := h.service.DeleteMessage(
		c.Request.Context(),
		c.GetString(CtxUserID),
		c.Param("conversationId"),
		c.Param("messageId"),
	)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *chatHandler) SearchUsers(c *gin.Context) {
	users, err := h.service.SearchUsers(c.Request.Context(), c.GetString(CtxUserID), c.Query("q"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *chatHandler) CreateConversation(c *gin.Context) {
	var req service.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	view, err := h.service.CreateConversation(
		c.Request.Context(),
		c.GetString(CtxUserID),
		c.GetString(CtxUsername),
		req,
	)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": view})
}

// respondServiceError maps service-layer errors onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound),
		errors.Is(err, repo.ErrMessageNotFound),
		errors.Is(err, repo.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, repo.ErrNotMessageSender):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrQueryTooShort),
		errors.Is(err, service.ErrMissingParticipants),
		errors.Is(err, service.ErrInvalidConversationType),
		errors.Is(err, repo.ErrInvalidConversationID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
