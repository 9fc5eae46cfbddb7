package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/hub"
)

type MonitorHandler interface {
	GetStats(c *gin.Context)
}

type monitorHandler struct {
	hub *hub.Hub
}

func NewMonitorHandler(h *hub.Hub) MonitorHandler {
	return &monitorHandler{hub: h}
}

// GetStats reports live connection and room state for the ops dashboard.
func (h *monitorHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Snapshot())
}
