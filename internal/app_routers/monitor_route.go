package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/configuration"
)

func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitorRoute := router.Group("/monitor/api")
	{
		monitorRoute.GET("/stats", container.MonitorHandler.GetStats)
	}
}
