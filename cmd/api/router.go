package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		agent := api.Group("/agent")
		{
			agent.GET("/status", h.GetStatus)
			agent.GET("/users/:userId", h.GetUserStatus)
			agent.POST("/users/:userId/run", h.TriggerRun)
			agent.GET("/users/:userId/activities", h.GetActivities)
			agent.POST("/users/:userId/devices", h.RegisterDevice)
		}
	}
}
