package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kvasirlabs/syntharb/internal/api/handlers"
)

// SetupRoutes registers the read-only observability endpoints.
func SetupRoutes(router *gin.Engine, status *handlers.StatusHandler, health *handlers.HealthHandler) {
	router.GET("/health", health.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stats", status.GetStats)
		v1.GET("/relationships", status.GetRelationships)
		v1.GET("/opportunities", status.GetOpportunities)
	}
}
