package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kvasirlabs/syntharb/internal/cache"
	"github.com/kvasirlabs/syntharb/internal/database"
	"github.com/kvasirlabs/syntharb/internal/services"
)

const defaultOpportunityLimit = 50

// StatusHandler exposes the pipeline's runtime state: processing stats,
// the current relationship view and recently stored opportunities.
type StatusHandler struct {
	processor     *services.Processor
	engine        *services.CovarianceEngine
	detector      *services.Detector
	opportunities *database.OpportunityRepository // optional
	relCache      *cache.RedisRelationshipCache   // optional
	logger        *logrus.Logger
}

func NewStatusHandler(
	processor *services.Processor,
	engine *services.CovarianceEngine,
	detector *services.Detector,
	opportunities *database.OpportunityRepository,
	relCache *cache.RedisRelationshipCache,
	logger *logrus.Logger,
) *StatusHandler {
	return &StatusHandler{
		processor:     processor,
		engine:        engine,
		detector:      detector,
		opportunities: opportunities,
		relCache:      relCache,
		logger:        logger,
	}
}

// GetStats returns processing, covariance and detector statistics in one
// payload.
func (h *StatusHandler) GetStats(c *gin.Context) {
	response := gin.H{
		"processing": h.processor.Stats(),
		"covariance": h.engine.Statistics(),
		"detector":   h.detector.Statistics(),
	}
	if h.relCache != nil {
		response["relationship_cache"] = h.relCache.Stats()
	}
	c.JSON(http.StatusOK, response)
}

// GetRelationships returns the current high-confidence relationship set.
// min_confidence overrides the default bar of 0.
func (h *StatusHandler) GetRelationships(c *gin.Context) {
	minConfidence := 0.0
	if raw := c.Query("min_confidence"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_confidence must be a number between 0 and 1"})
			return
		}
		minConfidence = parsed
	}

	relationships := h.engine.HighConfidenceRelationships(minConfidence)
	c.JSON(http.StatusOK, gin.H{
		"count":         len(relationships),
		"relationships": relationships,
	})
}

// GetOpportunities returns recently stored opportunities, newest first.
func (h *StatusHandler) GetOpportunities(c *gin.Context) {
	if h.opportunities == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "opportunity storage is not configured"})
		return
	}

	limit := defaultOpportunityLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	opportunities, err := h.opportunities.RecentOpportunities(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load recent opportunities")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load opportunities"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":         len(opportunities),
		"opportunities": opportunities,
	})
}
