package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parking-booking-backend/internal/store"
)

// GetRuns handles the GET /api/runs request. An optional limit query parameter
// caps the number of records, newest first.
func (h *Handler) GetRuns(c *gin.Context) {
	limit := store.DefaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list runs")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve runs"})
		return
	}
	c.JSON(http.StatusOK, runs)
}
