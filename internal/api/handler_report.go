package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetReport returns the report file written so far as plain text.
func (h *Handler) GetReport(c *gin.Context) {
	contents, err := h.report.Contents()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read report")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to read report"})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", contents)
}
