package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetMembers handles the GET /api/members request.
func (h *Handler) GetMembers(c *gin.Context) {
	members, err := h.store.ListMembers(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list members")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve members"})
		return
	}

	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	c.JSON(http.StatusOK, gin.H{"members": names})
}
