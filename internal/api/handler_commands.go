package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-booking-backend/internal/intake"
	"parking-booking-backend/internal/pipeline"
)

type postCommandRequest struct {
	Line string `json:"line" binding:"required"`
}

// PostCommand handles POST /api/commands. The body carries one command line,
// exactly as it would be typed into the shell.
func (h *Handler) PostCommand(c *gin.Context) {
	var req postCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	reply, err := h.session.Execute(c.Request.Context(), req.Line)
	switch {
	case errors.Is(err, intake.ErrSessionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, pipeline.ErrProtocol):
		h.logger.Warn().Err(err).Str("line", req.Line).Msg("run aborted")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "reply": reply})
		return
	case err != nil:
		h.logger.Error().Err(err).Str("line", req.Line).Msg("command failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "reply": reply})
		return
	}

	status := http.StatusOK
	if reply.Invalid {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, reply)

	if reply.Exit && h.onExit != nil {
		h.onExit()
	}
}
