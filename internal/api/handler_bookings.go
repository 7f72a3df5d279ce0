package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/scheduler"
)

type bookingsResponse struct {
	Pending      booking.Batch `json:"pending"`
	InvalidCount int           `json:"invalid_count"`
	LastRun      []runStatus   `json:"last_run,omitempty"`
}

// runStatus is the admission outcome of every booking in the last run of one algorithm.
type runStatus struct {
	Algorithm scheduler.Algorithm `json:"algorithm"`
	Bookings  []admission         `json:"bookings"`
}

type admission struct {
	Index    int  `json:"index"`
	Accepted bool `json:"accepted"`
	Slot     int  `json:"slot"`
}

// GetBookings handles the GET /api/bookings request.
func (h *Handler) GetBookings(c *gin.Context) {
	pending := h.session.Pending()
	if pending == nil {
		pending = booking.Batch{}
	}
	resp := bookingsResponse{
		Pending:      pending,
		InvalidCount: h.session.InvalidCount(),
	}
	if results, ok := h.session.LastResults(); ok {
		resp.LastRun = lastRun(results)
	}
	c.JSON(http.StatusOK, resp)
}

func lastRun(results []scheduler.Result) []runStatus {
	out := make([]runStatus, 0, len(results))
	for _, res := range results {
		status := runStatus{Algorithm: res.Algorithm, Bookings: make([]admission, 0, res.Total)}
		for i := 0; i < res.Total; i++ {
			status.Bookings = append(status.Bookings, admission{
				Index:    i,
				Accepted: res.IsAccepted(i),
				Slot:     res.SlotOf(i),
			})
		}
		out = append(out, status)
	}
	return out
}
