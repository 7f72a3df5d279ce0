package api

import (
	"context"

	"github.com/rs/zerolog"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/intake"
	"parking-booking-backend/internal/report"
	"parking-booking-backend/internal/scheduler"
	"parking-booking-backend/internal/store"
)

// Session is the part of intake.Session the handlers drive.
type Session interface {
	Execute(ctx context.Context, line string) (intake.Reply, error)
	Pending() booking.Batch
	InvalidCount() int
	LastResults() ([]scheduler.Result, bool)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	session Session
	store   store.Store
	report  report.Sink
	logger  zerolog.Logger

	// onExit is called once endProgram has been accepted over HTTP.
	onExit func()
}

// NewHandler creates a new API handler. onExit may be nil.
func NewHandler(session Session, s store.Store, sink report.Sink, logger zerolog.Logger, onExit func()) *Handler {
	return &Handler{
		session: session,
		store:   s,
		report:  sink,
		logger:  logger.With().Str("component", "api").Logger(),
		onExit:  onExit,
	}
}
