package scheduler

import (
	"github.com/rs/zerolog"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/conflict"
)

// FCFSScheduler admits bookings strictly in input order and never revisits a decision.
type FCFSScheduler struct {
	checker conflict.Checker
	logger  zerolog.Logger
}

// NewFCFS creates a first-come-first-served scheduler.
func NewFCFS(checker conflict.Checker, logger zerolog.Logger) *FCFSScheduler {
	return &FCFSScheduler{
		checker: checker,
		logger:  logger.With().Str("algorithm", string(FCFS)).Logger(),
	}
}

func (s *FCFSScheduler) Algorithm() Algorithm { return FCFS }

// Schedule runs a single forward pass over a copy of the batch.
func (s *FCFSScheduler) Schedule(batch booking.Batch) Result {
	r := &run{batch: batch.Clone()}

	for i := range r.batch {
		item := &r.batch[i]
		if item.Status != booking.StatusPending {
			continue
		}

		if item.Type.NeedsSlot() {
			if item.Slot == booking.NoSlot {
				item.Slot = s.checker.ResolveParkingSlot(item, r.view())
			}
			if item.Slot == booking.NoSlot {
				item.Reject()
				continue
			}
		}

		if s.checker.HasConflict(item, r.view()) {
			item.Reject()
			continue
		}
		item.Status = booking.StatusAccepted
		r.accepted = append(r.accepted, i)
	}

	res := r.result(FCFS)
	s.logger.Debug().
		Int("total", res.Total).
		Int("accepted", len(res.Accepted)).
		Int("rejected", len(res.Rejected)).
		Msg("fcfs pass finished")
	return res
}
