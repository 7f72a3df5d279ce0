package scheduler

import (
	"github.com/rs/zerolog"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/conflict"
)

// PriorityScheduler admits bookings in input order and, when a candidate does not
// fit, evicts one overlapping accepted booking of strictly lower priority.
type PriorityScheduler struct {
	checker conflict.Checker
	logger  zerolog.Logger
}

// NewPriority creates a priority-with-preemption scheduler.
func NewPriority(checker conflict.Checker, logger zerolog.Logger) *PriorityScheduler {
	return &PriorityScheduler{
		checker: checker,
		logger:  logger.With().Str("algorithm", string(Priority)).Logger(),
	}
}

func (s *PriorityScheduler) Algorithm() Algorithm { return Priority }

// Schedule runs the admission pass over a copy of the batch.
func (s *PriorityScheduler) Schedule(batch booking.Batch) Result {
	r := &run{batch: batch.Clone()}
	preempted := 0

	for i := range r.batch {
		item := &r.batch[i]
		if item.Status != booking.StatusPending {
			continue
		}

		if !s.checker.HasConflict(item, r.view()) {
			if item.Type.NeedsSlot() {
				item.Slot = s.checker.ResolveParkingSlot(item, r.view())
			}
			item.Status = booking.StatusAccepted
			r.accepted = append(r.accepted, i)
			continue
		}

		pos := s.victim(r, item)
		if pos < 0 || !s.takeOver(r, item, pos) {
			item.Reject()
			continue
		}

		victimIdx := r.accepted[pos]
		r.batch[victimIdx].Reject()
		item.Status = booking.StatusAccepted
		r.accepted[pos] = i
		preempted++

		s.logger.Debug().
			Int("candidate", i).
			Int("victim", victimIdx).
			Str("candidate_type", string(item.Type)).
			Str("victim_type", string(r.batch[victimIdx].Type)).
			Int("slot", item.Slot).
			Msg("booking preempted")
	}

	res := r.result(Priority)
	s.logger.Debug().
		Int("total", res.Total).
		Int("accepted", len(res.Accepted)).
		Int("rejected", len(res.Rejected)).
		Int("preempted", preempted).
		Msg("priority pass finished")
	return res
}

// victim walks the accepted list from the most recent admission backwards and
// returns the position of the last overlapping, strictly lower-priority booking
// met on that walk, i.e. the earliest such admission. -1 when there is none.
func (s *PriorityScheduler) victim(r *run, candidate *booking.Booking) int {
	pos := -1
	rank := candidate.Type.Priority()
	for j := len(r.accepted) - 1; j >= 0; j-- {
		other := &r.batch[r.accepted[j]]
		if !conflict.TimeOverlap(candidate, other) {
			continue
		}
		if other.Type.Priority() < rank {
			pos = j
		}
	}
	return pos
}

// takeOver checks that the candidate fits once the booking at pos is gone and
// assigns its slot, preferring the victim's. It leaves the candidate unchanged
// when the eviction would not make room.
func (s *PriorityScheduler) takeOver(r *run, candidate *booking.Booking, pos int) bool {
	remaining := conflict.Without{Admitted: r.view(), Skip: pos}
	if s.checker.EssentialConflict(candidate, remaining) {
		return false
	}
	if !candidate.Type.NeedsSlot() {
		return true
	}

	previous := candidate.Slot
	candidate.Slot = r.batch[r.accepted[pos]].Slot
	slot := s.checker.ResolveParkingSlot(candidate, remaining)
	if slot == booking.NoSlot {
		candidate.Slot = previous
		return false
	}
	candidate.Slot = slot
	return true
}
