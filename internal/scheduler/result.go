package scheduler

import (
	"fmt"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/conflict"
)

// Algorithm names an admission algorithm.
type Algorithm string

const (
	FCFS     Algorithm = "fcfs"
	Priority Algorithm = "prio"
)

// ParseAlgorithm maps a tag onto an Algorithm.
func ParseAlgorithm(tag string) (Algorithm, error) {
	switch Algorithm(tag) {
	case FCFS, Priority:
		return Algorithm(tag), nil
	}
	return "", fmt.Errorf("unknown scheduling algorithm %q", tag)
}

// Result is the outcome of one scheduling run over a batch.
type Result struct {
	Algorithm Algorithm `json:"algorithm"`
	// Accepted holds batch indices in admission order. After preemption this is
	// not input order.
	Accepted []int `json:"accepted"`
	// Slots holds the parking slot of each accepted booking, parallel to Accepted.
	Slots    []int `json:"slots"`
	Rejected []int `json:"rejected"`
	Total    int   `json:"total"`
}

// Complete builds a Result, deriving the rejected set as everything not accepted.
// Out-of-range and repeated indices never count as admissions.
func Complete(algo Algorithm, total int, accepted, slots []int) Result {
	isAccepted := make([]bool, total)
	admitted := 0
	for _, idx := range accepted {
		if idx >= 0 && idx < total && !isAccepted[idx] {
			isAccepted[idx] = true
			admitted++
		}
	}
	rejected := make([]int, 0, total-admitted)
	for i, ok := range isAccepted {
		if !ok {
			rejected = append(rejected, i)
		}
	}

	if slots == nil {
		slots = make([]int, len(accepted))
		for i := range slots {
			slots[i] = booking.NoSlot
		}
	}

	return Result{
		Algorithm: algo,
		Accepted:  append([]int(nil), accepted...),
		Slots:     append([]int(nil), slots...),
		Rejected:  rejected,
		Total:     total,
	}
}

// IsAccepted reports whether the batch index was admitted.
func (r Result) IsAccepted(idx int) bool {
	for _, a := range r.Accepted {
		if a == idx {
			return true
		}
	}
	return false
}

// SlotOf returns the slot assigned to an accepted index, or booking.NoSlot.
func (r Result) SlotOf(idx int) int {
	for i, a := range r.Accepted {
		if a == idx && i < len(r.Slots) {
			return r.Slots[i]
		}
	}
	return booking.NoSlot
}

// Scheduler admits bookings from a batch. Implementations schedule their own copy
// of the batch and leave the caller's bookings untouched.
type Scheduler interface {
	Algorithm() Algorithm
	Schedule(batch booking.Batch) Result
}

// run is the mutable state of one scheduling pass.
type run struct {
	batch    booking.Batch
	accepted []int
}

func (r *run) view() conflict.Indexed {
	return conflict.Indexed{Batch: r.batch, Order: r.accepted}
}

func (r *run) result(algo Algorithm) Result {
	slots := make([]int, len(r.accepted))
	for i, idx := range r.accepted {
		slots[i] = r.batch[idx].Slot
	}
	return Complete(algo, len(r.batch), r.accepted, slots)
}
