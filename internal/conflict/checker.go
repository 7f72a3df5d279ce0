package conflict

import (
	"strings"

	"parking-booking-backend/internal/booking"
)

// Default capacities used when the configuration leaves them unset.
const (
	DefaultSlots             = 3
	DefaultEssentialCapacity = 3
)

// Admitted is a read-only view of the bookings accepted so far, in admission order.
type Admitted interface {
	Len() int
	At(i int) *booking.Booking
}

// List adapts a plain slice of bookings to Admitted.
type List []booking.Booking

func (l List) Len() int                  { return len(l) }
func (l List) At(i int) *booking.Booking { return &l[i] }

// Indexed is the accepted subset of a batch, addressed through batch indices.
type Indexed struct {
	Batch booking.Batch
	Order []int
}

func (x Indexed) Len() int                  { return len(x.Order) }
func (x Indexed) At(i int) *booking.Booking { return &x.Batch[x.Order[i]] }

// Checker decides whether a candidate booking fits next to an accepted set.
// It holds no usage state: every call recomputes occupancy from the accepted set.
type Checker struct {
	Slots             int
	EssentialCapacity int
}

// NewChecker returns a checker, falling back to default capacities for values <= 0.
func NewChecker(slots, essentialCapacity int) Checker {
	if slots <= 0 {
		slots = DefaultSlots
	}
	if essentialCapacity <= 0 {
		essentialCapacity = DefaultEssentialCapacity
	}
	return Checker{Slots: slots, EssentialCapacity: essentialCapacity}
}

// TimeOverlap reports whether two bookings share any instant on the same date.
// Bookings on different dates never overlap.
func TimeOverlap(a, b *booking.Booking) bool {
	if a.Date != b.Date {
		return false
	}
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// ResolveParkingSlot returns the slot the candidate can use, or booking.NoSlot.
// A candidate keeps its current slot while that slot is still free.
func (c Checker) ResolveParkingSlot(candidate *booking.Booking, accepted Admitted) int {
	free := make([]bool, c.Slots)
	for i := range free {
		free[i] = true
	}

	for i := 0; i < accepted.Len(); i++ {
		other := accepted.At(i)
		if other == candidate || !TimeOverlap(candidate, other) {
			continue
		}
		if other.Slot >= 0 && other.Slot < c.Slots {
			free[other.Slot] = false
		}
	}

	if candidate.Slot >= 0 && candidate.Slot < c.Slots && free[candidate.Slot] {
		return candidate.Slot
	}
	for slot, ok := range free {
		if ok {
			return slot
		}
	}
	return booking.NoSlot
}

// EssentialConflict reports whether the candidate's essentials cannot be served.
// Unknown essential names always conflict. Usage is counted per requested name.
func (c Checker) EssentialConflict(candidate *booking.Booking, accepted Admitted) bool {
	for _, name := range candidate.Essentials {
		if _, ok := booking.Pair(name); !ok {
			return true
		}
	}

	for _, name := range candidate.Essentials {
		usage := 0
		for i := 0; i < accepted.Len(); i++ {
			other := accepted.At(i)
			if other == candidate || !TimeOverlap(candidate, other) {
				continue
			}
			for _, held := range other.Essentials {
				if strings.EqualFold(held, name) {
					usage++
				}
			}
		}
		if usage >= c.EssentialCapacity {
			return true
		}
	}
	return false
}

// HasConflict combines the parking and essential checks for the candidate's type.
func (c Checker) HasConflict(candidate *booking.Booking, accepted Admitted) bool {
	if !candidate.Type.NeedsSlot() {
		return c.EssentialConflict(candidate, accepted)
	}
	if c.ResolveParkingSlot(candidate, accepted) == booking.NoSlot {
		return true
	}
	return c.EssentialConflict(candidate, accepted)
}

// Without hides one position of an Admitted view.
type Without struct {
	Admitted
	Skip int
}

func (w Without) Len() int { return w.Admitted.Len() - 1 }

func (w Without) At(i int) *booking.Booking {
	if i >= w.Skip {
		i++
	}
	return w.Admitted.At(i)
}
