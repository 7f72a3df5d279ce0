package booking

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// NoSlot marks a booking without an assigned parking slot.
const NoSlot = -1

// MaxDuration is the longest booking, in hours.
const MaxDuration = 24

// MaxEssentials is the largest number of raw essential names a booking may carry.
const MaxEssentials = 2 * PairCount

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

var (
	ErrInvalidDateTime    = errors.New("invalid date/time format")
	ErrInvalidDuration    = errors.New("booking duration must be a positive number of hours up to 24")
	ErrTooManyEssentials  = errors.New("too many essentials requested")
	ErrUnknownEssential   = errors.New("unknown essential")
	ErrUnknownBookingType = errors.New("unknown booking type")
)

// Status is the admission state of a booking.
type Status int

const (
	StatusPending Status = iota
	StatusAccepted
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusAccepted:
		return "Accepted"
	case StatusRejected:
		return "Rejected"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Type is the kind of booking. It decides priority and whether a parking slot is needed.
type Type string

const (
	TypeParking        Type = "Parking"
	TypeReservation    Type = "Reservation"
	TypeEvent          Type = "Event"
	TypeEssentialsOnly Type = "Essentials"
)

// Priority returns the preemption rank of the type. Higher wins.
func (t Type) Priority() int {
	switch t {
	case TypeEvent:
		return 3
	case TypeReservation:
		return 2
	case TypeParking:
		return 1
	}
	return 0
}

// NeedsSlot reports whether bookings of this type consume a parking slot.
func (t Type) NeedsSlot() bool {
	return t != TypeEssentialsOnly
}

// ParseType maps a type name onto a Type.
func ParseType(name string) (Type, error) {
	switch Type(name) {
	case TypeParking, TypeReservation, TypeEvent, TypeEssentialsOnly:
		return Type(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBookingType, name)
}

// Booking is a request for a parking slot and/or essentials over [Start, End).
type Booking struct {
	Member     string    `json:"member"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Duration   float64   `json:"duration"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Slot       int       `json:"slot"`
	Essentials []string  `json:"essentials"`
	Status     Status    `json:"status"`
	Type       Type      `json:"type"`
}

// New validates the request fields and returns a Pending booking.
func New(member, date, clock string, duration float64, typ Type, essentials []string) (Booking, error) {
	start, err := time.ParseInLocation(dateLayout+" "+clockLayout, date+" "+clock, time.UTC)
	if err != nil || len(date) != len(dateLayout) || len(clock) != len(clockLayout) {
		return Booking{}, fmt.Errorf("%w: %s %s", ErrInvalidDateTime, date, clock)
	}
	if math.IsNaN(duration) || duration <= 0 || duration > MaxDuration {
		return Booking{}, fmt.Errorf("%w: %g", ErrInvalidDuration, duration)
	}
	if _, err := ParseType(string(typ)); err != nil {
		return Booking{}, err
	}
	if len(essentials) > MaxEssentials {
		return Booking{}, fmt.Errorf("%w: %d (max %d)", ErrTooManyEssentials, len(essentials), MaxEssentials)
	}
	for _, name := range essentials {
		if _, ok := Pair(name); !ok {
			return Booking{}, fmt.Errorf("%w: %q", ErrUnknownEssential, name)
		}
	}

	return Booking{
		Member:     member,
		Date:       date,
		Time:       clock,
		Duration:   duration,
		Start:      start,
		End:        start.Add(time.Duration(duration * float64(time.Hour))),
		Slot:       NoSlot,
		Essentials: append([]string(nil), essentials...),
		Status:     StatusPending,
		Type:       typ,
	}, nil
}

// EndClock formats the end of the booking as hh:mm on the booking's own clock,
// without wrapping past midnight.
func (b *Booking) EndClock() string {
	minutes := int(b.End.Sub(b.Start).Minutes()) + b.Start.Hour()*60 + b.Start.Minute()
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Reject marks the booking rejected and releases its slot.
func (b *Booking) Reject() {
	b.Status = StatusRejected
	b.Slot = NoSlot
}

// Batch is an ordered set of bookings. Indices into a batch identify bookings
// across pipeline stages.
type Batch []Booking

// Clone returns a deep copy so the receiver can be handed to another stage.
func (b Batch) Clone() Batch {
	if b == nil {
		return nil
	}
	out := make(Batch, len(b))
	for i, item := range b {
		item.Essentials = append([]string(nil), item.Essentials...)
		out[i] = item
	}
	return out
}

// Pending returns a copy of the bookings still waiting for admission.
func (b Batch) Pending() Batch {
	out := make(Batch, 0, len(b))
	for _, item := range b {
		if item.Status == StatusPending {
			out = append(out, item)
		}
	}
	return out.Clone()
}
