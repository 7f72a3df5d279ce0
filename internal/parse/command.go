package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/scheduler"
)

var (
	ErrEmpty            = errors.New("empty command")
	ErrUnknownVerb      = errors.New("unknown command")
	ErrMissingArgument  = errors.New("missing argument")
	ErrMissingSemicolon = errors.New("command must end with a semicolon")
	ErrUnknownMode      = errors.New("unknown printBookings mode")
	ErrInvalidDuration  = errors.New("invalid duration")
)

// printArgRe matches the printBookings argument, e.g. "-fcfs;".
var printArgRe = regexp.MustCompile(`^-?([A-Za-z]+)(;?)$`)

// Verb is the first word of a command line.
type Verb string

const (
	VerbAddParking     Verb = "addParking"
	VerbAddReservation Verb = "addReservation"
	VerbBookEssentials Verb = "bookEssentials"
	VerbAddEvent       Verb = "addEvent"
	VerbPrintBookings  Verb = "printBookings"
	VerbAddBatch       Verb = "addBatch"
	VerbEndProgram     Verb = "endProgram"
)

var bookingVerbs = map[Verb]booking.Type{
	VerbAddParking:     booking.TypeParking,
	VerbAddReservation: booking.TypeReservation,
	VerbBookEssentials: booking.TypeEssentialsOnly,
	VerbAddEvent:       booking.TypeEvent,
}

// Mode selects the algorithms a printBookings command runs.
type Mode string

const (
	ModeFCFS Mode = "fcfs"
	ModePrio Mode = "prio"
	ModeAll  Mode = "ALL"
)

// Algorithms lists the algorithms the mode runs, in run order.
func (m Mode) Algorithms() []scheduler.Algorithm {
	switch m {
	case ModeFCFS:
		return []scheduler.Algorithm{scheduler.FCFS}
	case ModePrio:
		return []scheduler.Algorithm{scheduler.Priority}
	case ModeAll:
		return []scheduler.Algorithm{scheduler.FCFS, scheduler.Priority}
	}
	return nil
}

// Analyze reports whether the mode also produces the summary report.
func (m Mode) Analyze() bool { return m == ModeAll }

// Command is a parsed command line. Only the fields used by Verb are set.
type Command struct {
	Verb       Verb
	Member     string
	Date       string
	Time       string
	Duration   float64
	Essentials []string
	Mode       Mode
	Path       string
}

// IsBooking reports whether the command adds a booking.
func (c Command) IsBooking() bool {
	_, ok := bookingVerbs[c.Verb]
	return ok
}

// BookingType returns the booking type a booking verb creates.
func (c Command) BookingType() booking.Type {
	return bookingVerbs[c.Verb]
}

// ParseCommand parses one line of input. Member and file names may carry a
// leading '-'; booking commands may end with ';', printBookings and endProgram must.
func ParseCommand(line string) (Command, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return Command{}, ErrEmpty
	}
	fields := strings.Fields(s)
	verb := Verb(strings.TrimSuffix(fields[0], ";"))

	switch {
	case bookingVerbs[verb] != "":
		return parseBooking(verb, fields[1:])
	case verb == VerbPrintBookings:
		return parsePrint(fields[1:])
	case verb == VerbAddBatch:
		path := strings.TrimSuffix(strings.TrimPrefix(strings.Join(fields[1:], " "), "-"), ";")
		path = strings.TrimSpace(path)
		if path == "" {
			return Command{}, fmt.Errorf("%s: %w: file name", verb, ErrMissingArgument)
		}
		return Command{Verb: verb, Path: path}, nil
	case verb == VerbEndProgram:
		if !strings.HasSuffix(s, ";") {
			return Command{}, fmt.Errorf("%s: %w", verb, ErrMissingSemicolon)
		}
		return Command{Verb: verb}, nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownVerb, fields[0])
}

func parseBooking(verb Verb, args []string) (Command, error) {
	cleaned := make([]string, 0, len(args))
	for _, a := range args {
		a = strings.TrimSuffix(a, ";")
		if a != "" {
			cleaned = append(cleaned, a)
		}
	}
	if len(cleaned) < 4 {
		return Command{}, fmt.Errorf("%s: %w: want member, date, time and hours", verb, ErrMissingArgument)
	}

	duration, err := strconv.ParseFloat(cleaned[3], 64)
	if err != nil {
		return Command{}, fmt.Errorf("%s: %w: %q", verb, ErrInvalidDuration, cleaned[3])
	}

	cmd := Command{
		Verb:     verb,
		Member:   strings.TrimPrefix(cleaned[0], "-"),
		Date:     cleaned[1],
		Time:     cleaned[2],
		Duration: duration,
	}
	if len(cleaned) > 4 {
		cmd.Essentials = cleaned[4:]
	}
	return cmd, nil
}

func parsePrint(args []string) (Command, error) {
	arg := strings.Join(args, "")
	if arg == "" {
		return Command{}, fmt.Errorf("%s: %w: mode", VerbPrintBookings, ErrMissingArgument)
	}
	m := printArgRe.FindStringSubmatch(arg)
	if m == nil {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownMode, arg)
	}
	if m[2] != ";" {
		return Command{}, fmt.Errorf("%s: %w", VerbPrintBookings, ErrMissingSemicolon)
	}

	mode := Mode(m[1])
	if mode.Algorithms() == nil {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownMode, m[1])
	}
	return Command{Verb: VerbPrintBookings, Mode: mode}, nil
}
