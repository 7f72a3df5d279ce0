package intake

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/model"
	"parking-booking-backend/internal/parse"
	"parking-booking-backend/internal/pipeline"
	"parking-booking-backend/internal/scheduler"
	"parking-booking-backend/internal/store"
)

// MaxBatchDepth bounds addBatch nesting.
const MaxBatchDepth = 8

// ErrSessionClosed is returned by Execute after endProgram.
var ErrSessionClosed = errors.New("session closed")

// Runner executes printBookings runs. *pipeline.Coordinator implements it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error)
	Shutdown(ctx context.Context) error
}

// Reply is what a command produced, for display.
type Reply struct {
	Message string `json:"message"`
	// Invalid is set when the command was counted as invalid.
	Invalid bool `json:"invalid"`
	// Outcome is set after a successful printBookings.
	Outcome *pipeline.Outcome `json:"outcome,omitempty"`
	// Exit is set by endProgram.
	Exit bool `json:"exit"`
}

// Session owns the pending batch and the invalid-command counter. Commands are
// executed one at a time, whichever surface they come from.
type Session struct {
	runner Runner
	store  store.Store
	logger zerolog.Logger

	mu      sync.Mutex
	batch   booking.Batch
	invalid int
	last    *pipeline.Outcome
	closed  bool
}

func NewSession(runner Runner, s store.Store, logger zerolog.Logger) *Session {
	return &Session{
		runner: runner,
		store:  s,
		logger: logger.With().Str("component", "intake").Logger(),
	}
}

// Execute runs one command line. Invalid commands are counted and reported in
// the Reply; the returned error is reserved for failures of the run machinery
// or storage, and for a closed session.
func (s *Session) Execute(ctx context.Context, line string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Reply{}, ErrSessionClosed
	}
	return s.execute(ctx, line, 0)
}

func (s *Session) execute(ctx context.Context, line string, depth int) (Reply, error) {
	cmd, err := parse.ParseCommand(line)
	switch {
	case errors.Is(err, parse.ErrEmpty):
		return Reply{}, nil
	case err != nil:
		return s.reject(err.Error()), nil
	}

	s.logger.Debug().Str("verb", string(cmd.Verb)).Int("depth", depth).Msg("command received")

	switch {
	case cmd.IsBooking():
		return s.addBooking(ctx, cmd)
	case cmd.Verb == parse.VerbPrintBookings:
		return s.printBookings(ctx, cmd.Mode)
	case cmd.Verb == parse.VerbAddBatch:
		return s.addBatch(ctx, cmd.Path, depth)
	case cmd.Verb == parse.VerbEndProgram:
		if depth > 0 {
			return s.reject("endProgram is not allowed inside a batch file"), nil
		}
		return s.end(ctx)
	}
	return s.reject(fmt.Sprintf("unhandled command %q", cmd.Verb)), nil
}

func (s *Session) reject(reason string) Reply {
	s.invalid++
	s.logger.Warn().Str("reason", reason).Int("invalid_count", s.invalid).Msg("invalid command")
	return Reply{Message: "Error: " + reason, Invalid: true}
}

func (s *Session) addBooking(ctx context.Context, cmd parse.Command) (Reply, error) {
	ok, err := s.store.IsMember(ctx, cmd.Member)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return s.reject(fmt.Sprintf("invalid member name %q", cmd.Member)), nil
	}

	b, err := booking.New(cmd.Member, cmd.Date, cmd.Time, cmd.Duration, cmd.BookingType(), cmd.Essentials)
	if err != nil {
		return s.reject(err.Error()), nil
	}
	s.batch = append(s.batch, b)
	return Reply{Message: "-> [Pending]"}, nil
}

func (s *Session) printBookings(ctx context.Context, mode parse.Mode) (Reply, error) {
	out, err := s.runner.Run(ctx, pipeline.Request{
		Algorithms:   mode.Algorithms(),
		Batch:        s.batch.Clone(),
		Analyze:      mode.Analyze(),
		InvalidCount: s.invalid,
	})
	if errors.Is(err, pipeline.ErrNoPendingBookings) {
		return s.reject("no pending bookings available for processing"), nil
	}
	if err != nil {
		return Reply{Message: "Error: " + err.Error()}, fmt.Errorf("printBookings -%s: %w", mode, err)
	}

	s.last = &out
	if err := s.store.RecordRun(ctx, s.records(out)); err != nil {
		return Reply{Message: "-> [Done]", Outcome: &out}, err
	}
	return Reply{Message: "-> [Done]", Outcome: &out}, nil
}

func (s *Session) records(out pipeline.Outcome) []model.RunRecord {
	records := make([]model.RunRecord, 0, len(out.Results))
	for _, res := range out.Results {
		records = append(records, model.RunRecord{
			RunID:           out.RunID,
			Algorithm:       string(res.Algorithm),
			Total:           res.Total,
			Accepted:        len(res.Accepted),
			Rejected:        len(res.Rejected),
			InvalidCount:    s.invalid,
			AcceptedIndices: res.Accepted,
			Slots:           res.Slots,
			StartedAt:       out.StartedAt,
			FinishedAt:      out.FinishedAt,
		})
	}
	return records
}

// addBatch replays a file line by line as if each line had been typed.
func (s *Session) addBatch(ctx context.Context, path string, depth int) (Reply, error) {
	if depth >= MaxBatchDepth {
		return s.reject(fmt.Sprintf("addBatch nested deeper than %d", MaxBatchDepth)), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return s.reject(fmt.Sprintf("unable to open batch file: %v", err)), nil
	}
	defer f.Close()

	var (
		lines int
		errs  []error
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		if _, err := s.execute(ctx, scanner.Text(), depth+1); err != nil {
			s.logger.Error().Err(err).Str("file", path).Int("line", lines).Msg("batch command failed")
			errs = append(errs, fmt.Errorf("%s:%d: %w", path, lines, err))
		}
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("read %s: %w", path, err))
	}

	s.logger.Info().Str("file", path).Int("lines", lines).Int("pending", len(s.batch)).Msg("batch file processed")
	return Reply{Message: fmt.Sprintf("-> [Pending] %d line(s) from %s", lines, path)}, errors.Join(errs...)
}

func (s *Session) end(ctx context.Context) (Reply, error) {
	s.closed = true
	if err := s.runner.Shutdown(ctx); err != nil {
		return Reply{Message: "-> Bye!", Exit: true}, err
	}
	return Reply{Message: "-> Bye!", Exit: true}, nil
}

// Pending returns a copy of the accumulated batch.
func (s *Session) Pending() booking.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch.Clone()
}

// InvalidCount returns the number of invalid commands seen so far.
func (s *Session) InvalidCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalid
}

// LastResults returns the results of the latest successful run, if any.
func (s *Session) LastResults() ([]scheduler.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, false
	}
	return append([]scheduler.Result(nil), s.last.Results...), true
}

// Closed reports whether endProgram has been executed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
