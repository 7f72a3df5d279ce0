package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/conflict"
	"parking-booking-backend/internal/report"
	"parking-booking-backend/internal/scheduler"
	"parking-booking-backend/internal/stage"
)

var (
	// ErrNoPendingBookings is returned when a run is requested for an empty batch.
	ErrNoPendingBookings = errors.New("no pending bookings")
	// ErrNoAlgorithms is returned when a run names no algorithm.
	ErrNoAlgorithms = errors.New("no scheduling algorithm requested")
	// ErrProtocol is wrapped by every ProtocolError.
	ErrProtocol = errors.New("stage protocol violation")
	// ErrCoordinatorClosed is returned once the coordinator has shut down or lost sync with its stages.
	ErrCoordinatorClosed = errors.New("coordinator closed")
)

// ProtocolError describes an unexpected reply from a stage.
type ProtocolError struct {
	Stage string
	Step  string
	Want  string
	Got   string

	// nacked is set when the stage itself refused the step and has already reset.
	nacked bool
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s stage, %s: want %s, got %s", e.Stage, e.Step, e.Want, e.Got)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// Request is one printBookings run.
type Request struct {
	Algorithms   []scheduler.Algorithm
	Batch        booking.Batch
	Analyze      bool
	InvalidCount int
}

// Outcome holds what a run produced. On error it holds the results finished before the failure.
type Outcome struct {
	RunID      string             `json:"run_id"`
	Results    []scheduler.Result `json:"results"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Endpoint is the coordinator's view of one running stage.
type Endpoint struct {
	Name string
	Link *stage.Link
	Done <-chan struct{}
}

// Coordinator drives the scheduling, reporting and analysis stages. Runs are serialized.
type Coordinator struct {
	scheduler Endpoint
	reporting Endpoint
	analysis  Endpoint
	logger    zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewCoordinator wires a coordinator to stages that are already running.
func NewCoordinator(sched, reporting, analysis Endpoint, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		scheduler: sched,
		reporting: reporting,
		analysis:  analysis,
		logger:    logger.With().Str("component", "coordinator").Logger(),
	}
}

// Options configures the stages started by Start.
type Options struct {
	Checker conflict.Checker
	Sink    report.Sink
	Members []string
}

// Start launches the three stages and returns a coordinator bound to them.
// The stages stop when ctx ends or on Shutdown.
func Start(ctx context.Context, opts Options, logger zerolog.Logger) *Coordinator {
	schedLink, reportLink, analysisLink := stage.NewLink(), stage.NewLink(), stage.NewLink()

	sched := stage.NewSchedulerStage(schedLink, logger,
		scheduler.NewFCFS(opts.Checker, logger),
		scheduler.NewPriority(opts.Checker, logger))
	reporting := stage.NewReportingStage(reportLink, logger, opts.Sink, opts.Members)
	analysis := stage.NewAnalysisStage(analysisLink, logger, opts.Sink, report.Capacity{
		Slots:             opts.Checker.Slots,
		EssentialCapacity: opts.Checker.EssentialCapacity,
	})

	sched.Start(ctx)
	reporting.Start(ctx)
	analysis.Start(ctx)

	return NewCoordinator(
		Endpoint{Name: sched.Name(), Link: schedLink, Done: sched.Done()},
		Endpoint{Name: reporting.Name(), Link: reportLink, Done: reporting.Done()},
		Endpoint{Name: analysis.Name(), Link: analysisLink, Done: analysis.Done()},
		logger,
	)
}

// Run schedules the batch with every requested algorithm in order, reports each
// result and, when asked, appends an analysis summary per algorithm afterwards.
func (c *Coordinator) Run(ctx context.Context, req Request) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Outcome{}, ErrCoordinatorClosed
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if len(req.Batch) == 0 {
		return Outcome{}, ErrNoPendingBookings
	}
	if len(req.Algorithms) == 0 {
		return Outcome{}, ErrNoAlgorithms
	}
	for _, algo := range req.Algorithms {
		if _, err := scheduler.ParseAlgorithm(string(algo)); err != nil {
			return Outcome{}, err
		}
	}

	out := Outcome{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := c.logger.With().Str("run_id", out.RunID).Logger()
	logger.Info().
		Int("bookings", len(req.Batch)).
		Interface("algorithms", req.Algorithms).
		Bool("analyze", req.Analyze).
		Msg("run started")

	for _, algo := range req.Algorithms {
		res, err := c.schedule(ctx, algo, req.Batch)
		if err != nil {
			return out, c.fail(ctx, logger, c.scheduler, err)
		}
		if err := c.deliver(ctx, c.reporting, res, req.Batch); err != nil {
			return out, c.fail(ctx, logger, c.reporting, err)
		}
		out.Results = append(out.Results, res)
		logger.Info().
			Str("algorithm", string(algo)).
			Int("accepted", len(res.Accepted)).
			Int("rejected", len(res.Rejected)).
			Msg("algorithm reported")
	}

	if req.Analyze {
		for _, res := range out.Results {
			if err := c.analyze(ctx, res, req.Batch, req.InvalidCount); err != nil {
				return out, c.fail(ctx, logger, c.analysis, err)
			}
		}
	}

	out.FinishedAt = time.Now()
	logger.Info().Dur("elapsed", out.FinishedAt.Sub(out.StartedAt)).Msg("run finished")
	return out, nil
}

func (c *Coordinator) schedule(ctx context.Context, algo scheduler.Algorithm, batch booking.Batch) (scheduler.Result, error) {
	ep := c.scheduler
	if err := c.step(ctx, ep, "algorithm", stage.Message{Kind: stage.KindAlgorithm, Algorithm: algo}, stage.AckAlgo); err != nil {
		return scheduler.Result{}, err
	}
	if err := c.step(ctx, ep, "count", stage.Message{Kind: stage.KindCount, Count: len(batch)}, stage.AckRead); err != nil {
		return scheduler.Result{}, err
	}
	if err := c.step(ctx, ep, "batch", stage.Message{Kind: stage.KindBatch, Batch: batch.Clone()}, stage.AckSent); err != nil {
		return scheduler.Result{}, err
	}

	count, err := c.request(ctx, ep, "accepted count", stage.AckMessage(stage.AckOkay), stage.KindAcceptedCount)
	if err != nil {
		return scheduler.Result{}, err
	}
	if count.Count < 0 || count.Count > len(batch) {
		return scheduler.Result{}, &ProtocolError{
			Stage: ep.Name,
			Step:  "accepted count",
			Want:  fmt.Sprintf("count in [0,%d]", len(batch)),
			Got:   fmt.Sprintf("%d", count.Count),
		}
	}
	indices, err := c.request(ctx, ep, "accepted indices", stage.AckMessage(stage.AckRecv), stage.KindIndices)
	if err != nil {
		return scheduler.Result{}, err
	}
	if len(indices.Indices) != count.Count {
		return scheduler.Result{}, &ProtocolError{
			Stage: ep.Name,
			Step:  "accepted indices",
			Want:  fmt.Sprintf("%d indices", count.Count),
			Got:   fmt.Sprintf("%d indices", len(indices.Indices)),
		}
	}
	seen := make([]bool, len(batch))
	for _, idx := range indices.Indices {
		if idx < 0 || idx >= len(batch) {
			return scheduler.Result{}, &ProtocolError{
				Stage: ep.Name,
				Step:  "accepted indices",
				Want:  fmt.Sprintf("index in [0,%d)", len(batch)),
				Got:   fmt.Sprintf("%d", idx),
			}
		}
		if seen[idx] {
			return scheduler.Result{}, &ProtocolError{
				Stage: ep.Name,
				Step:  "accepted indices",
				Want:  "distinct indices",
				Got:   fmt.Sprintf("%d repeated", idx),
			}
		}
		seen[idx] = true
	}
	if err := ep.Link.Send(ctx, stage.AckMessage(stage.AckList)); err != nil {
		return scheduler.Result{}, fmt.Errorf("%s stage, acknowledge indices: %w", ep.Name, err)
	}

	slots := indices.Slots
	if len(slots) != len(indices.Indices) {
		slots = nil
	}
	return scheduler.Complete(algo, len(batch), indices.Indices, slots), nil
}

// deliver runs the downstream exchange shared by the reporting and analysis
// stages, ending with the indices acknowledged.
func (c *Coordinator) deliver(ctx context.Context, ep Endpoint, res scheduler.Result, batch booking.Batch) error {
	if err := c.step(ctx, ep, "algorithm", stage.Message{Kind: stage.KindAlgorithm, Algorithm: res.Algorithm}, stage.AckAlgo); err != nil {
		return err
	}
	if err := c.step(ctx, ep, "count", stage.Message{Kind: stage.KindCount, Count: len(batch)}, stage.AckCounter); err != nil {
		return err
	}
	if err := c.step(ctx, ep, "batch", stage.Message{Kind: stage.KindBatch, Batch: batch.Clone()}, stage.AckList); err != nil {
		return err
	}
	if err := c.step(ctx, ep, "accepted count", stage.Message{Kind: stage.KindAcceptedCount, Count: len(res.Accepted)}, stage.AckCounter); err != nil {
		return err
	}
	indices := stage.Message{
		Kind:    stage.KindIndices,
		Indices: append([]int(nil), res.Accepted...),
		Slots:   append([]int(nil), res.Slots...),
	}
	return c.step(ctx, ep, "accepted indices", indices, stage.AckIndex)
}

func (c *Coordinator) analyze(ctx context.Context, res scheduler.Result, batch booking.Batch, invalid int) error {
	if err := c.deliver(ctx, c.analysis, res, batch); err != nil {
		return err
	}
	return c.step(ctx, c.analysis, "invalid count", stage.Message{Kind: stage.KindInvalidCount, Count: invalid}, stage.AckInvalid)
}

// step sends m and requires the given acknowledgment in reply.
func (c *Coordinator) step(ctx context.Context, ep Endpoint, step string, m stage.Message, want stage.Ack) error {
	reply, err := c.request(ctx, ep, step, m, stage.KindAck)
	if err != nil {
		return err
	}
	if reply.Ack != want {
		return &ProtocolError{Stage: ep.Name, Step: step, Want: string(want), Got: reply.Token()}
	}
	return nil
}

// request sends m and requires a reply of the given kind.
func (c *Coordinator) request(ctx context.Context, ep Endpoint, step string, m stage.Message, kind stage.Kind) (stage.Message, error) {
	if err := ep.Link.Send(ctx, m); err != nil {
		return stage.Message{}, fmt.Errorf("%s stage, %s: %w", ep.Name, step, err)
	}
	reply, err := ep.Link.Receive(ctx)
	if err != nil {
		return stage.Message{}, fmt.Errorf("%s stage, %s: %w", ep.Name, step, err)
	}
	if reply.Kind != kind {
		want := kind.String()
		if kind == stage.KindAck {
			want = "acknowledgment"
		}
		return reply, &ProtocolError{
			Stage:  ep.Name,
			Step:   step,
			Want:   want,
			Got:    reply.Token(),
			nacked: reply.Kind == stage.KindNack,
		}
	}
	return reply, nil
}

// fail records a failed run. A protocol error leaves the stage mid-invocation
// unless it already answered NACK, so the coordinator aborts the invocation with
// a NACK of its own. Transport errors leave the exchange in an unknown state and
// close the coordinator.
func (c *Coordinator) fail(ctx context.Context, logger zerolog.Logger, ep Endpoint, err error) error {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		logger.Warn().Err(err).Msg("run abandoned")
		if perr.nacked {
			return err
		}
		if abortErr := c.abort(ctx, ep); abortErr != nil {
			c.closed = true
			logger.Error().Err(abortErr).Str("stage", ep.Name).Msg("stage did not acknowledge abort, coordinator closed")
		}
		return err
	}

	c.closed = true
	logger.Error().Err(err).Msg("run interrupted, coordinator closed")
	return err
}

// abort tells a stage to drop its current invocation and waits for its NACK.
func (c *Coordinator) abort(ctx context.Context, ep Endpoint) error {
	if err := ep.Link.Send(ctx, stage.NackMessage("run abandoned")); err != nil {
		return err
	}
	reply, err := ep.Link.Receive(ctx)
	if err != nil {
		return err
	}
	if reply.Kind != stage.KindNack {
		return fmt.Errorf("%w: abort answered with %s", ErrProtocol, reply.Token())
	}
	return nil
}

// Shutdown sends EXIT to every stage still running and waits for them to stop.
// The coordinator refuses further runs afterwards.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true

	var errs []error
	for _, ep := range []Endpoint{c.scheduler, c.reporting, c.analysis} {
		if err := sendExit(ctx, ep); err != nil {
			errs = append(errs, fmt.Errorf("%s stage: %w", ep.Name, err))
			continue
		}
		select {
		case <-ep.Done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("%s stage: %w", ep.Name, ctx.Err()))
		}
	}

	c.logger.Info().Msg("coordinator shut down")
	return errors.Join(errs...)
}

func sendExit(ctx context.Context, ep Endpoint) error {
	err := ep.Link.Send(ctx, stage.ExitMessage())
	if errors.Is(err, stage.ErrLinkClosed) {
		return nil
	}
	return err
}
