package stage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"parking-booking-backend/internal/report"
	"parking-booking-backend/internal/scheduler"
)

const (
	NameScheduler = "scheduler"
	NameReporting = "reporting"
	NameAnalysis  = "analysis"
)

// SchedulerStage runs the admission algorithms on batches sent by the coordinator.
type SchedulerStage struct {
	worker
	schedulers map[scheduler.Algorithm]scheduler.Scheduler
}

// NewSchedulerStage creates the scheduling stage for the given algorithms.
func NewSchedulerStage(link *Link, logger zerolog.Logger, schedulers ...scheduler.Scheduler) *SchedulerStage {
	byAlgo := make(map[scheduler.Algorithm]scheduler.Scheduler, len(schedulers))
	for _, s := range schedulers {
		byAlgo[s.Algorithm()] = s
	}
	return &SchedulerStage{
		worker:     newWorker(NameScheduler, link, logger),
		schedulers: byAlgo,
	}
}

// Start launches the stage loop.
func (s *SchedulerStage) Start(ctx context.Context) {
	go s.loop(ctx, s.invoke)
}

func (s *SchedulerStage) invoke(ctx context.Context, tag Message) error {
	sched, ok := s.schedulers[tag.Algorithm]
	if !ok {
		return s.nack(ctx, fmt.Sprintf("unknown algorithm %q", tag.Algorithm))
	}
	if err := s.ack(ctx, AckAlgo); err != nil {
		return err
	}

	m, err := s.expect(ctx, KindCount)
	if err != nil {
		return err
	}
	total := m.Count
	if err := s.ack(ctx, AckRead); err != nil {
		return err
	}

	m, err = s.expect(ctx, KindBatch)
	if err != nil {
		return err
	}
	if len(m.Batch) != total {
		return s.nack(ctx, fmt.Sprintf("batch has %d bookings, count said %d", len(m.Batch), total))
	}
	if err := s.ack(ctx, AckSent); err != nil {
		return err
	}

	res := sched.Schedule(m.Batch)
	s.logger.Debug().
		Str("algorithm", string(res.Algorithm)).
		Int("total", res.Total).
		Int("accepted", len(res.Accepted)).
		Msg("batch scheduled")

	if err := s.expectAck(ctx, AckOkay); err != nil {
		return err
	}
	if err := s.link.Reply(ctx, Message{Kind: KindAcceptedCount, Count: len(res.Accepted)}); err != nil {
		return err
	}
	if err := s.expectAck(ctx, AckRecv); err != nil {
		return err
	}
	if err := s.link.Reply(ctx, Message{Kind: KindIndices, Indices: res.Accepted, Slots: res.Slots}); err != nil {
		return err
	}
	return s.expectAck(ctx, AckList)
}

// ReportingStage appends the accepted/rejected tables of every result it receives.
type ReportingStage struct {
	worker
	sink    report.Sink
	members []string
}

func NewReportingStage(link *Link, logger zerolog.Logger, sink report.Sink, members []string) *ReportingStage {
	return &ReportingStage{
		worker:  newWorker(NameReporting, link, logger),
		sink:    sink,
		members: append([]string(nil), members...),
	}
}

// Start launches the stage loop.
func (s *ReportingStage) Start(ctx context.Context) {
	go s.loop(ctx, s.invoke)
}

func (s *ReportingStage) invoke(ctx context.Context, tag Message) error {
	res, batchMsg, err := s.collect(ctx, tag)
	if err != nil {
		return err
	}

	section := report.RenderBookings(res.Algorithm, batchMsg.Batch, res, s.members)
	if err := s.sink.Append(section); err != nil {
		return s.nack(ctx, err.Error())
	}
	s.logger.Debug().Str("algorithm", string(res.Algorithm)).Int("bytes", len(section)).Msg("booking report appended")
	return s.ack(ctx, AckIndex)
}

// AnalysisStage appends a utilization summary for every result it receives.
type AnalysisStage struct {
	worker
	sink     report.Sink
	capacity report.Capacity
}

func NewAnalysisStage(link *Link, logger zerolog.Logger, sink report.Sink, capacity report.Capacity) *AnalysisStage {
	return &AnalysisStage{
		worker:   newWorker(NameAnalysis, link, logger),
		sink:     sink,
		capacity: capacity,
	}
}

// Start launches the stage loop.
func (s *AnalysisStage) Start(ctx context.Context) {
	go s.loop(ctx, s.invoke)
}

func (s *AnalysisStage) invoke(ctx context.Context, tag Message) error {
	res, batchMsg, err := s.collect(ctx, tag)
	if err != nil {
		return err
	}
	if err := s.ack(ctx, AckIndex); err != nil {
		return err
	}

	m, err := s.expect(ctx, KindInvalidCount)
	if err != nil {
		return err
	}

	section := report.RenderSummary(res.Algorithm, batchMsg.Batch, res, m.Count, s.capacity)
	if err := s.sink.Append(section); err != nil {
		return s.nack(ctx, err.Error())
	}
	s.logger.Debug().Str("algorithm", string(res.Algorithm)).Int("invalid", m.Count).Msg("summary appended")
	return s.ack(ctx, AckInvalid)
}
