package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"parking-booking-backend/internal/scheduler"
)

var errExit = errors.New("exit requested")

// nackError marks an invocation the stage refused. The NACK has already been sent.
type nackError struct {
	reason string
}

func (e *nackError) Error() string { return e.reason }

// worker is the receive loop shared by all stages.
type worker struct {
	name   string
	link   *Link
	logger zerolog.Logger
	done   chan struct{}
}

func newWorker(name string, link *Link, logger zerolog.Logger) worker {
	return worker{
		name:   name,
		link:   link,
		logger: logger.With().Str("component", "stage").Str("stage", name).Logger(),
		done:   make(chan struct{}),
	}
}

// Done is closed once the stage loop has returned.
func (w *worker) Done() <-chan struct{} {
	return w.done
}

// Name returns the stage name used in logs and protocol errors.
func (w *worker) Name() string {
	return w.name
}

// loop waits for an algorithm tag, runs one invocation per tag and returns on
// EXIT, a closed link or the end of ctx.
func (w *worker) loop(ctx context.Context, invoke func(context.Context, Message) error) {
	defer close(w.done)
	defer w.link.MarkStopped()
	w.logger.Debug().Msg("stage started")

	for {
		msg, err := w.link.Next(ctx)
		if err != nil {
			w.logger.Info().Err(err).Msg("stage shutting down")
			return
		}

		switch msg.Kind {
		case KindExit:
			err = errExit
		case KindAlgorithm:
			err = invoke(ctx, msg)
		default:
			err = w.nack(ctx, fmt.Sprintf("expected algorithm, got %s", msg.Token()))
		}

		var refused *nackError
		switch {
		case err == nil:
		case errors.As(err, &refused):
			w.logger.Warn().Str("reason", refused.reason).Msg("invocation refused")
		case errors.Is(err, errExit):
			w.logger.Info().Msg("exit received, stage shutting down")
			return
		default:
			w.logger.Info().Err(err).Msg("stage shutting down")
			return
		}
	}
}

func (w *worker) ack(ctx context.Context, a Ack) error {
	return w.link.Reply(ctx, AckMessage(a))
}

func (w *worker) nack(ctx context.Context, reason string) error {
	if err := w.link.Reply(ctx, NackMessage(reason)); err != nil {
		return err
	}
	return &nackError{reason: reason}
}

// expect reads the next request and refuses it unless it has the wanted kind.
func (w *worker) expect(ctx context.Context, kind Kind) (Message, error) {
	m, err := w.link.Next(ctx)
	if err != nil {
		return m, err
	}
	if m.Kind == KindExit {
		return m, errExit
	}
	if m.Kind != kind {
		return m, w.nack(ctx, fmt.Sprintf("expected %s, got %s", kind, m.Token()))
	}
	return m, nil
}

func (w *worker) expectAck(ctx context.Context, want Ack) error {
	m, err := w.expect(ctx, KindAck)
	if err != nil {
		return err
	}
	if m.Ack != want {
		return w.nack(ctx, fmt.Sprintf("expected %s, got %s", want, m.Ack))
	}
	return nil
}

// collect runs the downstream half of an invocation: algorithm, count, batch,
// accepted count and accepted indices, acknowledging all but the indices. The
// returned message is the batch message.
func (w *worker) collect(ctx context.Context, tag Message) (scheduler.Result, Message, error) {
	algo, err := scheduler.ParseAlgorithm(string(tag.Algorithm))
	if err != nil {
		return scheduler.Result{}, Message{}, w.nack(ctx, err.Error())
	}
	if err := w.ack(ctx, AckAlgo); err != nil {
		return scheduler.Result{}, Message{}, err
	}

	m, err := w.expect(ctx, KindCount)
	if err != nil {
		return scheduler.Result{}, Message{}, err
	}
	total := m.Count
	if total < 0 {
		return scheduler.Result{}, Message{}, w.nack(ctx, fmt.Sprintf("negative booking count %d", total))
	}
	if err := w.ack(ctx, AckCounter); err != nil {
		return scheduler.Result{}, Message{}, err
	}

	batchMsg, err := w.expect(ctx, KindBatch)
	if err != nil {
		return scheduler.Result{}, Message{}, err
	}
	if len(batchMsg.Batch) != total {
		return scheduler.Result{}, Message{}, w.nack(ctx, fmt.Sprintf("batch has %d bookings, count said %d", len(batchMsg.Batch), total))
	}
	if err := w.ack(ctx, AckList); err != nil {
		return scheduler.Result{}, Message{}, err
	}

	m, err = w.expect(ctx, KindAcceptedCount)
	if err != nil {
		return scheduler.Result{}, Message{}, err
	}
	accepted := m.Count
	if accepted < 0 || accepted > total {
		return scheduler.Result{}, Message{}, w.nack(ctx, fmt.Sprintf("accepted count %d out of range [0,%d]", accepted, total))
	}
	if err := w.ack(ctx, AckCounter); err != nil {
		return scheduler.Result{}, Message{}, err
	}

	m, err = w.expect(ctx, KindIndices)
	if err != nil {
		return scheduler.Result{}, Message{}, err
	}
	if len(m.Indices) != accepted {
		return scheduler.Result{}, Message{}, w.nack(ctx, fmt.Sprintf("got %d indices, accepted count said %d", len(m.Indices), accepted))
	}
	for _, idx := range m.Indices {
		if idx < 0 || idx >= total {
			return scheduler.Result{}, Message{}, w.nack(ctx, fmt.Sprintf("index %d out of range", idx))
		}
	}
	slots := m.Slots
	if len(slots) != len(m.Indices) {
		slots = nil
	}

	return scheduler.Complete(algo, total, m.Indices, slots), batchMsg, nil
}
