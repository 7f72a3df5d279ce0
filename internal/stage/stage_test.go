package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/conflict"
	"parking-booking-backend/internal/report"
	"parking-booking-backend/internal/scheduler"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func identicalBatch(t *testing.T, n int) booking.Batch {
	batch := make(booking.Batch, 0, n)
	members := []string{"member_A", "member_B", "member_C", "member_D", "member_E"}
	for i := 0; i < n; i++ {
		b, err := booking.New(members[i%len(members)], "2025-05-10", "09:00", 2, booking.TypeParking, nil)
		require.NoError(t, err)
		batch = append(batch, b)
	}
	return batch
}

// exchange sends one request and returns the stage's reply.
func exchange(t *testing.T, ctx context.Context, link *Link, m Message) Message {
	t.Helper()
	require.NoError(t, link.Send(ctx, m))
	reply, err := link.Receive(ctx)
	require.NoError(t, err)
	return reply
}

func requireAck(t *testing.T, want Ack, got Message) {
	t.Helper()
	require.Equal(t, KindAck, got.Kind, "got %s", got.Token())
	require.Equal(t, want, got.Ack)
}

func startScheduler(t *testing.T, ctx context.Context) (*Link, *SchedulerStage) {
	link := NewLink()
	checker := conflict.NewChecker(conflict.DefaultSlots, conflict.DefaultEssentialCapacity)
	st := NewSchedulerStage(link, zerolog.Nop(),
		scheduler.NewFCFS(checker, zerolog.Nop()),
		scheduler.NewPriority(checker, zerolog.Nop()))
	st.Start(ctx)
	return link, st
}

func runScheduler(t *testing.T, ctx context.Context, link *Link, algo scheduler.Algorithm, batch booking.Batch) (int, Message) {
	t.Helper()
	requireAck(t, AckAlgo, exchange(t, ctx, link, Message{Kind: KindAlgorithm, Algorithm: algo}))
	requireAck(t, AckRead, exchange(t, ctx, link, Message{Kind: KindCount, Count: len(batch)}))
	requireAck(t, AckSent, exchange(t, ctx, link, Message{Kind: KindBatch, Batch: batch}))

	count := exchange(t, ctx, link, AckMessage(AckOkay))
	require.Equal(t, KindAcceptedCount, count.Kind)
	indices := exchange(t, ctx, link, AckMessage(AckRecv))
	require.Equal(t, KindIndices, indices.Kind)
	require.NoError(t, link.Send(ctx, AckMessage(AckList)))
	return count.Count, indices
}

func TestSchedulerStage_FullSequence(t *testing.T) {
	ctx := testContext(t)
	link, _ := startScheduler(t, ctx)
	batch := identicalBatch(t, 4)

	for _, algo := range []scheduler.Algorithm{scheduler.FCFS, scheduler.Priority} {
		t.Run(string(algo), func(t *testing.T) {
			count, indices := runScheduler(t, ctx, link, algo, batch)
			assert.Equal(t, 3, count)
			assert.Equal(t, []int{0, 1, 2}, indices.Indices)
			assert.Equal(t, []int{0, 1, 2}, indices.Slots)
		})
	}

	for _, b := range batch {
		assert.Equal(t, booking.StatusPending, b.Status)
	}
}

func TestSchedulerStage_RefusesAndRecovers(t *testing.T) {
	testCases := []struct {
		name  string
		drive func(t *testing.T, ctx context.Context, link *Link) Message
	}{
		{
			name: "unknown algorithm",
			drive: func(t *testing.T, ctx context.Context, link *Link) Message {
				return exchange(t, ctx, link, Message{Kind: KindAlgorithm, Algorithm: "rr"})
			},
		},
		{
			name: "batch before count",
			drive: func(t *testing.T, ctx context.Context, link *Link) Message {
				requireAck(t, AckAlgo, exchange(t, ctx, link, Message{Kind: KindAlgorithm, Algorithm: scheduler.FCFS}))
				return exchange(t, ctx, link, Message{Kind: KindBatch})
			},
		},
		{
			name: "count does not match batch",
			drive: func(t *testing.T, ctx context.Context, link *Link) Message {
				requireAck(t, AckAlgo, exchange(t, ctx, link, Message{Kind: KindAlgorithm, Algorithm: scheduler.FCFS}))
				requireAck(t, AckRead, exchange(t, ctx, link, Message{Kind: KindCount, Count: 5}))
				return exchange(t, ctx, link, Message{Kind: KindBatch, Batch: identicalBatch(t, 2)})
			},
		},
		{
			name: "wrong acknowledgment after scheduling",
			drive: func(t *testing.T, ctx context.Context, link *Link) Message {
				batch := identicalBatch(t, 2)
				requireAck(t, AckAlgo, exchange(t, ctx, link, Message{Kind: KindAlgorithm, Algorithm: scheduler.FCFS}))
				requireAck(t, AckRead, exchange(t, ctx, link, Message{Kind: KindCount, Count: len(batch)}))
				requireAck(t, AckSent, exchange(t, ctx, link, Message{Kind: KindBatch, Batch: batch}))
				return exchange(t, ctx, link, AckMessage(AckList))
			},
		},
		{
			name: "no algorithm tag",
			drive: func(t *testing.T, ctx context.Context, link *Link) Message {
				return exchange(t, ctx, link, Message{Kind: KindCount, Count: 1})
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := testContext(t)
			link, _ := startScheduler(t, ctx)

			reply := tc.drive(t, ctx, link)
			assert.Equal(t, KindNack, reply.Kind)
			assert.NotEmpty(t, reply.Reason)

			count, indices := runScheduler(t, ctx, link, scheduler.FCFS, identicalBatch(t, 1))
			assert.Equal(t, 1, count)
			assert.Equal(t, []int{0}, indices.Indices)
		})
	}
}

func deliver(t *testing.T, ctx context.Context, link *Link, algo scheduler.Algorithm, batch booking.Batch, accepted, slots []int) Message {
	t.Helper()
	requireAck(t, AckAlgo, exchange(t, ctx, link, Message{Kind: KindAlgorithm, Algorithm: algo}))
	requireAck(t, AckCounter, exchange(t, ctx, link, Message{Kind: KindCount, Count: len(batch)}))
	requireAck(t, AckList, exchange(t, ctx, link, Message{Kind: KindBatch, Batch: batch}))
	requireAck(t, AckCounter, exchange(t, ctx, link, Message{Kind: KindAcceptedCount, Count: len(accepted)}))
	return exchange(t, ctx, link, Message{Kind: KindIndices, Indices: accepted, Slots: slots})
}

func TestReportingStage_AppendsSection(t *testing.T) {
	ctx := testContext(t)
	link := NewLink()
	sink := &report.Buffer{}
	st := NewReportingStage(link, zerolog.Nop(), sink, []string{"member_A", "member_B", "member_C", "member_D"})
	st.Start(ctx)

	batch := identicalBatch(t, 4)
	requireAck(t, AckIndex, deliver(t, ctx, link, scheduler.Priority, batch, []int{0, 1, 2}, []int{0, 1, 2}))

	got, err := sink.Contents()
	require.NoError(t, err)
	assert.Contains(t, string(got), "*** ACCEPTED Bookings - prio ***")
	assert.Contains(t, string(got), "member_D has the following REJECTED bookings:")
}

func TestReportingStage_RejectsBadIndices(t *testing.T) {
	ctx := testContext(t)
	link := NewLink()
	sink := &report.Buffer{}
	NewReportingStage(link, zerolog.Nop(), sink, nil).Start(ctx)

	reply := deliver(t, ctx, link, scheduler.FCFS, identicalBatch(t, 2), []int{0, 7}, nil)
	assert.Equal(t, KindNack, reply.Kind)

	got, err := sink.Contents()
	require.NoError(t, err)
	assert.Empty(t, got)
}

type failingSink struct{}

func (failingSink) Append([]byte) error       { return errors.New("disk full") }
func (failingSink) Contents() ([]byte, error) { return nil, nil }

func TestReportingStage_SinkFailureIsNacked(t *testing.T) {
	ctx := testContext(t)
	link := NewLink()
	NewReportingStage(link, zerolog.Nop(), failingSink{}, nil).Start(ctx)

	reply := deliver(t, ctx, link, scheduler.FCFS, identicalBatch(t, 1), []int{0}, []int{0})
	assert.Equal(t, KindNack, reply.Kind)
	assert.Contains(t, reply.Reason, "disk full")
}

func TestAnalysisStage_AppendsSummary(t *testing.T) {
	ctx := testContext(t)
	link := NewLink()
	sink := &report.Buffer{}
	NewAnalysisStage(link, zerolog.Nop(), sink, report.Capacity{Slots: 3, EssentialCapacity: 3}).Start(ctx)

	batch := identicalBatch(t, 4)
	requireAck(t, AckIndex, deliver(t, ctx, link, scheduler.FCFS, batch, []int{0, 1, 2}, []int{0, 1, 2}))

	got, err := sink.Contents()
	require.NoError(t, err)
	assert.Empty(t, got, "summary is written only once the invalid count arrives")

	requireAck(t, AckInvalid, exchange(t, ctx, link, Message{Kind: KindInvalidCount, Count: 4}))

	got, err = sink.Contents()
	require.NoError(t, err)
	assert.Contains(t, string(got), "Number of Bookings Assigned: 3")
	assert.Contains(t, string(got), "Invalid request(s) made: 4")
}

func TestStageStops(t *testing.T) {
	testCases := []struct {
		name string
		stop func(ctx context.Context, cancel context.CancelFunc, link *Link) error
	}{
		{
			name: "exit message",
			stop: func(ctx context.Context, _ context.CancelFunc, link *Link) error {
				return link.Send(ctx, ExitMessage())
			},
		},
		{
			name: "closed link",
			stop: func(_ context.Context, _ context.CancelFunc, link *Link) error {
				link.Close()
				return nil
			},
		},
		{
			name: "cancelled context",
			stop: func(_ context.Context, cancel context.CancelFunc, _ *Link) error {
				cancel()
				return nil
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			link := NewLink()
			st := NewReportingStage(link, zerolog.Nop(), &report.Buffer{}, nil)
			st.Start(ctx)

			require.NoError(t, tc.stop(ctx, cancel, link))
			select {
			case <-st.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("stage did not stop")
			}
		})
	}
}

func TestExitMidInvocationStopsStage(t *testing.T) {
	ctx := testContext(t)
	link, st := startScheduler(t, ctx)

	requireAck(t, AckAlgo, exchange(t, ctx, link, Message{Kind: KindAlgorithm, Algorithm: scheduler.FCFS}))
	require.NoError(t, link.Send(ctx, ExitMessage()))

	select {
	case <-st.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stage did not stop")
	}
	assert.Equal(t, NameScheduler, st.Name())
}

func TestMessageToken(t *testing.T) {
	assert.Equal(t, "ACK_INDX", AckMessage(AckIndex).Token())
	assert.Equal(t, "NACK (bad)", NackMessage("bad").Token())
	assert.Equal(t, "EXIT", ExitMessage().Token())
	assert.Equal(t, "batch", Message{Kind: KindBatch}.Token())
}
