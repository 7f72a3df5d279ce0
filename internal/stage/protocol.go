package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"parking-booking-backend/internal/booking"
	"parking-booking-backend/internal/scheduler"
)

// ErrLinkClosed is returned when the other end of a link has gone away.
var ErrLinkClosed = errors.New("stage link closed")

// Kind identifies what a Message carries.
type Kind int

const (
	KindAlgorithm Kind = iota + 1
	KindCount
	KindBatch
	KindAcceptedCount
	KindIndices
	KindInvalidCount
	KindAck
	KindNack
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindAlgorithm:
		return "algorithm"
	case KindCount:
		return "count"
	case KindBatch:
		return "batch"
	case KindAcceptedCount:
		return "accepted-count"
	case KindIndices:
		return "indices"
	case KindInvalidCount:
		return "invalid-count"
	case KindAck:
		return "ack"
	case KindNack:
		return "nack"
	case KindExit:
		return "exit"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Ack is an acknowledgment token.
type Ack string

const (
	AckAlgo    Ack = "ACK_ALGO"
	AckRead    Ack = "ACK_READ"
	AckSent    Ack = "ACK_SENT"
	AckOkay    Ack = "ACK_OKAY"
	AckRecv    Ack = "ACK_RECV"
	AckList    Ack = "ACK_LIST"
	AckCounter Ack = "ACK_COUNTER"
	AckIndex   Ack = "ACK_INDX"
	AckInvalid Ack = "ACK_INVALID"
)

// Message is one step of a stage exchange. Only the fields relevant to Kind are set.
type Message struct {
	Kind      Kind
	Algorithm scheduler.Algorithm
	Ack       Ack
	Count     int
	Batch     booking.Batch
	Indices   []int
	// Slots is parallel to Indices.
	Slots  []int
	Reason string
}

// Token renders the message the way it shows up in protocol errors.
func (m Message) Token() string {
	switch m.Kind {
	case KindAck:
		return string(m.Ack)
	case KindNack:
		if m.Reason != "" {
			return "NACK (" + m.Reason + ")"
		}
		return "NACK"
	case KindExit:
		return "EXIT"
	}
	return m.Kind.String()
}

func AckMessage(a Ack) Message { return Message{Kind: KindAck, Ack: a} }

func NackMessage(reason string) Message { return Message{Kind: KindNack, Reason: reason} }

func ExitMessage() Message { return Message{Kind: KindExit} }

// Link is the duplex channel pair between the coordinator and one stage.
// Both directions are unbuffered, so every send is a rendezvous.
type Link struct {
	requests chan Message
	replies  chan Message
	// stopped is closed when the stage loop on the other end returns.
	stopped chan struct{}

	closeOnce sync.Once
	stopOnce  sync.Once
}

func NewLink() *Link {
	return &Link{
		requests: make(chan Message),
		replies:  make(chan Message),
		stopped:  make(chan struct{}),
	}
}

// Send delivers a message to the stage. It fails with ErrLinkClosed once the stage has stopped.
func (l *Link) Send(ctx context.Context, m Message) error {
	select {
	case l.requests <- m:
		return nil
	case <-l.stopped:
		return ErrLinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits for the stage's next message.
func (l *Link) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-l.replies:
		return m, nil
	case <-l.stopped:
		return Message{}, ErrLinkClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close closes the request direction. The stage loop ends when it sees it.
// Send must not be called afterwards.
func (l *Link) Close() {
	l.closeOnce.Do(func() { close(l.requests) })
}

// MarkStopped tells the coordinator side that the stage loop has returned.
func (l *Link) MarkStopped() {
	l.stopOnce.Do(func() { close(l.stopped) })
}

// Next waits for the coordinator's next request. Used by the stage side.
func (l *Link) Next(ctx context.Context) (Message, error) {
	select {
	case m, ok := <-l.requests:
		if !ok {
			return Message{}, ErrLinkClosed
		}
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Reply answers the coordinator. Used by the stage side.
func (l *Link) Reply(ctx context.Context, m Message) error {
	select {
	case l.replies <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
