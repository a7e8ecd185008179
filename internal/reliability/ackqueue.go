package reliability

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"bitchat/go-core/internal/event"
)

// DefaultAckInterval is the minimum spacing between outbound
// acknowledgements, matching relay-side rate limits.
const DefaultAckInterval = 350 * time.Millisecond

const ackQueueDepth = 256

// AckQueue is a FIFO of pending acknowledgement events drained one
// at a time with a minimum inter-send interval. The drain goroutine
// blocks on the channel while the queue is empty; there is no
// polling. Cancelling the run context drops whatever is still
// queued, which is the required behavior when the owning context
// (e.g. a location channel) goes away.
type AckQueue struct {
	send    func(context.Context, *event.Event) error
	limiter *rate.Limiter
	ch      chan *event.Event
}

// NewAckQueue builds a queue that hands due events to send.
func NewAckQueue(interval time.Duration, send func(context.Context, *event.Event) error) *AckQueue {
	if interval <= 0 {
		interval = DefaultAckInterval
	}
	return &AckQueue{
		send:    send,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		ch:      make(chan *event.Event, ackQueueDepth),
	}
}

// Enqueue adds an acknowledgement event. Reports false when the
// queue is full; the caller's idempotence store was already updated
// by then, so the ack is simply lost rather than duplicated later.
func (q *AckQueue) Enqueue(ev *event.Event) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		return false
	}
}

// Run drains the queue until the context is cancelled. Send errors
// are returned to the caller's errFn hook if non-nil and otherwise
// dropped; the event is not retried (the idempotence store already
// holds its flag).
func (q *AckQueue) Run(ctx context.Context, errFn func(error)) {
	for {
		var ev *event.Event
		select {
		case <-ctx.Done():
			return
		case ev = <-q.ch:
		}
		if err := q.limiter.Wait(ctx); err != nil {
			return
		}
		if err := q.send(ctx, ev); err != nil && errFn != nil {
			errFn(err)
		}
	}
}

// Pending returns the number of queued acknowledgements.
func (q *AckQueue) Pending() int {
	return len(q.ch)
}
