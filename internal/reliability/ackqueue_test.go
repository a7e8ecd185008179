package reliability

import (
	"context"
	"sync"
	"testing"
	"time"

	"bitchat/go-core/internal/event"
)

func TestAckQueueDrainsInOrder(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	q := NewAckQueue(time.Millisecond, func(ctx context.Context, ev *event.Event) error {
		mu.Lock()
		sent = append(sent, ev.ID)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		q.Run(ctx, nil)
		close(done)
	}()

	for _, id := range []string{"a", "b", "c"} {
		if !q.Enqueue(&event.Event{ID: id}) {
			t.Fatalf("enqueue %q failed", id)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(sent)
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d of 3 acks drained", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if sent[0] != "a" || sent[1] != "b" || sent[2] != "c" {
		t.Fatalf("order = %v, want [a b c]", sent)
	}

	cancel()
	<-done
}

func TestAckQueuePacesSends(t *testing.T) {
	const interval = 30 * time.Millisecond
	var mu sync.Mutex
	var stamps []time.Time
	q := NewAckQueue(interval, func(ctx context.Context, ev *event.Event) error {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, nil)

	for i := 0; i < 3; i++ {
		q.Enqueue(&event.Event{ID: "x"})
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(stamps)
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("queue did not drain")
		case <-time.After(5 * time.Millisecond):
		}
	}
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < interval-5*time.Millisecond {
			t.Fatalf("sends %d and %d only %v apart, want >= %v", i-1, i, gap, interval)
		}
	}
}

func TestAckQueueStopsOnCancel(t *testing.T) {
	sent := make(chan string, 16)
	q := NewAckQueue(time.Hour, func(ctx context.Context, ev *event.Event) error {
		sent <- ev.ID
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx, nil)
		close(done)
	}()

	// The limiter's initial token lets the first ack through; the
	// second is held for the full interval and must be dropped.
	q.Enqueue(&event.Event{ID: "first"})
	q.Enqueue(&event.Event{ID: "second"})
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("first ack never sent")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drain loop did not stop on cancel")
	}
	select {
	case id := <-sent:
		t.Fatalf("ack %q flushed after cancel", id)
	default:
	}
}

func TestAckQueueReportsFull(t *testing.T) {
	q := NewAckQueue(time.Hour, func(ctx context.Context, ev *event.Event) error { return nil })
	var rejected bool
	for i := 0; i < ackQueueDepth+1; i++ {
		if !q.Enqueue(&event.Event{ID: "x"}) {
			rejected = true
			break
		}
	}
	if !rejected {
		t.Fatal("queue never reported full")
	}
	if q.Pending() != ackQueueDepth {
		t.Fatalf("pending = %d, want %d", q.Pending(), ackQueueDepth)
	}
}
