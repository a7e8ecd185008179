package relay

import (
	"context"
	"sync"

	"bitchat/go-core/internal/event"
)

// Loopback is an in-process Transport: every sent event is fanned
// out to matching subscriptions. It backs tests and lets the daemon
// run without a network transport linked in.
type Loopback struct {
	mu   sync.Mutex
	subs map[string]loopbackSub
}

type loopbackSub struct {
	filter Filter
	ch     chan<- *event.Event
}

func NewLoopback() *Loopback {
	return &Loopback{subs: make(map[string]loopbackSub)}
}

func (l *Loopback) Connect(ctx context.Context) error { return nil }

func (l *Loopback) Disconnect() {}

func (l *Loopback) SendEvent(ctx context.Context, ev *event.Event) error {
	l.mu.Lock()
	targets := make([]chan<- *event.Event, 0, len(l.subs))
	for _, sub := range l.subs {
		if sub.filter.Matches(ev) {
			targets = append(targets, sub.ch)
		}
	}
	l.mu.Unlock()
	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			// Slow consumer; relays redeliver, loopback drops.
		}
	}
	return nil
}

func (l *Loopback) Subscribe(ctx context.Context, f Filter, subscriptionID string, ch chan<- *event.Event) error {
	l.mu.Lock()
	l.subs[subscriptionID] = loopbackSub{filter: f, ch: ch}
	l.mu.Unlock()
	return nil
}

func (l *Loopback) Unsubscribe(subscriptionID string) {
	l.mu.Lock()
	delete(l.subs, subscriptionID)
	l.mu.Unlock()
}
