package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"bitchat/go-core/internal/event"
)

func TestFilterMatches(t *testing.T) {
	gw := &event.Event{
		ID:        "e1",
		Kind:      event.KindGiftWrap,
		CreatedAt: 1000,
		Tags:      event.Tags{{event.TagRecipient, "pub-a"}},
	}
	geo := &event.Event{
		ID:        "e2",
		Kind:      event.KindEphemeral,
		CreatedAt: 1000,
		Tags:      event.Tags{{event.TagGeohash, "u4pru"}},
	}

	cases := []struct {
		name   string
		filter Filter
		ev     *event.Event
		want   bool
	}{
		{"gift wrap for key", GiftWrapsFor("pub-a", 500), gw, true},
		{"gift wrap other key", GiftWrapsFor("pub-b", 500), gw, false},
		{"gift wrap too old", GiftWrapsFor("pub-a", 2000), gw, false},
		{"geohash match", EphemeralInGeohash("u4pru", 500, 10), geo, true},
		{"geohash mismatch", EphemeralInGeohash("u4prv", 500, 10), geo, false},
		{"kind mismatch", GiftWrapsFor("pub-a", 500), geo, false},
		{"empty filter matches", Filter{}, geo, true},
	}
	for _, tc := range cases {
		if got := tc.filter.Matches(tc.ev); got != tc.want {
			t.Fatalf("%s: Matches = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFilterMarshalJSON(t *testing.T) {
	f := GiftWrapsFor("pub-a", 1234)
	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["#p"]; !ok {
		t.Fatalf("missing #p in %s", raw)
	}
	if _, ok := decoded["limit"]; ok {
		t.Fatalf("zero limit serialized in %s", raw)
	}
	if decoded["since"].(float64) != 1234 {
		t.Fatalf("since = %v", decoded["since"])
	}
}

func TestLoopbackFansOutToMatchingSubs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lb := NewLoopback()

	chA := make(chan *event.Event, 4)
	chB := make(chan *event.Event, 4)
	if err := lb.Subscribe(ctx, GiftWrapsFor("pub-a", 0), "sub-a", chA); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := lb.Subscribe(ctx, GiftWrapsFor("pub-b", 0), "sub-b", chB); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev := &event.Event{
		ID:        "e1",
		Kind:      event.KindGiftWrap,
		CreatedAt: time.Now().Unix(),
		Tags:      event.Tags{{event.TagRecipient, "pub-a"}},
	}
	if err := lb.SendEvent(ctx, ev); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-chA:
		if got.ID != "e1" {
			t.Fatalf("got event %q", got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber A received nothing")
	}
	select {
	case got := <-chB:
		t.Fatalf("subscriber B received %q", got.ID)
	default:
	}

	lb.Unsubscribe("sub-a")
	if err := lb.SendEvent(ctx, ev); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case got := <-chA:
		t.Fatalf("unsubscribed channel received %q", got.ID)
	default:
	}
}
