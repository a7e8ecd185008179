// Package relay defines the narrow contract this core consumes from
// the relay-transport collaborator. Socket lifecycle, retry and
// backoff live on the other side of the Transport interface.
package relay

import (
	"context"
	"encoding/json"

	"bitchat/go-core/internal/event"
)

// Filter selects events on subscription. Zero fields are omitted on
// the wire.
type Filter struct {
	Kinds     []int
	PTags     []string
	Geohashes []string
	Since     int64
	Limit     int
}

// GiftWrapsFor selects every gift wrap addressed to a public key
// created after since.
func GiftWrapsFor(pubKeyHex string, since int64) Filter {
	return Filter{
		Kinds: []int{event.KindGiftWrap},
		PTags: []string{pubKeyHex},
		Since: since,
	}
}

// EphemeralInGeohash selects location-channel events for a geohash.
func EphemeralInGeohash(geohash string, since int64, limit int) Filter {
	return Filter{
		Kinds:     []int{event.KindEphemeral},
		Geohashes: []string{geohash},
		Since:     since,
		Limit:     limit,
	}
}

// MarshalJSON emits the relay wire form, with tag filters under
// "#p" / "#g".
func (f Filter) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 5)
	if len(f.Kinds) > 0 {
		out["kinds"] = f.Kinds
	}
	if len(f.PTags) > 0 {
		out["#p"] = f.PTags
	}
	if len(f.Geohashes) > 0 {
		out["#g"] = f.Geohashes
	}
	if f.Since > 0 {
		out["since"] = f.Since
	}
	if f.Limit > 0 {
		out["limit"] = f.Limit
	}
	return json.Marshal(out)
}

// Matches reports whether an event satisfies the filter. Transports
// may rely on the relay to filter server-side; Matches exists for
// client-side checks and in-process transports.
func (f Filter) Matches(ev *event.Event) bool {
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, ev.Kind) {
		return false
	}
	if len(f.PTags) > 0 && !containsStr(f.PTags, ev.Tags.First(event.TagRecipient)) {
		return false
	}
	if len(f.Geohashes) > 0 && !containsStr(f.Geohashes, ev.Tags.First(event.TagGeohash)) {
		return false
	}
	if f.Since > 0 && ev.CreatedAt < f.Since {
		return false
	}
	return true
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsStr(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Transport is the relay collaborator surface. Subscribe delivers
// matching events into the caller-supplied channel and must drop,
// not block, when the channel is full (the core applies its own
// dedup so at-least-once delivery is fine).
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	SendEvent(ctx context.Context, ev *event.Event) error
	Subscribe(ctx context.Context, f Filter, subscriptionID string, ch chan<- *event.Event) error
	Unsubscribe(subscriptionID string)
}
