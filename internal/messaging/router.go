// Package messaging wires the protocol engine together: outbound
// messages are packed, wrapped and handed to the transport; inbound
// events are deduplicated, age-filtered, unwrapped and decoded, and
// acknowledgements are produced at most once per message. All
// collaborators are passed in explicitly; there are no singletons.
package messaging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"bitchat/go-core/internal/contacts"
	"bitchat/go-core/internal/event"
	"bitchat/go-core/internal/giftwrap"
	"bitchat/go-core/internal/identity"
	"bitchat/go-core/internal/metrics"
	"bitchat/go-core/internal/packet"
	"bitchat/go-core/internal/relay"
	"bitchat/go-core/internal/reliability"
)

var (
	ErrUnknownPeer  = errors.New("no public key known for peer")
	ErrMissingDep   = errors.New("missing router dependency")
	ErrEmptyMessage = errors.New("empty message")
	ErrEmptyGeohash = errors.New("empty geohash")
)

// DeliveryKind classifies what the router hands upward.
type DeliveryKind int

const (
	DeliveryPrivateMessage DeliveryKind = iota + 1
	DeliveryAckDelivered
	DeliveryAckRead
	DeliveryEphemeral
)

// Delivery is the application-facing result of a processed event.
type Delivery struct {
	Kind         DeliveryKind
	MessageID    string
	Text         string
	SenderPubKey string
	SenderPeerID string
	Geohash      string
	Nickname     string
	SentAt       int64
}

// Deps are the router's collaborators. Identities, Wrap, Dedup,
// Seen and Transport are required.
type Deps struct {
	Identities *identity.Manager
	Wrap       *giftwrap.Protocol
	Dedup      *reliability.DedupCache
	Seen       *reliability.SeenStore
	Transport  relay.Transport
	Contacts   contacts.Resolver
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	AckInterval       time.Duration
	InboundQueueDepth int
	SubscribeLimit    int
}

type Router struct {
	ids       *identity.Manager
	wrap      *giftwrap.Protocol
	dedup     *reliability.DedupCache
	seen      *reliability.SeenStore
	transport relay.Transport
	contacts  contacts.Resolver
	metrics   *metrics.Metrics
	log       *slog.Logger

	subscribeLimit int
	inbound        chan *event.Event
	deliveries     chan Delivery
	acks           *reliability.AckQueue
	now            func() time.Time

	geoMu  sync.Mutex
	geoIDs map[string]identity.Identity
}

func NewRouter(deps Deps) (*Router, error) {
	if deps.Identities == nil || deps.Wrap == nil || deps.Dedup == nil ||
		deps.Seen == nil || deps.Transport == nil {
		return nil, ErrMissingDep
	}
	if deps.Contacts == nil {
		deps.Contacts = contacts.NewBook()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.InboundQueueDepth <= 0 {
		deps.InboundQueueDepth = 512
	}
	if deps.SubscribeLimit <= 0 {
		deps.SubscribeLimit = 200
	}
	r := &Router{
		ids:            deps.Identities,
		wrap:           deps.Wrap,
		dedup:          deps.Dedup,
		seen:           deps.Seen,
		transport:      deps.Transport,
		contacts:       deps.Contacts,
		metrics:        deps.Metrics,
		log:            deps.Logger,
		subscribeLimit: deps.SubscribeLimit,
		inbound:        make(chan *event.Event, deps.InboundQueueDepth),
		deliveries:     make(chan Delivery, deps.InboundQueueDepth),
		now:            time.Now,
		geoIDs:         make(map[string]identity.Identity),
	}
	r.acks = reliability.NewAckQueue(deps.AckInterval, func(ctx context.Context, ev *event.Event) error {
		if err := r.transport.SendEvent(ctx, ev); err != nil {
			return err
		}
		r.metrics.AcksSent.Inc()
		return nil
	})
	return r, nil
}

// Deliveries is the channel of processed inbound messages and acks.
func (r *Router) Deliveries() <-chan Delivery {
	return r.deliveries
}

// Run connects, subscribes for this identity's gift wraps and
// processes inbound events until the context is cancelled. The ack
// drain stops with the same context; anything still queued is
// dropped, never flushed under a dead identity.
func (r *Router) Run(ctx context.Context) error {
	if err := r.transport.Connect(ctx); err != nil {
		return err
	}
	defer r.transport.Disconnect()

	since := r.now().Add(-reliability.MaxEventAge).Unix()
	stable := r.ids.Stable()
	filter := relay.GiftWrapsFor(stable.PublicKeyHex(), since)
	subID := "dm:" + stable.PublicKeyHex()[:8]
	if err := r.transport.Subscribe(ctx, filter, subID, r.inbound); err != nil {
		return err
	}
	defer r.transport.Unsubscribe(subID)

	go r.acks.Run(ctx, func(err error) {
		r.log.Debug("ack send failed", "err", err)
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.inbound:
			r.processEvent(ctx, ev)
		}
	}
}

// processEvent applies the cheap gates before any cryptography: the
// dedup cache first, then the age filter, then kind dispatch.
func (r *Router) processEvent(ctx context.Context, ev *event.Event) {
	r.metrics.EventsSeen.Inc()
	if !r.dedup.ShouldProcess(ev.ID) {
		r.metrics.Duplicates.Inc()
		return
	}
	if !reliability.FreshEnough(ev.CreatedAt, r.now()) {
		r.metrics.StaleDrops.Inc()
		return
	}
	switch ev.Kind {
	case event.KindGiftWrap:
		r.handleGiftWrap(ctx, ev)
	case event.KindEphemeral:
		r.handleEphemeral(ctx, ev)
	default:
		// Foreign kind on a shared stream.
	}
}

func (r *Router) handleGiftWrap(ctx context.Context, ev *event.Event) {
	if err := ev.Verify(); err != nil {
		r.metrics.UnwrapMisses.Inc()
		r.log.Debug("gift wrap rejected", "event_id", ev.ID)
		return
	}
	// A wrap can be addressed to the stable identity or to any
	// geohash-scoped identity currently joined.
	rumor, ok := r.wrap.Unwrap(ev, r.ids.Stable())
	if !ok {
		for _, gid := range r.geoIdentities() {
			if rumor, ok = r.wrap.Unwrap(ev, gid); ok {
				break
			}
		}
	}
	if !ok {
		// Usually just not addressed to us; relays broadcast broadly.
		r.metrics.UnwrapMisses.Inc()
		return
	}
	payload, ok := packet.Decode(rumor.Content)
	if !ok {
		r.metrics.DecodeFailures.Inc()
		return
	}
	pl, ok := packet.DecodePayload(payload)
	if !ok {
		r.metrics.DecodeFailures.Inc()
		return
	}
	senderPeer, _ := r.contacts.PeerIDFor(rumor.AuthorPubKey)

	switch pl.Type {
	case packet.TypePrivateMessage:
		// A store failure loses the ack, never the message.
		first, err := r.seen.MarkDelivered(pl.MessageID)
		switch {
		case err != nil:
			r.log.Debug("seen store write failed", "err", err)
		case !first:
			// Redelivered past the dedup horizon; already acked.
			return
		default:
			r.enqueueAck(packet.TypeDeliveryAck, pl.MessageID, rumor.AuthorPubKey)
		}
		r.deliver(ctx, Delivery{
			Kind:         DeliveryPrivateMessage,
			MessageID:    pl.MessageID,
			Text:         pl.Text,
			SenderPubKey: rumor.AuthorPubKey,
			SenderPeerID: senderPeer,
			SentAt:       rumor.CreatedAt,
		})
	case packet.TypeDeliveryAck:
		r.deliver(ctx, Delivery{
			Kind:         DeliveryAckDelivered,
			MessageID:    pl.MessageID,
			SenderPubKey: rumor.AuthorPubKey,
			SenderPeerID: senderPeer,
			SentAt:       rumor.CreatedAt,
		})
	case packet.TypeReadAck:
		r.deliver(ctx, Delivery{
			Kind:         DeliveryAckRead,
			MessageID:    pl.MessageID,
			SenderPubKey: rumor.AuthorPubKey,
			SenderPeerID: senderPeer,
			SentAt:       rumor.CreatedAt,
		})
	}
}

func (r *Router) handleEphemeral(ctx context.Context, ev *event.Event) {
	if err := ev.Verify(); err != nil {
		r.log.Debug("ephemeral event rejected", "event_id", ev.ID)
		return
	}
	r.deliver(ctx, Delivery{
		Kind:         DeliveryEphemeral,
		Text:         ev.Content,
		SenderPubKey: ev.PubKey,
		Geohash:      ev.Tags.First(event.TagGeohash),
		Nickname:     ev.Tags.First(event.TagNickname),
		SentAt:       ev.CreatedAt,
	})
}

func (r *Router) deliver(ctx context.Context, d Delivery) {
	select {
	case r.deliveries <- d:
	case <-ctx.Done():
	}
}

// SendPrivate packs, wraps and sends a direct message and returns
// its message id.
func (r *Router) SendPrivate(ctx context.Context, peerID, text string) (string, error) {
	if text == "" {
		return "", ErrEmptyMessage
	}
	pubHex, ok := r.contacts.NostrKeyFor(peerID)
	if !ok {
		return "", ErrUnknownPeer
	}
	recipientPub, err := hex.DecodeString(pubHex)
	if err != nil || len(recipientPub) != 32 {
		return "", ErrUnknownPeer
	}
	messageID, err := newMessageID()
	if err != nil {
		return "", err
	}
	gw, err := r.wrapPayload(packet.Payload{
		Type:      packet.TypePrivateMessage,
		MessageID: messageID,
		Text:      text,
	}, recipientPub)
	if err != nil {
		return "", err
	}
	if err := r.transport.SendEvent(ctx, gw); err != nil {
		return "", err
	}
	r.metrics.MessagesSent.Inc()
	return messageID, nil
}

// SendReadAck queues a read receipt for a message, at most once per
// store lifetime. A duplicate call is a silent no-op.
func (r *Router) SendReadAck(peerID, messageID string) error {
	pubHex, ok := r.contacts.NostrKeyFor(peerID)
	if !ok {
		return ErrUnknownPeer
	}
	first, err := r.seen.MarkRead(messageID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	r.enqueueAck(packet.TypeReadAck, messageID, pubHex)
	return nil
}

// enqueueAck builds a wrapped acknowledgement and puts it on the
// throttled queue. The idempotence flag was already persisted by the
// caller, so a full queue loses the ack rather than duplicating it
// later.
func (r *Router) enqueueAck(typ packet.Type, messageID, recipientPubHex string) {
	recipientPub, err := hex.DecodeString(recipientPubHex)
	if err != nil || len(recipientPub) != 32 {
		return
	}
	gw, err := r.wrapPayload(packet.Payload{Type: typ, MessageID: messageID}, recipientPub)
	if err != nil {
		r.log.Debug("ack wrap failed", "err", err)
		return
	}
	if !r.acks.Enqueue(gw) {
		r.metrics.AcksDropped.Inc()
	}
}

func (r *Router) wrapPayload(pl packet.Payload, recipientPub []byte) (*event.Event, error) {
	encoded, ok := packet.EncodePayload(pl)
	if !ok {
		return nil, ErrEmptyMessage
	}
	stable := r.ids.Stable()
	rumor := r.wrap.NewRumor(packet.Encode(encoded), stable)
	return r.wrap.Wrap(rumor, recipientPub, stable)
}

// JoinGeohash subscribes to a location channel: the public ephemeral
// stream plus gift wraps addressed to the geohash-scoped identity.
// Inbound events share the router's processing loop.
func (r *Router) JoinGeohash(ctx context.Context, geohash string) error {
	if geohash == "" {
		return ErrEmptyGeohash
	}
	id, err := r.ids.ForGeohash(geohash)
	if err != nil {
		return err
	}
	since := r.now().Add(-reliability.MaxEventAge).Unix()
	filter := relay.EphemeralInGeohash(geohash, since, r.subscribeLimit)
	if err := r.transport.Subscribe(ctx, filter, "geo:"+geohash, r.inbound); err != nil {
		return err
	}
	dm := relay.GiftWrapsFor(id.PublicKeyHex(), since)
	if err := r.transport.Subscribe(ctx, dm, "geodm:"+geohash, r.inbound); err != nil {
		r.transport.Unsubscribe("geo:" + geohash)
		return err
	}
	r.geoMu.Lock()
	r.geoIDs[geohash] = id
	r.geoMu.Unlock()
	return nil
}

// LeaveGeohash drops both location-channel subscriptions and stops
// unwrapping under that identity.
func (r *Router) LeaveGeohash(geohash string) {
	r.geoMu.Lock()
	delete(r.geoIDs, geohash)
	r.geoMu.Unlock()
	r.transport.Unsubscribe("geo:" + geohash)
	r.transport.Unsubscribe("geodm:" + geohash)
}

// geoIdentities snapshots the identities of the joined geohashes.
func (r *Router) geoIdentities() []identity.Identity {
	r.geoMu.Lock()
	defer r.geoMu.Unlock()
	out := make([]identity.Identity, 0, len(r.geoIDs))
	for _, id := range r.geoIDs {
		out = append(out, id)
	}
	return out
}

// SendEphemeral posts a public message to a location channel under
// the geohash-scoped identity, never the stable one.
func (r *Router) SendEphemeral(ctx context.Context, geohash, text, nickname string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	id, err := r.ids.ForGeohash(geohash)
	if err != nil {
		return err
	}
	ev, err := r.wrap.CreateEphemeral(text, geohash, id, nickname)
	if err != nil {
		return err
	}
	if err := r.transport.SendEvent(ctx, ev); err != nil {
		return err
	}
	r.metrics.MessagesSent.Inc()
	return nil
}

func newMessageID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
