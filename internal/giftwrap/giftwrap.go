// Package giftwrap builds and unwinds the three-layer envelope that
// hides sender identity and timing from relays: an unsigned rumor is
// sealed under the sender's real key, then the seal is wrapped under
// a disposable single-use key. Only the wrap layer ever reaches a
// relay.
package giftwrap

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"time"

	"bitchat/go-core/internal/crypto"
	"bitchat/go-core/internal/event"
	"bitchat/go-core/internal/identity"
)

// timestampJitter is the half-width of the uniform randomization
// applied to seal and wrap timestamps, in seconds.
const timestampJitter = 900

// Protocol is a stateless two-way transform. The clock is injectable
// for tests; the zero value is not usable, construct with New.
type Protocol struct {
	now func() time.Time
}

func New() *Protocol {
	return &Protocol{now: time.Now}
}

func newWithClock(now func() time.Time) *Protocol {
	return &Protocol{now: now}
}

// Rumor is the result of a successful unwrap: the true message with
// its real author and original, non-jittered timestamp. Both come
// from the innermost layer only; the outer layers carry a disposable
// key and randomized times.
type Rumor struct {
	AuthorPubKey string
	CreatedAt    int64
	Content      string
}

// NewRumor builds the unsigned inner event for outbound content.
func (p *Protocol) NewRumor(content string, sender identity.Identity) *event.Event {
	return &event.Event{
		PubKey:    sender.PublicKeyHex(),
		CreatedAt: p.now().Unix(),
		Kind:      event.KindRumor,
		Tags:      event.Tags{},
		Content:   content,
	}
}

// Wrap seals a rumor for the recipient and wraps the seal under a
// fresh single-use keypair. The returned event is the only layer
// handed to the transport.
func (p *Protocol) Wrap(rumor *event.Event, recipientPub []byte, sender identity.Identity) (*event.Event, error) {
	id, err := rumor.ComputeID()
	if err != nil {
		return nil, err
	}
	rumor.ID = id

	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		return nil, err
	}
	sealContent, err := crypto.Encrypt(rumorJSON, recipientPub, sender.PrivateKey)
	if err != nil {
		return nil, err
	}
	seal := &event.Event{
		PubKey:    sender.PublicKeyHex(),
		CreatedAt: RandomizeTimestamp(p.now()),
		Kind:      event.KindSeal,
		Tags:      event.Tags{},
		Content:   sealContent,
	}
	if err := seal.Sign(sender.PrivateKey); err != nil {
		return nil, err
	}

	wrapPriv, wrapPub, err := crypto.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	sealJSON, err := json.Marshal(seal)
	if err != nil {
		return nil, err
	}
	wrapContent, err := crypto.Encrypt(sealJSON, recipientPub, wrapPriv)
	if err != nil {
		return nil, err
	}
	wrap := &event.Event{
		PubKey:    hex.EncodeToString(wrapPub),
		CreatedAt: RandomizeTimestamp(p.now()),
		Kind:      event.KindGiftWrap,
		Tags: event.Tags{
			{event.TagRecipient, hex.EncodeToString(recipientPub)},
		},
		Content: wrapContent,
	}
	if err := wrap.Sign(wrapPriv); err != nil {
		return nil, err
	}
	return wrap, nil
}

// Unwrap peels both layers with the receiver's private key. The bool
// is false for anything not addressed to this identity or otherwise
// unusable; that outcome is frequent on a broadcast stream and
// carries no detail on purpose.
func (p *Protocol) Unwrap(wrap *event.Event, receiver identity.Identity) (Rumor, bool) {
	wrapAuthor, err := hex.DecodeString(wrap.PubKey)
	if err != nil || len(wrapAuthor) != 32 {
		return Rumor{}, false
	}
	sealJSON, err := crypto.Decrypt(wrap.Content, wrapAuthor, receiver.PrivateKey)
	if err != nil {
		return Rumor{}, false
	}
	var seal event.Event
	if err := json.Unmarshal(sealJSON, &seal); err != nil {
		return Rumor{}, false
	}
	if seal.Kind != event.KindSeal || seal.Verify() != nil {
		return Rumor{}, false
	}

	sealAuthor, err := hex.DecodeString(seal.PubKey)
	if err != nil || len(sealAuthor) != 32 {
		return Rumor{}, false
	}
	rumorJSON, err := crypto.Decrypt(seal.Content, sealAuthor, receiver.PrivateKey)
	if err != nil {
		return Rumor{}, false
	}
	var rumor event.Event
	if err := json.Unmarshal(rumorJSON, &rumor); err != nil {
		return Rumor{}, false
	}
	// The rumor author must match the seal signer, otherwise the seal
	// layer could forge messages on behalf of another key.
	if rumor.Kind != event.KindRumor || rumor.PubKey != seal.PubKey {
		return Rumor{}, false
	}
	if id, err := rumor.ComputeID(); err != nil || id != rumor.ID {
		return Rumor{}, false
	}
	return Rumor{
		AuthorPubKey: rumor.PubKey,
		CreatedAt:    rumor.CreatedAt,
		Content:      rumor.Content,
	}, true
}

// CreateEphemeral builds the public, geohash-tagged event kind used
// for location channels. Not wrapped and not jittered: these are
// intentionally public and their ordering matters.
func (p *Protocol) CreateEphemeral(content, geohash string, id identity.Identity, nickname string) (*event.Event, error) {
	tags := event.Tags{{event.TagGeohash, geohash}}
	if nickname != "" {
		tags = append(tags, event.Tag{event.TagNickname, nickname})
	}
	ev := &event.Event{
		PubKey:    id.PublicKeyHex(),
		CreatedAt: p.now().Unix(),
		Kind:      event.KindEphemeral,
		Tags:      tags,
		Content:   content,
	}
	if err := ev.Sign(id.PrivateKey); err != nil {
		return nil, err
	}
	return ev, nil
}

// RandomizeTimestamp returns a uniform value in [t-900, t+900]
// seconds to blunt timing correlation across the envelope layers.
func RandomizeTimestamp(t time.Time) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(2*timestampJitter+1))
	if err != nil {
		// Falling back to the exact timestamp loses jitter, not
		// correctness.
		return t.Unix()
	}
	return t.Unix() + n.Int64() - timestampJitter
}
