package event

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	ErrInvalidPubKey    = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrIDMismatch       = errors.New("event id does not match content")
)

// Event kinds handled by this core. Anything else on the stream
// belongs to another application and is skipped.
const (
	KindRumor     = 14
	KindSeal      = 13
	KindGiftWrap  = 1059
	KindEphemeral = 20000
)

// Tag names used by this core.
const (
	TagRecipient = "p"
	TagGeohash   = "g"
	TagNickname  = "n"
)

type Tag []string

type Tags []Tag

// First returns the first value of the named tag, or "" if absent.
func (t Tags) First(name string) string {
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// Event is the relay wire format. Field names and ordering of the
// canonical serialization are fixed; changing either breaks interop.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Serialize produces the canonical form the event id is hashed over:
// the JSON array [0, pubkey, created_at, kind, tags, content] with
// HTML escaping disabled.
func (e *Event) Serialize() ([]byte, error) {
	arr := []any{0, e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeID hashes the canonical serialization and returns it hex-encoded.
func (e *Event) ComputeID() (string, error) {
	ser, err := e.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(ser)
	return hex.EncodeToString(sum[:]), nil
}

// Sign sets the event id and signature for the given private key.
// The pubkey field must already hold the matching x-only key.
func (e *Event) Sign(privKey []byte) error {
	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	e.ID = id
	hash, err := hex.DecodeString(id)
	if err != nil {
		return err
	}
	priv := secp256k1.PrivKeyFromBytes(privKey)
	defer priv.Zero()
	sig, err := schnorr.Sign(priv, hash)
	if err != nil {
		return err
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify recomputes the event id and checks the signature against it.
// It must run on every decode path that accepts external data.
func (e *Event) Verify() error {
	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	if id != e.ID {
		return ErrIDMismatch
	}
	pubBytes, err := hex.DecodeString(e.PubKey)
	if err != nil || len(pubBytes) != 32 {
		return ErrInvalidPubKey
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return ErrInvalidPubKey
	}
	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil || len(sigBytes) != schnorr.SignatureSize {
		return ErrInvalidSignature
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return ErrInvalidSignature
	}
	hash, err := hex.DecodeString(id)
	if err != nil {
		return err
	}
	if !sig.Verify(hash, pub) {
		return ErrInvalidSignature
	}
	return nil
}
