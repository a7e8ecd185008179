// Package contacts maps local mesh peer ids to protocol public keys.
// Contact storage itself belongs to the consuming application; this
// package defines the lookup contract plus an in-memory book.
package contacts

import (
	"crypto/sha256"
	"strings"
	"sync"

	"github.com/mr-tron/base58"
)

// Resolver finds the protocol public key for a local peer and back.
type Resolver interface {
	NostrKeyFor(peerID string) (pubKeyHex string, ok bool)
	PeerIDFor(pubKeyHex string) (peerID string, ok bool)
}

// PeerID derives the short local peer id for a public key: base58
// over the first 8 bytes of its hash.
func PeerID(pubKey []byte) string {
	sum := sha256.Sum256(pubKey)
	return base58.Encode(sum[:8])
}

// Book is a mutex-guarded in-memory Resolver.
type Book struct {
	mu     sync.RWMutex
	byPeer map[string]string
	byKey  map[string]string
}

func NewBook() *Book {
	return &Book{
		byPeer: make(map[string]string),
		byKey:  make(map[string]string),
	}
}

// Add registers a peer's public key, replacing any earlier mapping.
func (b *Book) Add(peerID, pubKeyHex string) {
	peerID = strings.TrimSpace(peerID)
	pubKeyHex = strings.ToLower(strings.TrimSpace(pubKeyHex))
	if peerID == "" || pubKeyHex == "" {
		return
	}
	b.mu.Lock()
	if old, ok := b.byPeer[peerID]; ok {
		delete(b.byKey, old)
	}
	b.byPeer[peerID] = pubKeyHex
	b.byKey[pubKeyHex] = peerID
	b.mu.Unlock()
}

func (b *Book) NostrKeyFor(peerID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	key, ok := b.byPeer[peerID]
	return key, ok
}

func (b *Book) PeerIDFor(pubKeyHex string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	peer, ok := b.byKey[strings.ToLower(pubKeyHex)]
	return peer, ok
}
