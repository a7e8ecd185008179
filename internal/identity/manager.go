package identity

import (
	"strings"
	"sync"
)

// Manager hands out the two identity lifecycles: the stable device
// identity and deterministic per-geohash identities. Geohash
// identities are memoized for the process lifetime but carry no
// secret of their own; the master seed alone re-derives them.
type Manager struct {
	seed   []byte
	stable Identity

	mu        sync.RWMutex
	byGeohash map[string]Identity
}

// NewManager derives the stable device identity up front and returns
// a manager bound to the master seed.
func NewManager(seed []byte) (*Manager, error) {
	if len(seed) != 32 {
		return nil, ErrInvalidSeed
	}
	stable, err := deriveIdentity(seed, hkdfInfoDevice)
	if err != nil {
		return nil, err
	}
	return &Manager{
		seed:      append([]byte(nil), seed...),
		stable:    stable,
		byGeohash: make(map[string]Identity),
	}, nil
}

// Stable returns the long-lived device identity.
func (m *Manager) Stable() Identity {
	return m.stable
}

// ForGeohash returns the identity scoped to a geohash label,
// deriving and caching it on first use. Derivation happens outside
// the lock; a concurrent duplicate derivation is wasted work but
// yields the identical keypair, so first-write-wins is safe.
func (m *Manager) ForGeohash(label string) (Identity, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Identity{}, ErrEmptyLabel
	}

	m.mu.RLock()
	id, ok := m.byGeohash[label]
	m.mu.RUnlock()
	if ok {
		return id, nil
	}

	derived, err := deriveIdentity(m.seed, hkdfInfoGeo+label)
	if err != nil {
		return Identity{}, err
	}

	m.mu.Lock()
	if cached, ok := m.byGeohash[label]; ok {
		m.mu.Unlock()
		return cached, nil
	}
	m.byGeohash[label] = derived
	m.mu.Unlock()
	return derived, nil
}
