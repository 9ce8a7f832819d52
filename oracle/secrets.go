package oracle

import (
	"strings"
	"sync"
	"time"
)

// DefaultSecretTTL mirrors the hosted-secret expiry of the external
// transport: entries older than this are treated as absent, so requests go
// out without credentials and fail upstream unless the operator refreshes
// the slot.
const DefaultSecretTTL = 72 * time.Hour

type secretEntry struct {
	version  uint64
	value    string
	storedAt time.Time
}

// SecretStore holds the off-chain-hosted credentials referenced by
// (slot, version) pairs in oracle requests. The ledger only ever sees the
// coordinates; the material lives here.
type SecretStore struct {
	mu      sync.RWMutex
	entries map[uint8]secretEntry
	ttl     time.Duration
	nowFn   func() time.Time
}

// NewSecretStore returns a store with the transport's default expiry.
func NewSecretStore() *SecretStore {
	return &SecretStore{
		entries: make(map[uint8]secretEntry),
		ttl:     DefaultSecretTTL,
		nowFn:   time.Now,
	}
}

// SetTTL overrides the expiry window. Non-positive restores the default.
func (s *SecretStore) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultSecretTTL
	}
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

// SetNowFunc overrides the clock, for tests.
func (s *SecretStore) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.mu.Lock()
	s.nowFn = now
	s.mu.Unlock()
}

// Set stores the credential under the slot with the given version,
// restarting the expiry window.
func (s *SecretStore) Set(slot uint8, version uint64, value string) {
	trimmed := strings.TrimSpace(value)
	s.mu.Lock()
	s.entries[slot] = secretEntry{version: version, value: trimmed, storedAt: s.nowFn()}
	s.mu.Unlock()
}

// Get resolves the credential for the coordinates. It misses when the slot
// is empty, the version does not match, or the entry has expired.
func (s *SecretStore) Get(slot uint8, version uint64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[slot]
	if !ok || entry.version != version || entry.value == "" {
		return "", false
	}
	if s.nowFn().Sub(entry.storedAt) > s.ttl {
		return "", false
	}
	return entry.value, true
}
