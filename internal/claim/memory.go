package claim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an empty locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock overrides the clock used for expiry.
func (m *MemoryLocker) WithClock(now func() time.Time) *MemoryLocker {
	m.now = now
	return m
}

func (m *MemoryLocker) TryClaim(_ context.Context, key string, ttl time.Duration) (*Claim, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return nil, ErrAlreadyClaimed
	}

	token := uuid.NewString()
	m.entries[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return &Claim{Key: key, Token: token}, nil
}

func (m *MemoryLocker) Release(_ context.Context, c *Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[c.Key]
	if !ok || e.token != c.Token || !m.now().Before(e.expires) {
		return ErrNotHeld
	}
	delete(m.entries, c.Key)
	return nil
}
