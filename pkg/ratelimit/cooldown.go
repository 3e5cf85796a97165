package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CooldownStore persists the time of each user's last successful device removal
type CooldownStore interface {
	// LastRemoval returns the last recorded removal. ok is false when none is recorded.
	LastRemoval(ctx context.Context, userID string) (at time.Time, ok bool, err error)
	// SetLastRemoval records a removal. Entries older than ttl may be discarded.
	SetLastRemoval(ctx context.Context, userID string, at time.Time, ttl time.Duration) error
}

// RemovalThrottler allows at most one device removal per user within the cooldown window
type RemovalThrottler struct {
	store    CooldownStore
	cooldown time.Duration
	now      func() time.Time
}

// ThrottlerOption configures a RemovalThrottler
type ThrottlerOption func(*RemovalThrottler)

// WithThrottlerClock overrides the time source
func WithThrottlerClock(now func() time.Time) ThrottlerOption {
	return func(t *RemovalThrottler) {
		t.now = now
	}
}

// NewRemovalThrottler creates a throttler. The cooldown has no default and must be positive.
func NewRemovalThrottler(store CooldownStore, cooldown time.Duration, opts ...ThrottlerOption) (*RemovalThrottler, error) {
	if store == nil {
		return nil, fmt.Errorf("cooldown store is required")
	}
	if cooldown <= 0 {
		return nil, fmt.Errorf("removal cooldown must be positive, got %s", cooldown)
	}
	t := &RemovalThrottler{
		store:    store,
		cooldown: cooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Cooldown returns the configured window
func (t *RemovalThrottler) Cooldown() time.Duration {
	return t.cooldown
}

// CanRemove reports whether userID may remove a device now
func (t *RemovalThrottler) CanRemove(ctx context.Context, userID string) (bool, error) {
	wait, err := t.TimeUntilNextRemoval(ctx, userID)
	if err != nil {
		return false, err
	}
	return wait == 0, nil
}

// TimeUntilNextRemoval returns how long userID must wait, or zero when removal is allowed
func (t *RemovalThrottler) TimeUntilNextRemoval(ctx context.Context, userID string) (time.Duration, error) {
	last, ok, err := t.store.LastRemoval(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load last removal: %w", err)
	}
	if !ok {
		return 0, nil
	}
	wait := last.Add(t.cooldown).Sub(t.now())
	if wait <= 0 {
		return 0, nil
	}
	return wait, nil
}

// RecordRemoval starts a new cooldown window for userID
func (t *RemovalThrottler) RecordRemoval(ctx context.Context, userID string) error {
	if err := t.store.SetLastRemoval(ctx, userID, t.now(), t.cooldown); err != nil {
		return fmt.Errorf("failed to record removal: %w", err)
	}
	return nil
}

// MemoryCooldownStore keeps removal timestamps in process memory
type MemoryCooldownStore struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewMemoryCooldownStore creates an empty in-memory store
func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{
		last: make(map[string]time.Time),
	}
}

func (s *MemoryCooldownStore) LastRemoval(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.last[userID]
	return at, ok, nil
}

func (s *MemoryCooldownStore) SetLastRemoval(_ context.Context, userID string, at time.Time, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[userID] = at
	return nil
}
