package progress

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrInFlight is returned by Begin when a transfer is already running for
// the same token.
var ErrInFlight = errors.New("transfer already in progress for this token")

type entry struct {
	rec    Record
	cancel context.CancelFunc
	doneAt time.Time // zero while the transfer is in flight
}

// Store holds the latest Record per token in memory. The writer overwrites
// the whole record on every update, readers take snapshots, so pollers
// never observe a torn state. Terminal records live until an explicit
// Delete or until the TTL sweeper evicts them.
type Store struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]*entry
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		entries: make(map[string]*entry),
	}
}

// Begin registers an in-flight transfer for token with an initial starting
// record. The cancel function aborts the transfer when Cancel is called.
// A second Begin for a token whose transfer has not reached a terminal
// state fails with ErrInFlight; a terminal leftover is replaced.
func (s *Store) Begin(token string, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[token]; ok && !e.rec.Status.Terminal() {
		return ErrInFlight
	}

	zero := 0.0
	s.entries[token] = &entry{
		rec: Record{
			Status:  StatusStarting,
			Percent: &zero,
		},
		cancel: cancel,
	}
	return nil
}

// Update overwrites the record for token. No-op if the record was deleted
// mid-transfer; the writer's next terminal write recreates nothing either.
func (s *Store) Update(token string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		return
	}
	e.rec = rec
}

// Finish overwrites the record with a terminal state and releases the
// cancel function. The record stays visible for the poller until Delete
// or TTL eviction.
func (s *Store) Finish(token string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		return
	}
	e.rec = rec
	e.cancel = nil
	e.doneAt = time.Now()
}

// Get returns a snapshot of the record for token.
func (s *Store) Get(token string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[token]
	if !ok {
		return Record{}, false
	}
	return e.rec, true
}

// Delete removes the record for token. Idempotent; never touches the
// downloaded file.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
}

// Cancel aborts the in-flight transfer for token, if any. Returns whether
// a transfer was actually cancelled.
func (s *Store) Cancel(token string) bool {
	s.mu.Lock()
	cancel := (context.CancelFunc)(nil)
	if e, ok := s.entries[token]; ok && e.cancel != nil {
		cancel = e.cancel
		e.cancel = nil
	}
	s.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Run sweeps terminal records older than the TTL until ctx is done.
// Records for transfers abandoned mid-flight are not evicted here; they
// become terminal when the transfer itself finishes or fails.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(s.ttl / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *Store) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, e := range s.entries {
		if !e.doneAt.IsZero() && now.Sub(e.doneAt) > s.ttl {
			delete(s.entries, token)
		}
	}
}
