package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	opts Options

	mu      sync.Mutex
	pending map[string]PendingConfirmation
	last    map[string]Fingerprint

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMemoryStore creates a store and starts a goroutine that drops expired
// entries every sweepInterval. Call Close to stop it.
func NewMemoryStore(opts Options, sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		opts:    opts.withDefaults(),
		pending: make(map[string]PendingConfirmation),
		last:    make(map[string]Fingerprint),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	go s.sweepLoop(sweepInterval)
	return s
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

// Close stops the sweeper.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.opts.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for sender, p := range s.pending {
		if s.pendingExpired(p, now) {
			delete(s.pending, sender)
			removed++
		}
	}
	for sender, f := range s.last {
		if now.Sub(f.CreatedAt) >= s.opts.FingerprintTTL {
			delete(s.last, sender)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) pendingExpired(p PendingConfirmation, now time.Time) bool {
	return now.Sub(p.CreatedAt) >= s.opts.PendingTTL
}

// Pending implements Store.
func (s *MemoryStore) Pending(_ context.Context, sender string) (*PendingConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[sender]
	if !ok {
		return nil, nil
	}
	if s.pendingExpired(p, s.opts.Now()) {
		delete(s.pending, sender)
		return nil, nil
	}
	return &p, nil
}

// SetPending implements Store. It replaces any existing confirmation.
func (s *MemoryStore) SetPending(_ context.Context, p PendingConfirmation) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.opts.Now()
	}
	s.mu.Lock()
	s.pending[p.Sender] = p
	s.mu.Unlock()
	return nil
}

// ClearPending implements Store.
func (s *MemoryStore) ClearPending(_ context.Context, sender string) error {
	s.mu.Lock()
	delete(s.pending, sender)
	s.mu.Unlock()
	return nil
}

// LastCreated implements Store.
func (s *MemoryStore) LastCreated(_ context.Context, sender string) (*Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.last[sender]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

// SetLastCreated implements Store.
func (s *MemoryStore) SetLastCreated(_ context.Context, sender string, f Fingerprint) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.opts.Now()
	}
	s.mu.Lock()
	s.last[sender] = f
	s.mu.Unlock()
	return nil
}

// PendingCount implements Store. Expired entries are not counted.
func (s *MemoryStore) PendingCount(_ context.Context) (int, error) {
	now := s.opts.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, p := range s.pending {
		if !s.pendingExpired(p, now) {
			n++
		}
	}
	return n, nil
}
