package coordination

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Coordination Store, grounded in the same
// mutex-guarded map-with-expiry shape used elsewhere in the gateway for
// short-lived challenge/session state. It is correct for a single instance;
// multi-instance deployments use the SQLite-backed Store instead.
type MemoryStore struct {
	mu sync.Mutex

	dedup   map[string]time.Time            // key -> expiry
	locks   map[string]lockEntry            // key -> holder
	threads map[string]threadEntry          // key -> state + expiry
	pending map[string]pendingEntry         // key -> value + expiry

	stop chan struct{}
	once sync.Once
}

type lockEntry struct {
	token   string
	expires time.Time
}

type threadEntry struct {
	state   ThreadState
	expires time.Time
}

type pendingEntry struct {
	value   string
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		dedup:   make(map[string]time.Time),
		locks:   make(map[string]lockEntry),
		threads: make(map[string]threadEntry),
		pending: make(map[string]pendingEntry),
		stop:    make(chan struct{}),
	}
	go s.compactLoop()
	return s
}

func (s *MemoryStore) ReserveDedup(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.dedup[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.dedup[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) AcquireLock(_ context.Context, key string, ttl time.Duration) (string, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.locks[key]; ok && now.Before(entry.expires) {
		return "", nil // contended
	}

	token := uuid.New().String()
	s.locks[key] = lockEntry{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (s *MemoryStore) ReleaseLock(_ context.Context, key, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.locks[key]
	if !ok || entry.token != token {
		return false, nil // either expired/stolen, or not our token
	}
	delete(s.locks, key)
	return true, nil
}

func (s *MemoryStore) SetThreadState(_ context.Context, key string, state ThreadState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[key] = threadEntry{state: state, expires: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) GetThreadState(_ context.Context, key string) (*ThreadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.threads[key]
	if !ok || time.Now().After(entry.expires) {
		return nil, nil
	}
	state := entry.state
	return &state, nil
}

func (s *MemoryStore) SetPending(_ context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = pendingEntry{value: value, expires: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) GetPending(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[key]
	if !ok || time.Now().After(entry.expires) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) ClearPending(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	return nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// compactLoop periodically sweeps expired entries so the maps do not grow
// without bound under sustained traffic.
func (s *MemoryStore) compactLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.compact()
		}
	}
}

func (s *MemoryStore) compact() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, exp := range s.dedup {
		if now.After(exp) {
			delete(s.dedup, k)
		}
	}
	for k, e := range s.locks {
		if now.After(e.expires) {
			delete(s.locks, k)
		}
	}
	for k, e := range s.threads {
		if now.After(e.expires) {
			delete(s.threads, k)
		}
	}
	for k, e := range s.pending {
		if now.After(e.expires) {
			delete(s.pending, k)
		}
	}
}
