package store

import (
	"sync"

	"github.com/nileshop/cartsync/internal/domain"
)

// Store is the single source of truth for the in-memory cart. Every
// replacement is broadcast synchronously to subscribers. Snapshots carry a
// monotonic version so that late-arriving network responses can be detected
// and dropped instead of silently overwriting newer state.
type Store struct {
	mu      sync.RWMutex
	cart    domain.Cart
	version uint64
	subs    map[int]func(domain.Cart)
	nextSub int
}

func New() *Store {
	return &Store{
		cart: domain.Empty(""),
		subs: make(map[int]func(domain.Cart)),
	}
}

// Cart returns the current snapshot. No side effects.
func (s *Store) Cart() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

// Version returns the version of the current snapshot.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns the current cart together with its version, for callers
// that need a consistent read of both.
func (s *Store) Snapshot() (domain.Cart, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone(), s.version
}

// Replace swaps the cart unconditionally and notifies subscribers. Used for
// deliberate overwrites: local guest mutations, reloads, clears.
func (s *Store) Replace(c domain.Cart) uint64 {
	s.mu.Lock()
	s.version++
	v := s.version
	s.cart = c.Clone()
	subs := s.listeners()
	s.mu.Unlock()

	s.notify(subs, c)
	return v
}

// CompareAndReplace swaps the cart only if no other replacement happened
// since version base was observed. It returns false when the commit is stale,
// leaving the current state untouched.
func (s *Store) CompareAndReplace(c domain.Cart, base uint64) (uint64, bool) {
	s.mu.Lock()
	if s.version != base {
		s.mu.Unlock()
		return 0, false
	}
	s.version++
	v := s.version
	s.cart = c.Clone()
	subs := s.listeners()
	s.mu.Unlock()

	s.notify(subs, c)
	return v, true
}

// Subscribe registers fn to be invoked synchronously on every replacement.
// The returned function deregisters the listener; callers must invoke it on
// teardown.
func (s *Store) Subscribe(fn func(domain.Cart)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// listeners must be called with s.mu held.
func (s *Store) listeners() []func(domain.Cart) {
	out := make([]func(domain.Cart), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

// notify runs outside the lock so listeners may call back into the store.
func (s *Store) notify(subs []func(domain.Cart), c domain.Cart) {
	for _, fn := range subs {
		fn(c.Clone())
	}
}
