// Package session owns authentication truth for the client: the bearer
// token and the Identity it authorises. Every other component reads the
// store or subscribes to it; nothing else writes session fields.
package session

import (
	"context"
	"log"
	"sync"

	"elevate/portal/internal/api"
	"elevate/portal/internal/model"
)

// Subscriber receives the new session snapshot (nil when cleared) after
// every store mutation. Callbacks run outside the store lock.
type Subscriber func(*model.Session)

// Verifier confirms a provisional token against the portal.
type Verifier interface {
	Me(ctx context.Context) (*model.Identity, error)
}

type Store struct {
	mu      sync.RWMutex
	current *model.Session
	persist Persister
	subs    map[int]Subscriber
	nextSub int
}

func NewStore(persist Persister) *Store {
	return &Store{
		persist: persist,
		subs:    make(map[int]Subscriber),
	}
}

// Current returns the session snapshot, or nil when anonymous. The snapshot
// is replaced wholesale on every mutation; callers must not modify it.
func (s *Store) Current() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Token returns the current bearer token, or "" when anonymous.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// Set installs a new token+identity pair atomically and writes through to
// durable storage. A persistence failure is logged, not fatal: the in-memory
// session is already the source of truth for this process.
func (s *Store) Set(token string, identity *model.Identity) {
	if token == "" || identity == nil {
		// A half session is never stored.
		s.Clear()
		return
	}
	next := &model.Session{Token: token, Identity: identity}

	s.mu.Lock()
	s.current = next
	subs := s.snapshotSubs()
	s.mu.Unlock()

	if err := s.persist.Save(context.Background(), next); err != nil {
		log.Printf("session persist failed: %v", err)
	}
	for _, fn := range subs {
		fn(next)
	}
}

// Clear empties the store and erases the durable copy.
func (s *Store) Clear() {
	s.mu.Lock()
	wasEmpty := s.current == nil
	s.current = nil
	subs := s.snapshotSubs()
	s.mu.Unlock()

	if err := s.persist.Clear(context.Background()); err != nil {
		log.Printf("session erase failed: %v", err)
	}
	if wasEmpty {
		return
	}
	for _, fn := range subs {
		fn(nil)
	}
}

// Subscribe registers fn for future session changes and returns an
// unsubscribe function.
func (s *Store) Subscribe(fn Subscriber) func() {
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

func (s *Store) snapshotSubs() []Subscriber {
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

// Hydrate loads the durable session copy and confirms it with the portal.
// The durable copy is provisional: it is installed silently so the verifier
// can present the token, then either confirmed (subscribers fire with the
// server-reported identity) or discarded.
//
// A 401 rejection empties the store, with one exception: when the cached
// identity is known-unverified the session survives, because an unverified
// account legitimately fails protected routes and must be routed to
// verification rather than logged out.
func (s *Store) Hydrate(ctx context.Context, verifier Verifier) error {
	cached, err := s.persist.Load(ctx)
	if err != nil {
		return err
	}
	if cached == nil || cached.Token == "" || cached.Identity == nil {
		return nil
	}

	s.mu.Lock()
	s.current = cached
	s.mu.Unlock()

	identity, err := verifier.Me(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			if !cached.Identity.Verified {
				s.notifyCurrent()
				return nil
			}
			s.Clear()
			return nil
		}
		// Transport failure: keep the provisional copy, report the error so
		// the caller can decide whether to retry.
		s.notifyCurrent()
		return err
	}

	s.Set(cached.Token, identity)
	return nil
}

func (s *Store) notifyCurrent() {
	s.mu.RLock()
	current := s.current
	subs := s.snapshotSubs()
	s.mu.RUnlock()
	for _, fn := range subs {
		fn(current)
	}
}
