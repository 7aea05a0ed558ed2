// Package notify keeps a local notification cache and unread counter
// consistent with the remote feed while a session is active. The
// synchronizer is the only writer of notification state; everything else
// reads snapshots or calls its mutation operations.
package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"elevate/portal/internal/api"
	"elevate/portal/internal/model"
	"elevate/portal/internal/session"
)

// ErrInactive is returned by operations that need an active polling session.
var ErrInactive = errors.New("notification sync inactive")

// FeedSource is the remote surface the synchronizer polls and writes back to.
type FeedSource interface {
	Notifications(ctx context.Context, limit int) (*api.Feed, error)
	MarkRead(ctx context.Context, ids []string) error
	MarkAllRead(ctx context.Context) error
}

type Synchronizer struct {
	source       FeedSource
	limit        int
	interval     time.Duration
	fetchTimeout time.Duration

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc

	cache  []model.Notification
	unread int

	// fetchSeq is handed out when a fetch starts; appliedSeq is the highest
	// completion written so far. A completion at or below appliedSeq lost the
	// race to a fresher fetch and is discarded.
	fetchSeq   uint64
	appliedSeq uint64

	// Optimistic mutations whose remote write failed. Re-applied and re-sent
	// after the next successful full fetch, then cleared.
	pendingRead map[string]bool
	pendingAll  bool
}

func NewSynchronizer(source FeedSource, limit int, interval, fetchTimeout time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 8 * time.Second
	}
	return &Synchronizer{
		source:       source,
		limit:        limit,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		pendingRead:  make(map[string]bool),
	}
}

// Snapshot returns a copy of the cached feed and the unread counter.
func (s *Synchronizer) Snapshot() ([]model.Notification, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, len(s.cache))
	copy(out, s.cache)
	return out, s.unread
}

// Unread returns the authoritative unread counter.
func (s *Synchronizer) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Active reports whether the polling loop is running.
func (s *Synchronizer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start transitions inactive -> polling: an immediate fetch, then one per
// interval until Stop or ctx cancellation.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx)
}

// Stop cancels the polling loop synchronously and clears all local state.
// An in-flight fetch may still complete afterwards; its write is discarded
// by the active check in apply.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	cancel := s.cancel
	s.cancel = nil
	s.resetLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Reset clears the cache and counter. Pending reconciliation state goes
// with them: there is no session left to reconcile for.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Synchronizer) resetLocked() {
	s.cache = nil
	s.unread = 0
	s.pendingRead = make(map[string]bool)
	s.pendingAll = false
	unreadGauge.Set(0)
}

// BindTo ties the synchronizer lifecycle to the session store: polling
// starts when a session appears and stops when it is cleared. The returned
// function unsubscribes.
func (s *Synchronizer) BindTo(ctx context.Context, store *session.Store) func() {
	if store.Current() != nil {
		s.Start(ctx)
	}
	return store.Subscribe(func(sess *model.Session) {
		if sess != nil {
			s.Start(ctx)
			return
		}
		s.Stop()
	})
}

func (s *Synchronizer) run(ctx context.Context) {
	s.fetchTick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fetchTick(ctx)
		}
	}
}

func (s *Synchronizer) fetchTick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	if err := s.FetchAll(tickCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("notification fetch error: %v", err)
	}
}

// FetchAll replaces the cache and counter wholesale with the server's
// response. Overlapping fetches resolve last-applied-wins: each fetch takes
// a sequence number at start, and a completion is written only if no
// higher-numbered completion beat it there.
func (s *Synchronizer) FetchAll(ctx context.Context) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return ErrInactive
	}
	s.fetchSeq++
	seq := s.fetchSeq
	s.mu.Unlock()

	feed, err := s.source.Notifications(ctx, s.limit)
	if err != nil {
		fetches.WithLabelValues("error").Inc()
		return err
	}
	s.apply(seq, feed)
	return nil
}

func (s *Synchronizer) apply(seq uint64, feed *api.Feed) {
	s.mu.Lock()

	if !s.active || seq <= s.appliedSeq {
		s.mu.Unlock()
		fetches.WithLabelValues("stale_discard").Inc()
		return
	}
	s.appliedSeq = seq

	s.cache = make([]model.Notification, len(feed.Notifications))
	copy(s.cache, feed.Notifications)
	// Server truth wins for the counter; never recomputed locally.
	s.unread = feed.UnreadCount
	if s.unread < 0 {
		s.unread = 0
	}

	retryAll := s.pendingAll
	var retryIDs []string
	if retryAll {
		for i := range s.cache {
			s.cache[i].Read = true
		}
		s.unread = 0
	} else if len(s.pendingRead) > 0 {
		for i := range s.cache {
			if s.pendingRead[s.cache[i].ID] && !s.cache[i].Read {
				s.cache[i].Read = true
				if s.unread > 0 {
					s.unread--
				}
			}
		}
		retryIDs = make([]string, 0, len(s.pendingRead))
		for id := range s.pendingRead {
			retryIDs = append(retryIDs, id)
		}
	}
	s.pendingAll = false
	s.pendingRead = make(map[string]bool)

	unreadGauge.Set(float64(s.unread))
	s.mu.Unlock()
	fetches.WithLabelValues("success").Inc()

	if retryAll {
		go s.retryMarkAll()
	} else if len(retryIDs) > 0 {
		go s.retryMarkRead(retryIDs)
	}
}

// MarkRead optimistically flips the read flag on the matching cached
// entries and decrements the counter by exactly the number that were
// previously unread, never below zero. Ids absent from the cache are
// counter no-ops. The remote write follows; on failure the local state is
// kept and the ids are queued for reconciliation after the next full fetch.
func (s *Synchronizer) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return ErrInactive
	}
	for i := range s.cache {
		if wanted[s.cache[i].ID] && !s.cache[i].Read {
			s.cache[i].Read = true
			if s.unread > 0 {
				s.unread--
			}
		}
	}
	unreadGauge.Set(float64(s.unread))
	s.mu.Unlock()

	if err := s.source.MarkRead(ctx, ids); err != nil {
		s.mu.Lock()
		if s.active {
			for _, id := range ids {
				s.pendingRead[id] = true
			}
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// MarkAllRead optimistically drains the counter; same remote and
// reconciliation semantics as MarkRead.
func (s *Synchronizer) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return ErrInactive
	}
	for i := range s.cache {
		s.cache[i].Read = true
	}
	s.unread = 0
	unreadGauge.Set(0)
	s.mu.Unlock()

	if err := s.source.MarkAllRead(ctx); err != nil {
		s.mu.Lock()
		if s.active {
			s.pendingAll = true
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// AppendLive inserts a push-delivered notification at the head of the cache,
// outside the polling cycle, bumping the counter when it is unread.
func (s *Synchronizer) AppendLive(n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrInactive
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.cache = append([]model.Notification{n}, s.cache...)
	if !n.Read {
		s.unread++
	}
	unreadGauge.Set(float64(s.unread))
	liveAppends.Inc()
	return nil
}

func (s *Synchronizer) retryMarkRead(ids []string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()
	if err := s.source.MarkRead(ctx, ids); err != nil {
		log.Printf("mark-read reconciliation failed, will retry after next fetch: %v", err)
		s.mu.Lock()
		if s.active {
			for _, id := range ids {
				s.pendingRead[id] = true
			}
		}
		s.mu.Unlock()
	}
}

func (s *Synchronizer) retryMarkAll() {
	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()
	if err := s.source.MarkAllRead(ctx); err != nil {
		log.Printf("mark-all-read reconciliation failed, will retry after next fetch: %v", err)
		s.mu.Lock()
		if s.active {
			s.pendingAll = true
		}
		s.mu.Unlock()
	}
}
