// Package ratelimit holds the per-user sliding-window admission limiter and
// the per-host throttle fetchers use to stay polite.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

const (
	// DefaultLimit is the number of admissions allowed per window.
	DefaultLimit = 100
	// DefaultWindow is the sliding window length.
	DefaultWindow = 24 * time.Hour
)

// Config holds the window settings.
type Config struct {
	Limit     int
	Window    time.Duration
	Overrides map[string]int
}

type stamp struct {
	at  time.Time
	seq uint64
}

type userWindow struct {
	mu     sync.Mutex
	stamps []stamp
	limit  int
}

// Limiter admits at most Limit requests per user in any trailing Window.
type Limiter struct {
	clock  crawler.Clock
	limit  int
	window time.Duration

	mu    sync.Mutex
	users map[string]*userWindow
	seq   uint64
}

// New creates a Limiter. Zero values fall back to the defaults.
func New(cfg Config, clock crawler.Clock) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	l := &Limiter{
		clock:  clock,
		limit:  cfg.Limit,
		window: cfg.Window,
		users:  make(map[string]*userWindow),
	}
	for user, limit := range cfg.Overrides {
		if limit > 0 {
			l.user(user).limit = limit
		}
	}
	return l
}

func (l *Limiter) user(userID string) *userWindow {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.users[userID]
	if !ok {
		w = &userWindow{}
		l.users[userID] = w
	}
	return w
}

func (l *Limiter) lookup(userID string) (*userWindow, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.users[userID]
	return w, ok
}

func (l *Limiter) nextSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return l.seq
}

// prune drops stamps that have aged out. Caller holds w.mu.
func (l *Limiter) prune(w *userWindow, now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

func (l *Limiter) limitFor(w *userWindow) int {
	if w.limit > 0 {
		return w.limit
	}
	return l.limit
}

// usage builds the stats snapshot. Caller holds w.mu and has pruned.
func (l *Limiter) usage(w *userWindow) crawler.RateUsage {
	limit := l.limitFor(w)
	u := crawler.RateUsage{
		CurrentRequests:   len(w.stamps),
		RequestLimit:      limit,
		RemainingRequests: limit - len(w.stamps),
		WindowSeconds:     int64(l.window / time.Second),
	}
	if u.RemainingRequests < 0 {
		u.RemainingRequests = 0
	}
	if len(w.stamps) > 0 {
		reset := w.stamps[0].at.Add(l.window)
		u.ResetTime = &reset
	}
	return u
}

// Reservation is one admitted request. Cancel withdraws it from the window.
type Reservation struct {
	Usage crawler.RateUsage

	limiter *Limiter
	userID  string
	seq     uint64
	once    sync.Once
}

// Cancel removes the admission from the user's window. It is idempotent and
// safe on a nil Reservation.
func (r *Reservation) Cancel() {
	if r == nil || r.limiter == nil {
		return
	}
	r.once.Do(func() {
		w, ok := r.limiter.lookup(r.userID)
		if !ok {
			return
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, s := range w.stamps {
			if s.seq == r.seq {
				w.stamps = append(w.stamps[:i], w.stamps[i+1:]...)
				return
			}
		}
	})
}

// CheckAndAdmit prunes the user's window and either records an admission or
// rejects with a rate_limited *crawler.Error. Prune, compare and append happen
// under the user's lock.
func (l *Limiter) CheckAndAdmit(userID string) (*Reservation, error) {
	w := l.user(userID)
	seq := l.nextSeq()

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.clock.Now()
	l.prune(w, now)
	limit := l.limitFor(w)
	if len(w.stamps) >= limit {
		wait := w.stamps[0].at.Add(l.window).Sub(now)
		return nil, crawler.NewRateLimitedError(limit, ceilSeconds(wait), l.usage(w))
	}
	w.stamps = append(w.stamps, stamp{at: now, seq: seq})
	return &Reservation{
		Usage:   l.usage(w),
		limiter: l,
		userID:  userID,
		seq:     seq,
	}, nil
}

// Stats reports the user's current window usage. Users never seen get an
// empty window and no state is recorded for them.
func (l *Limiter) Stats(userID string) crawler.RateUsage {
	w, ok := l.lookup(userID)
	if !ok {
		return l.usage(&userWindow{})
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	l.prune(w, l.clock.Now())
	return l.usage(w)
}

// SetUserLimit overrides the limit for one user.
func (l *Limiter) SetUserLimit(userID string, limit int) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	if limit <= 0 {
		return fmt.Errorf("limit must be > 0, got %d", limit)
	}
	w := l.user(userID)
	w.mu.Lock()
	w.limit = limit
	w.mu.Unlock()
	return nil
}

// Reset clears the user's recorded admissions.
func (l *Limiter) Reset(userID string) {
	w, ok := l.lookup(userID)
	if !ok {
		return
	}
	w.mu.Lock()
	w.stamps = nil
	w.mu.Unlock()
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
