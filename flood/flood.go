// Package flood implements per-(chat,user) sliding-window message rate
// tracking. Windows are partitioned by key with independent locks; unrelated
// chats never contend.
package flood

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Window span for rate decisions.
const Span = 60 * time.Second

type window struct {
	mu     sync.Mutex
	stamps []time.Time
}

// Limiter tracks recent message timestamps per (chat, user).
type Limiter struct {
	windows *xsync.MapOf[string, *window]
	span    time.Duration
	logger  *slog.Logger
}

func NewLimiter(logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		windows: xsync.NewMapOf[string, *window](),
		span:    Span,
		logger:  logger,
	}
}

func key(chatID, userID string) string {
	return chatID + "/" + userID
}

// Observe records a message at `now` and reports whether it crosses the rate
// threshold: true when `limit` or more messages were already inside the
// window before this one. The timestamp is appended regardless of the
// outcome, so a sustained rate above limit/minute keeps violating rather
// than only the initial burst.
//
// A limit of zero or below means maximal protection: every message after the
// first within the window violates.
func (l *Limiter) Observe(chatID, userID string, limit int, now time.Time) bool {
	if limit <= 0 {
		limit = 1
	}
	w, _ := l.windows.LoadOrCompute(key(chatID, userID), func() *window {
		return &window{}
	})

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-l.span)
	kept := w.stamps[:0]
	for _, t := range w.stamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	within := len(kept)
	w.stamps = append(kept, now)

	return within >= limit
}

// Sweep drops windows whose newest entry has aged out, bounding memory from
// chats that went quiet. Returns the number of windows removed.
func (l *Limiter) Sweep(now time.Time) int {
	cutoff := now.Add(-l.span)
	removed := 0
	l.windows.Range(func(k string, w *window) bool {
		w.mu.Lock()
		stale := len(w.stamps) == 0 || !w.stamps[len(w.stamps)-1].After(cutoff)
		w.mu.Unlock()
		if stale {
			l.windows.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// Run sweeps idle windows on a fixed interval until the context is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(time.Now()); n > 0 {
				l.logger.Debug("swept idle flood windows", "count", n)
			}
		}
	}
}

// Size reports the number of live windows.
func (l *Limiter) Size() int {
	return l.windows.Size()
}
