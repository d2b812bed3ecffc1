package browserpool

import (
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/snapgate/snapgate/pkg/domain"
)

// PooledSession is one browser session plus the metadata the pool's
// eviction predicates read. Timestamps come from the pool clock so
// created_at <= last_used_at always holds.
type PooledSession struct {
	ID          string
	Driver      Driver
	CreatedAt   time.Time
	LastUsedAt  time.Time
	Window      domain.WindowSize
	OwnerUserID string
	UsageCount  int

	// unhealthy is latched from the owning goroutine or the
	// maintenance probe, so it is atomic rather than pool-lock guarded.
	unhealthy atomic.Bool
}

func newPooledSession(driver Driver, window domain.WindowSize, now time.Time) *PooledSession {
	return &PooledSession{
		ID:         xid.New().String(),
		Driver:     driver,
		CreatedAt:  now,
		LastUsedAt: now,
		Window:     window,
	}
}

// MarkUnhealthy latches the session unhealthy. There is no way back;
// the pool destroys it on release or maintenance.
func (s *PooledSession) MarkUnhealthy() {
	s.unhealthy.Store(true)
}

func (s *PooledSession) Healthy() bool {
	return !s.unhealthy.Load()
}

// Touch records a checkout.
func (s *PooledSession) Touch(now time.Time) {
	s.LastUsedAt = now
	s.UsageCount++
}

// Valid evaluates the eviction predicates in deterministic order:
// age, then usage, then idle, then the health latch.
func (s *PooledSession) Valid(now time.Time, cfg Config) bool {
	if now.Sub(s.CreatedAt) > cfg.MaxAge {
		return false
	}
	if s.UsageCount >= cfg.MaxUseCount {
		return false
	}
	if now.Sub(s.LastUsedAt) > cfg.IdleTimeout {
		return false
	}
	return s.Healthy()
}
