// Package reclaimer runs the periodic sweep that returns lapsed holds to
// the pool.  Lazy expiry on every read path keeps the inventory correct on
// its own; the sweep bounds how long an abandoned hold keeps a seat out of
// listings.
package reclaimer

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
)

type expiredReclaimer interface {
	ReclaimExpired(ctx context.Context, limit int) (int, error)
}

// Locker elects one sweeper per period when several instances share a
// store.  TryLock reports whether this instance may sweep now.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
}

type Sweeper struct {
	inventory expiredReclaimer
	interval  time.Duration
	batch     int
	locker    Locker
	logger    *log.Logger
}

type Option func(*Sweeper)

// WithLocker makes the sweeper skip periods another instance has claimed.
func WithLocker(l Locker) Option {
	return func(s *Sweeper) { s.locker = l }
}

func New(inv expiredReclaimer, interval time.Duration, batch int, logger *log.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = log.New("sweeper")
	}
	s := &Sweeper{
		inventory: inv,
		interval:  interval,
		batch:     batch,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start sweeps every interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Infoj(log.JSON{"msg": "sweeper started", "interval": s.interval.String(), "batch": s.batch})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns how many holds it reclaimed.  A Locker
// failure does not stop the pass: a duplicate sweep only loses races.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx)
		switch {
		case err != nil:
			s.logger.Warnj(log.JSON{"msg": "sweep lock unavailable, sweeping anyway", "error": err.Error()})
		case !ok:
			s.logger.Debug("sweep claimed by another instance")
			return 0
		}
	}
	n, err := s.inventory.ReclaimExpired(ctx, s.batch)
	if err != nil {
		s.logger.Errorj(log.JSON{"msg": "sweep failed", "reclaimed": n, "error": err.Error()})
	}
	if n > 0 {
		s.logger.Infoj(log.JSON{"msg": "sweep reclaimed holds", "reclaimed": n})
	}
	return n
}
