package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Purger is the part of [Store] the reaper needs.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Reaper periodically purges expired sessions.
type Reaper struct {
	store    Purger
	interval time.Duration
	logger   *zap.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewReaper returns a stopped Reaper. A nil logger discards output.
func NewReaper(store Purger, interval time.Duration, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		store:    store,
		interval: interval,
		logger:   logger.Named("session-reaper"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the purge loop. It returns immediately; repeated calls are no-ops.
func (r *Reaper) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.loop(ctx)
}

func (r *Reaper) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			_, _ = r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single purge.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	purged, err := r.store.PurgeExpired(ctx)
	if err != nil {
		r.logger.Warn("purge expired sessions failed", zap.Error(err))
		return purged, err
	}
	if purged > 0 {
		r.logger.Info("purged expired sessions", zap.Int("count", purged))
	} else {
		r.logger.Debug("no expired sessions to purge")
	}
	return purged, nil
}

// Stop ends the loop and waits for it to exit. Stop is idempotent and is safe
// to call when Start was never called.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	if !r.started.Load() {
		return
	}
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
	}
}
