package examauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SideEffect is work whose failure must not change the outcome of the
// operation that scheduled it, such as OTP delivery or last-login updates.
type SideEffect struct {
	Name string
	Run  func(ctx context.Context) error
}

// effectRunner executes side effects on background goroutines. Failures are
// logged and counted, never returned.
type effectRunner struct {
	timeout time.Duration
	slots   chan struct{}
	logger  *zap.Logger
	metrics *Metrics

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newEffectRunner(cfg EffectsConfig, logger *zap.Logger, metrics *Metrics) *effectRunner {
	return &effectRunner{
		timeout: cfg.Timeout,
		slots:   make(chan struct{}, cfg.MaxInFlight),
		logger:  logger,
		metrics: metrics,
	}
}

// Submit schedules effect. The effect keeps the values of ctx but not its
// cancellation, so it survives the request that scheduled it. When every
// slot is busy the effect is dropped.
func (r *effectRunner) Submit(ctx context.Context, effect SideEffect) {
	if r == nil {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	select {
	case r.slots <- struct{}{}:
	default:
		r.mu.Unlock()
		r.metrics.Inc(MetricBestEffortDropped)
		r.logger.Warn("side effect dropped", zap.String("effect", effect.Name))
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer func() {
			<-r.slots
			r.wg.Done()
		}()

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		if err := r.run(runCtx, effect); err != nil {
			r.metrics.Inc(MetricBestEffortFailure)
			r.logger.Warn("side effect failed", zap.String("effect", effect.Name), zap.Error(err))
		}
	}()
}

func (r *effectRunner) run(ctx context.Context, effect SideEffect) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()
	return effect.Run(ctx)
}

// Close stops accepting effects and waits for running ones.
func (r *effectRunner) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("side effect panicked: %v", e.value)
}
