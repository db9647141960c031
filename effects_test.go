package examauth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestRunner(maxInFlight int) (*effectRunner, *Metrics) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	return newEffectRunner(EffectsConfig{Timeout: time.Second, MaxInFlight: maxInFlight}, zap.NewNop(), m), m
}

func TestEffectSurvivesCallerCancellation(t *testing.T) {
	r, _ := newTestRunner(4)
	ctx, cancel := context.WithCancel(WithClientIP(context.Background(), "10.0.0.1"))

	var (
		ran  atomic.Bool
		seen atomic.Value
	)
	gate := make(chan struct{})
	r.Submit(ctx, SideEffect{Name: "probe", Run: func(ctx context.Context) error {
		<-gate
		ran.Store(ctx.Err() == nil)
		seen.Store(clientIPFromContext(ctx))
		return nil
	}})
	cancel()
	close(gate)
	r.Close()

	if !ran.Load() {
		t.Fatal("effect must not observe the caller's cancellation")
	}
	if seen.Load() != "10.0.0.1" {
		t.Fatalf("effect must keep context values, got %v", seen.Load())
	}
}

func TestEffectFailureAndPanicAreCounted(t *testing.T) {
	r, m := newTestRunner(4)

	r.Submit(context.Background(), SideEffect{Name: "fails", Run: func(context.Context) error {
		return errors.New("smtp down")
	}})
	r.Submit(context.Background(), SideEffect{Name: "panics", Run: func(context.Context) error {
		panic("boom")
	}})
	r.Close()

	if got := m.Value(MetricBestEffortFailure); got != 2 {
		t.Fatalf("expected 2 failures, got %d", got)
	}
}

func TestEffectDroppedWhenSaturated(t *testing.T) {
	r, m := newTestRunner(1)
	gate := make(chan struct{})

	r.Submit(context.Background(), SideEffect{Name: "slow", Run: func(context.Context) error {
		<-gate
		return nil
	}})
	r.Submit(context.Background(), SideEffect{Name: "dropped", Run: func(context.Context) error {
		t.Error("saturated runner must drop the effect")
		return nil
	}})
	close(gate)
	r.Close()

	if got := m.Value(MetricBestEffortDropped); got != 1 {
		t.Fatalf("expected 1 drop, got %d", got)
	}
}

func TestEffectTimeoutApplies(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	r := newEffectRunner(EffectsConfig{Timeout: 20 * time.Millisecond, MaxInFlight: 1}, zap.NewNop(), m)

	r.Submit(context.Background(), SideEffect{Name: "hangs", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	r.Close()

	if got := m.Value(MetricBestEffortFailure); got != 1 {
		t.Fatalf("expected the timed-out effect to be counted, got %d", got)
	}
}

func TestEffectSubmitAfterCloseIgnored(t *testing.T) {
	r, _ := newTestRunner(1)
	r.Close()

	var ran atomic.Bool
	r.Submit(context.Background(), SideEffect{Name: "late", Run: func(context.Context) error {
		ran.Store(true)
		return nil
	}})
	time.Sleep(10 * time.Millisecond)
	if ran.Load() {
		t.Fatal("effect submitted after close must not run")
	}
}

func TestNotifierFailureDoesNotFailGenerate(t *testing.T) {
	env := newTestEnv(t)
	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(env.rdb).
		WithCredentialStore(env.users).
		WithPasswordVerifier(plainVerifier{}).
		WithNotifier(NotifierFunc(func(context.Context, OTPDelivery) error {
			return errors.New("mail relay rejected")
		})).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	res, err := engine.GenerateOTP(context.Background(), "otro@uni.edu", OTPPurposeLogin)
	if err != nil || !res.Success {
		t.Fatalf("generate must succeed despite delivery failure: %+v %v", res, err)
	}
	engine.effects.Close()
	if got := engine.MetricsSnapshot().Counters[MetricBestEffortFailure]; got != 1 {
		t.Fatalf("expected 1 best-effort failure, got %d", got)
	}
}
