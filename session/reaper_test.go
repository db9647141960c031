package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context) (int, error) {
	p.calls.Add(1)
	return 2, p.err
}

func TestReaperRunOnceLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	purger := &countingPurger{}
	r := NewReaper(purger, time.Minute, zap.New(core))

	n, err := r.RunOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("run once = %d, %v", n, err)
	}
	if logs.FilterMessage("purged expired sessions").Len() != 1 {
		t.Fatalf("expected purge log entry, got %v", logs.All())
	}

	purger.err = errors.New("db down")
	if _, err := r.RunOnce(context.Background()); err == nil {
		t.Fatal("expected purge error")
	}
	if logs.FilterMessage("purge expired sessions failed").Len() != 1 {
		t.Fatal("expected failure log entry")
	}
}

func TestReaperLoopStops(t *testing.T) {
	purger := &countingPurger{}
	r := NewReaper(purger, 5*time.Millisecond, nil)
	r.Start(context.Background())
	r.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for purger.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()
	r.Stop()

	if purger.calls.Load() < 2 {
		t.Fatalf("expected at least 2 purge calls, got %d", purger.calls.Load())
	}
	after := purger.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if purger.calls.Load() != after {
		t.Fatal("reaper kept running after Stop")
	}
}

func TestReaperStopWithoutStart(t *testing.T) {
	r := NewReaper(&countingPurger{}, time.Minute, nil)
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without Start")
	}
}
