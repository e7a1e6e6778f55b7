package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

type drainFunc func(ctx context.Context) error

func (f drainFunc) Drain(ctx context.Context) error { return f(ctx) }

func TestRunDrainsOnCancel(t *testing.T) {
	BannerOutput = nil
	drained := false
	stopped := false
	r := NewLifecycleRunner(drainFunc(func(context.Context) error {
		drained = true
		return nil
	}), Hooks{OnStop: func() { stopped = true }}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !drained || !stopped || r.State() != StateStopped {
		t.Fatalf("expected drain and stop, state=%s", r.State())
	}
}

func TestDrainTimeout(t *testing.T) {
	BannerOutput = nil
	r := NewLifecycleRunner(drainFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), Hooks{}, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err == nil || err.Error() != "drain timeout" {
		t.Fatalf("expected drain timeout, got %v", err)
	}
}

func TestStartHookErrorAborts(t *testing.T) {
	BannerOutput = nil
	r := NewLifecycleRunner(nil, Hooks{OnStart: func() error { return errors.New("listen failed") }}, time.Second)
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
}
