package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestIntervalRunnerInvokesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	r := NewInterval(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, func(context.Context, time.Time) error {
			if calls.Add(1) >= 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
	if calls.Load() < 3 {
		t.Fatalf("job ran %d times, want >= 3", calls.Load())
	}
}

func TestIntervalRunnerContinuesAfterJobError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	r := NewInterval(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, func(context.Context, time.Time) error {
			if calls.Add(1) >= 2 {
				cancel()
				return nil
			}
			return errors.New("cycle boom")
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner stopped on job error instead of continuing")
	}
	if calls.Load() < 2 {
		t.Fatalf("job ran %d times, want >= 2", calls.Load())
	}
}

func TestNewIntervalRejectsNonPositiveInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero interval")
		}
	}()
	NewInterval(Options{}, zerolog.Nop())
}
