package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := NewService("not a schedule", func(context.Context) error { return nil })
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestJobFiresOnSchedule(t *testing.T) {
	var runs atomic.Int64
	s := NewService("* * * * * *", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	deadline := time.After(3 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job did not fire within 3s on an every-second schedule")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewService("0 0 4 * * *", func(context.Context) error { return nil })
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	s.Stop()
	s.Stop()
}

func TestContextCancelStopsService(t *testing.T) {
	var runs atomic.Int64
	s := NewService("* * * * * *", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	cancel()
	// Give the shutdown goroutine a moment, then confirm no further runs.
	time.Sleep(100 * time.Millisecond)
	before := runs.Load()
	time.Sleep(1200 * time.Millisecond)
	if after := runs.Load(); after > before+1 {
		t.Fatalf("job kept firing after cancel: %d -> %d", before, after)
	}
}
