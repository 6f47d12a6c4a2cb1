package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExponentialBackoffDoublesUpToMax(t *testing.T) {
	b := NewExponentialBackoffWith(time.Second, 5*time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.NextDelay(); got != w {
			t.Fatalf("delay[%d] = %v; want %v", i, got, w)
		}
	}

	b.Reset()
	if got := b.NextDelay(); got != time.Second {
		t.Fatalf("after Reset delay = %v; want %v", got, time.Second)
	}
}

func TestFixedDelay(t *testing.T) {
	d := NewFixedDelay(10 * time.Second)
	for i := 0; i < 3; i++ {
		if got := d.NextDelay(); got != 10*time.Second {
			t.Fatalf("NextDelay() = %v; want 10s", got)
		}
	}
}

func TestSystemClockSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SystemClock().Sleep(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep() error = %v; want context.Canceled", err)
	}
}

func TestSystemClockSleepElapses(t *testing.T) {
	start := time.Now()
	if err := SystemClock().Sleep(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatal("Sleep returned early")
	}
}

func TestManualClockRecordsSleeps(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	var hooked int
	c.OnSleep = func(n int, d time.Duration) { hooked = n }

	_ = c.Sleep(context.Background(), time.Second)
	_ = c.Sleep(context.Background(), 2*time.Second)

	if got, want := c.Now(), start.Add(3*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v; want %v", got, want)
	}
	if got := c.Sleeps(); len(got) != 2 || got[1] != 2*time.Second {
		t.Fatalf("Sleeps() = %v", got)
	}
	if hooked != 2 {
		t.Fatalf("hook saw %d sleeps; want 2", hooked)
	}
}
