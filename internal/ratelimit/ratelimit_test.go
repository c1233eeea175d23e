package ratelimit

import (
	"testing"
	"time"
)

func fixedClock(start time.Time) (func() time.Time, func(d time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestBlockCapIndependent(t *testing.T) {
	l := New(time.Second, 20, 10)
	clock, _ := fixedClock(time.Unix(1700000000, 0))
	l.now = clock

	// 11 block mutations inside one second: at least one rejection.
	rejected := 0
	for i := 0; i < 11; i++ {
		if !l.Allow("origin-1", ScopeBlock) {
			rejected++
		}
	}
	if rejected == 0 {
		t.Fatalf("11 block requests in one window all admitted")
	}

	// General requests still pass until their own cap is hit.
	if !l.Allow("origin-1", ScopeGeneral) {
		t.Fatalf("general request rejected below general cap")
	}
}

func TestGeneralCap(t *testing.T) {
	l := New(time.Second, 20, 10)
	clock, _ := fixedClock(time.Unix(1700000000, 0))
	l.now = clock

	for i := 0; i < 20; i++ {
		if !l.Allow("o", ScopeGeneral) {
			t.Fatalf("request %d rejected below cap", i)
		}
	}
	if l.Allow("o", ScopeGeneral) {
		t.Fatalf("21st request admitted")
	}
}

func TestWindowSlides(t *testing.T) {
	l := New(time.Second, 2, 1)
	clock, advance := fixedClock(time.Unix(1700000000, 0))
	l.now = clock

	if !l.Allow("o", ScopeBlock) {
		t.Fatalf("first block request rejected")
	}
	if l.Allow("o", ScopeBlock) {
		t.Fatalf("second block request admitted inside window")
	}
	advance(1100 * time.Millisecond)
	if !l.Allow("o", ScopeBlock) {
		t.Fatalf("block request rejected after window expired")
	}
}

func TestOriginsIsolated(t *testing.T) {
	l := New(time.Second, 1, 1)
	clock, _ := fixedClock(time.Unix(1700000000, 0))
	l.now = clock

	if !l.Allow("a", ScopeGeneral) {
		t.Fatalf("origin a rejected")
	}
	if !l.Allow("b", ScopeGeneral) {
		t.Fatalf("origin b throttled by origin a's traffic")
	}
	if l.Allow("a", ScopeGeneral) {
		t.Fatalf("origin a admitted over cap")
	}
}

func TestForget(t *testing.T) {
	l := New(time.Second, 1, 1)
	clock, _ := fixedClock(time.Unix(1700000000, 0))
	l.now = clock

	l.Allow("gone", ScopeGeneral)
	if l.Allow("gone", ScopeGeneral) {
		t.Fatalf("admitted over cap")
	}
	l.Forget("gone")
	if !l.Allow("gone", ScopeGeneral) {
		t.Fatalf("rejected after Forget")
	}
}
