package ingest

import (
	"testing"
	"time"
)

func TestThrottleGate_DisabledAdmitsAll(t *testing.T) {
	g := NewThrottleGate(false, 1000)
	now := time.Now()
	for i := 0; i < 5; i++ {
		if !g.Admit("trade", now) {
			t.Fatalf("expected admit when disabled")
		}
	}
}

func TestThrottleGate_EnabledRespectsGap(t *testing.T) {
	g := NewThrottleGate(true, 100)
	base := time.Now()

	if !g.Admit("trade", base) {
		t.Fatal("first admit should succeed")
	}
	if g.Admit("trade", base.Add(50*time.Millisecond)) {
		t.Fatal("admit within throttle window should be rejected")
	}
	if !g.Admit("trade", base.Add(150*time.Millisecond)) {
		t.Fatal("admit after throttle window should succeed")
	}
}

func TestThrottleGate_SeparateGatesPerKind(t *testing.T) {
	g := NewThrottleGate(true, 1000)
	base := time.Now()

	if !g.Admit("trade", base) {
		t.Fatal("trade should admit")
	}
	if !g.Admit("quote", base) {
		t.Fatal("quote gate must be independent of trade gate")
	}
}
