package realtime

import (
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 30 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{200, 30 * time.Second},
		{-1, time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_jitterBoundedAndNonDecreasing(t *testing.T) {
	for _, r := range []float64{0, 0.5, 0.999999} {
		r := r
		b := Backoff{Initial: time.Second, Max: 30 * time.Second, Jitter: 1, rand: func() float64 { return r }}
		prev := time.Duration(0)
		for attempt := 0; attempt < 12; attempt++ {
			d := b.Delay(attempt)
			if d < prev {
				t.Fatalf("r=%v: Delay(%d) = %v < previous %v", r, attempt, d, prev)
			}
			if d > b.Max {
				t.Fatalf("r=%v: Delay(%d) = %v exceeds cap", r, attempt, d)
			}
			prev = d
		}
	}
}

func TestBackoff_jitterAddsUpToFraction(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: time.Minute, Jitter: 0.2, rand: func() float64 { return 0.5 }}
	if got, want := b.Delay(1), 2*time.Second+200*time.Millisecond; got != want {
		t.Errorf("Delay(1) = %v, want %v", got, want)
	}
}

func TestBackoff_zeroValueUsesDefaults(t *testing.T) {
	var b Backoff
	if got := b.Delay(0); got != DefaultBackoff.Initial {
		t.Errorf("Delay(0) = %v", got)
	}
}
