package session

import "testing"

func TestBracketExposure_ThreeShotSpread(t *testing.T) {
	// Two stops across three shots: half, base, double.
	want := []int{500, 1000, 2000}
	for shot := 1; shot <= 3; shot++ {
		got := BracketExposure(2.0, shot, 3, 1000, 100, 1000000)
		if got != want[shot-1] {
			t.Errorf("shot %d = %d, want %d", shot, got, want[shot-1])
		}
	}
}

func TestBracketExposure_SingleShotUsesBase(t *testing.T) {
	if got := BracketExposure(2.0, 1, 1, 1000, 100, 1000000); got != 1000 {
		t.Errorf("single shot = %d, want base 1000", got)
	}
}

func TestBracketExposure_OneStopTwoShots(t *testing.T) {
	// One stop across two shots: base / sqrt(2) and base * sqrt(2).
	if got := BracketExposure(1.0, 1, 2, 1000, 100, 1000000); got != 707 {
		t.Errorf("shot 1 = %d, want 707", got)
	}
	if got := BracketExposure(1.0, 2, 2, 1000, 100, 1000000); got != 1414 {
		t.Errorf("shot 2 = %d, want 1414", got)
	}
}

func TestBracketExposure_ClampsHigh(t *testing.T) {
	if got := BracketExposure(2.0, 3, 3, 800000, 100, 1000000); got != 1000000 {
		t.Errorf("clamped high = %d, want 1000000", got)
	}
	// The unclamped shots of the same bracket are untouched.
	if got := BracketExposure(2.0, 1, 3, 800000, 100, 1000000); got != 400000 {
		t.Errorf("shot 1 = %d, want 400000", got)
	}
}

func TestBracketExposure_ClampsLow(t *testing.T) {
	if got := BracketExposure(2.0, 1, 3, 150, 100, 1000000); got != 100 {
		t.Errorf("clamped low = %d, want 100", got)
	}
}

func TestBracketExposure_SingleShotClamps(t *testing.T) {
	if got := BracketExposure(1.0, 1, 1, 5000000, 100, 1000000); got != 1000000 {
		t.Errorf("out-of-range base = %d, want clamped 1000000", got)
	}
	if got := BracketExposure(1.0, 1, 1, 10, 100, 1000000); got != 100 {
		t.Errorf("out-of-range base = %d, want clamped 100", got)
	}
}
