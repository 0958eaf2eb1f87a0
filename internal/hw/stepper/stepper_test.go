package stepper

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cineto/filmrig/internal/hw/gpio"
)

// recordingDriver records every GPIO call for assertions. Safe for use
// from the motor goroutine.
type recordingDriver struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingDriver) SetupPin(pin int) error {
	r.record(fmt.Sprintf("setup:%d", pin))
	return nil
}

func (r *recordingDriver) WritePin(pin int, level gpio.Level) error {
	r.record(fmt.Sprintf("write:%d:%v", pin, level))
	return nil
}

func (r *recordingDriver) Close() error {
	r.record("close")
	return nil
}

func (r *recordingDriver) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *recordingDriver) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingDriver) count(call string) int {
	n := 0
	for _, c := range r.snapshot() {
		if c == call {
			n++
		}
	}
	return n
}

func testConfig() Config {
	return Config{
		StepPin:       17,
		DirPin:        27,
		EnablePin:     5,
		StepsPerFrame: 4,
		StepDelay:     time.Microsecond,
	}
}

func TestNew_SetsUpPinsAndEnables(t *testing.T) {
	rec := &recordingDriver{}
	New(rec, testConfig())

	calls := rec.snapshot()
	want := []string{"setup:17", "setup:27", "setup:5", "write:5:false"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestMoveFrames_Forward(t *testing.T) {
	rec := &recordingDriver{}
	s := New(rec, testConfig())

	if err := s.MoveFrames(2); err != nil {
		t.Fatalf("MoveFrames: %v", err)
	}

	// DIR set high for forward, then 2 frames * 4 steps * 2 edges.
	if got := rec.count("write:27:true"); got != 1 {
		t.Errorf("DIR high writes = %d, want 1", got)
	}
	if got := rec.count("write:17:true"); got != 8 {
		t.Errorf("STEP rising edges = %d, want 8", got)
	}
	if got := rec.count("write:17:false"); got != 8 {
		t.Errorf("STEP falling edges = %d, want 8", got)
	}
}

func TestMoveFrames_Reverse(t *testing.T) {
	rec := &recordingDriver{}
	s := New(rec, testConfig())

	if err := s.MoveFrames(-1); err != nil {
		t.Fatalf("MoveFrames: %v", err)
	}

	if got := rec.count("write:27:false"); got != 1 {
		t.Errorf("DIR low writes = %d, want 1", got)
	}
	if got := rec.count("write:17:true"); got != 4 {
		t.Errorf("STEP rising edges = %d, want 4", got)
	}
}

func TestMoveFrames_Zero(t *testing.T) {
	rec := &recordingDriver{}
	s := New(rec, testConfig())
	before := len(rec.snapshot())

	if err := s.MoveFrames(0); err != nil {
		t.Fatalf("MoveFrames: %v", err)
	}
	if len(rec.snapshot()) != before {
		t.Error("MoveFrames(0) touched the GPIO")
	}
}

func TestStepOnce_PulsePattern(t *testing.T) {
	rec := &recordingDriver{}
	s := New(rec, testConfig())
	before := len(rec.snapshot())

	if err := s.StepOnce(); err != nil {
		t.Fatalf("StepOnce: %v", err)
	}

	calls := rec.snapshot()[before:]
	want := []string{"write:17:true", "write:17:false"}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("pulse = %v, want %v", calls, want)
	}
}

func TestWakeSleep(t *testing.T) {
	rec := &recordingDriver{}
	s := New(rec, testConfig())

	if err := s.Sleep(); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if got := rec.count("write:5:true"); got != 1 {
		t.Errorf("ENABLE high (disabled) writes = %d, want 1", got)
	}

	if err := s.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	// Once at New, once at Wake.
	if got := rec.count("write:5:false"); got != 2 {
		t.Errorf("ENABLE low (enabled) writes = %d, want 2", got)
	}
}

func TestWakeSleep_NoEnablePin(t *testing.T) {
	rec := &recordingDriver{}
	cfg := testConfig()
	cfg.EnablePin = 0
	s := New(rec, cfg)
	before := len(rec.snapshot())

	if err := s.Sleep(); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if err := s.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	if len(rec.snapshot()) != before {
		t.Error("Wake/Sleep touched the GPIO with no ENABLE pin configured")
	}
}

func TestStepsPerFrame_Default(t *testing.T) {
	cfg := testConfig()
	cfg.StepsPerFrame = 0
	s := New(&recordingDriver{}, cfg)
	if s.StepsPerFrame() != 1 {
		t.Errorf("StepsPerFrame = %d, want 1", s.StepsPerFrame())
	}
}
