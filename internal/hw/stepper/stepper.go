package stepper

import (
	"time"

	"github.com/cineto/filmrig/internal/debug"
	"github.com/cineto/filmrig/internal/hw/gpio"
)

// Config holds the hardware configuration for the transport motor.
type Config struct {
	StepPin       int
	DirPin        int
	EnablePin     int // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	StepsPerFrame int // full steps to advance the film by exactly one frame
	StepDelay     time.Duration // delay per half-cycle of STEP pulse. Total step = 2*StepDelay.
}

// Stepper drives the film transport motor. It provides frame-sized moves
// for precise positioning and single-step pulses for continuous winding,
// where the caller decides when to stop.
type Stepper struct {
	gpio  gpio.Driver
	cfg   Config
	delay time.Duration // delay between STEP pulse half-cycles
}

// New creates a transport motor controller.
// cfg.StepDelay: if 0, defaults to 1ms. For A4988, use half the desired step period.
func New(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin)
	_ = g.SetupPin(cfg.DirPin)

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}
	if cfg.StepsPerFrame <= 0 {
		cfg.StepsPerFrame = 1
	}

	s := &Stepper{
		gpio:  g,
		cfg:   cfg,
		delay: delay,
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin)
		_ = g.WritePin(cfg.EnablePin, gpio.Low) // enable by default
	}

	return s
}

// StepsPerFrame returns the configured steps for one film frame.
func (s *Stepper) StepsPerFrame() int {
	return s.cfg.StepsPerFrame
}

// SetDirection sets the DIR line. Forward winds the film toward take-up.
func (s *Stepper) SetDirection(forward bool) error {
	level := gpio.Low
	if forward {
		level = gpio.High
	}
	return s.gpio.WritePin(s.cfg.DirPin, level)
}

// StepOnce emits a single STEP pulse. Used by continuous wind loops that
// check for a stop order between pulses.
func (s *Stepper) StepOnce() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// MoveFrames advances the film by a number of frames (negative = reverse).
func (s *Stepper) MoveFrames(frames int) error {
	if frames == 0 {
		return nil
	}

	forward := frames > 0
	if !forward {
		frames = -frames
	}

	direction := "reverse"
	if forward {
		direction = "forward"
	}
	debug.Verbose("Stepper: moving %d frames (%s) on pin %d", frames, direction, s.cfg.StepPin)

	if err := s.SetDirection(forward); err != nil {
		return err
	}

	steps := frames * s.cfg.StepsPerFrame
	for i := 0; i < steps; i++ {
		if err := s.StepOnce(); err != nil {
			return err
		}
	}
	return nil
}

// Wake turns on the motor driver (A4988 ENABLE=LOW). The motor holds position.
func (s *Stepper) Wake() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Sleep turns off the motor driver (A4988 ENABLE=HIGH). The motor freewheels,
// no holding torque and no coil heat while the rig idles or exposes.
func (s *Stepper) Sleep() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
