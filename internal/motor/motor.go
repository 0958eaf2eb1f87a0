// Package motor bridges the session to the film transport and the
// illumination source. The session enqueues orders and never waits for
// their completion; the driver goroutine owns the stepper and the lamp
// line, keeps the busy flag while the film moves, and emits transport
// telemetry through the shared connection writer.
package motor

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cineto/filmrig/internal/debug"
	"github.com/cineto/filmrig/internal/hw/gpio"
	"github.com/cineto/filmrig/internal/hw/stepper"
	"github.com/cineto/filmrig/internal/metrics"
	"github.com/cineto/filmrig/internal/wire"
)

type orderKind int

const (
	orderFwdFrames orderKind = iota
	orderRevFrames
	orderRunFwd
	orderRunRev
	orderStop
	orderWake
	orderSleep
	orderLightOn
	orderLightOff
	orderCleanup
)

func (k orderKind) String() string {
	switch k {
	case orderFwdFrames:
		return "fwd_frames"
	case orderRevFrames:
		return "rev_frames"
	case orderRunFwd:
		return "run_fwd"
	case orderRunRev:
		return "run_rev"
	case orderStop:
		return "stop"
	case orderWake:
		return "wake"
	case orderSleep:
		return "sleep"
	case orderLightOn:
		return "light_on"
	case orderLightOff:
		return "light_off"
	case orderCleanup:
		return "cleanup"
	}
	return "unknown"
}

type order struct {
	kind   orderKind
	frames int
}

// Coordinator owns the transport order queue and the flags shared with
// the session: busy (no exposure while the film moves), advance
// acknowledgements on/off, stop notices on/off.
type Coordinator struct {
	orders chan order

	busy        atomic.Bool
	updateFrame atomic.Bool // emit 'F' advance acknowledgements
	sendStop    atomic.Bool // emit 'M' stop notices

	motor    *stepper.Stepper
	gpio     gpio.Driver
	lightPin int
	wr       *wire.Writer

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New starts the transport driver goroutine.
func New(m *stepper.Stepper, g gpio.Driver, lightPin int, wr *wire.Writer) *Coordinator {
	c := &Coordinator{
		orders:   make(chan order, 32),
		motor:    m,
		gpio:     g,
		lightPin: lightPin,
		wr:       wr,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.sendStop.Store(true)
	if lightPin > 0 {
		_ = g.SetupPin(lightPin)
	}
	go c.drive()
	return c
}

// Busy reports whether the film is currently moving. The capture path
// waits for this to clear before exposing, to avoid motion blur and
// vibration.
func (c *Coordinator) Busy() bool {
	return c.busy.Load()
}

// SetUpdateFrame toggles 'F' advance acknowledgements to the client.
func (c *Coordinator) SetUpdateFrame(on bool) {
	c.updateFrame.Store(on)
}

// SetSendStop toggles 'M' stop notices to the client.
func (c *Coordinator) SetSendStop(on bool) {
	c.sendStop.Store(on)
}

func (c *Coordinator) enqueue(o order) {
	debug.Motor(o.kind.String(), o.frames)
	metrics.MotorOrders.WithLabelValues(o.kind.String()).Inc()
	select {
	case c.orders <- o:
	case <-c.quit:
		// Driver already told to exit; drop the order.
	}
}

// FwdFrame advances the film n frames.
func (c *Coordinator) FwdFrame(n int) { c.enqueue(order{kind: orderFwdFrames, frames: n}) }

// RevFrame rewinds the film n frames.
func (c *Coordinator) RevFrame(n int) { c.enqueue(order{kind: orderRevFrames, frames: n}) }

// MotorFwd starts a continuous forward wind, until MotorStop.
func (c *Coordinator) MotorFwd() { c.enqueue(order{kind: orderRunFwd}) }

// MotorRev starts a continuous rewind, until MotorStop.
func (c *Coordinator) MotorRev() { c.enqueue(order{kind: orderRunRev}) }

// MotorStop ends a continuous wind.
func (c *Coordinator) MotorStop() { c.enqueue(order{kind: orderStop}) }

// MotorWake energizes the motor driver.
func (c *Coordinator) MotorWake() { c.enqueue(order{kind: orderWake}) }

// MotorSleep de-energizes the motor driver.
func (c *Coordinator) MotorSleep() { c.enqueue(order{kind: orderSleep}) }

// LightOn turns the illumination source on.
func (c *Coordinator) LightOn() { c.enqueue(order{kind: orderLightOn}) }

// LightOff turns the illumination source off.
func (c *Coordinator) LightOff() { c.enqueue(order{kind: orderLightOff}) }

// Cleanup stops motion, turns the light off and releases the motor.
// Queued behind pending orders so it always runs last.
func (c *Coordinator) Cleanup() { c.enqueue(order{kind: orderCleanup}) }

// Stop tells the driver goroutine to exit and joins it. The driver
// must complete; there is no timeout. Safe to call twice.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
	})
	<-c.done
}

// drive is the transport driver loop. Stepper timing runs on a locked
// OS thread so scheduler pauses in the capture workload cannot stretch
// a step pulse.
func (c *Coordinator) drive() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.done)

	debug.Info("Transport driver running")

	for {
		select {
		case o := <-c.orders:
			c.execute(o)
		case <-c.quit:
			// Drain pending orders (a cleanup is usually queued) before
			// exiting, so the light and motor always end released.
			for {
				select {
				case o := <-c.orders:
					c.execute(o)
				default:
					debug.Info("Transport driver exiting")
					return
				}
			}
		}
	}
}

func (c *Coordinator) execute(o order) {
	switch o.kind {
	case orderFwdFrames:
		c.moveFrames(o.frames)
	case orderRevFrames:
		c.moveFrames(-o.frames)
	case orderRunFwd:
		c.run(true)
	case orderRunRev:
		c.run(false)
	case orderStop:
		// Not moving; a run would have consumed this order itself.
		c.notifyStopped()
	case orderWake:
		if err := c.motor.Wake(); err != nil {
			debug.Error(err)
		}
	case orderSleep:
		if err := c.motor.Sleep(); err != nil {
			debug.Error(err)
		}
	case orderLightOn:
		c.setLight(gpio.High)
	case orderLightOff:
		c.setLight(gpio.Low)
	case orderCleanup:
		c.setLight(gpio.Low)
		if err := c.motor.Sleep(); err != nil {
			debug.Error(err)
		}
	}
}

// moveFrames moves the film a bounded number of frames with the busy
// flag held, then acknowledges the move when acks are enabled.
func (c *Coordinator) moveFrames(frames int) {
	if frames == 0 {
		return
	}
	c.busy.Store(true)
	err := c.motor.MoveFrames(frames)
	c.busy.Store(false)
	if err != nil {
		debug.Error(err)
		return
	}
	if c.updateFrame.Load() {
		if err := c.wr.SendAdvance(int32(frames)); err != nil {
			debug.Error(err)
		}
	}
}

// run winds the film continuously until a stop order (or shutdown)
// arrives. Other orders also end the run and are then executed.
func (c *Coordinator) run(forward bool) {
	if err := c.motor.SetDirection(forward); err != nil {
		debug.Error(err)
		return
	}
	c.busy.Store(true)

	for {
		select {
		case o := <-c.orders:
			c.busy.Store(false)
			if o.kind == orderStop {
				c.notifyStopped()
			} else {
				c.execute(o)
			}
			return
		case <-c.quit:
			c.busy.Store(false)
			return
		default:
			if err := c.motor.StepOnce(); err != nil {
				debug.Error(err)
				c.busy.Store(false)
				return
			}
		}
	}
}

func (c *Coordinator) notifyStopped() {
	if !c.sendStop.Load() {
		return
	}
	if err := c.wr.SendFlag(wire.FlagStopped); err != nil {
		debug.Error(err)
	}
}

func (c *Coordinator) setLight(level gpio.Level) {
	if c.lightPin <= 0 {
		return
	}
	if err := c.gpio.WritePin(c.lightPin, level); err != nil {
		debug.Error(err)
	}
}
