// Package session is the top-level orchestrator: it dispatches client
// commands, drives the sensor and the transport, runs the exposure
// machinery and owns the shutdown sequence. Exactly one client session
// exists per process run; all state is in-memory.
package session

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cineto/filmrig/internal/command"
	"github.com/cineto/filmrig/internal/config"
	"github.com/cineto/filmrig/internal/debug"
	"github.com/cineto/filmrig/internal/hw/sensor"
	"github.com/cineto/filmrig/internal/metrics"
	"github.com/cineto/filmrig/internal/motor"
	"github.com/cineto/filmrig/internal/stream"
	"github.com/cineto/filmrig/internal/wire"
)

// Mode is the session capture mode.
type Mode int32

const (
	ModeOff Mode = iota
	ModePreviewing
	ModeCapturing
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModePreviewing:
		return "previewing"
	case ModeCapturing:
		return "capturing"
	}
	return "unknown"
}

// Deps are the collaborators the controller orchestrates. Conns are the
// two client connections, closed during shutdown; Listeners are the
// listening sockets, closed last after a grace delay.
type Deps struct {
	Config    *config.Config
	Sensor    sensor.Sensor
	Writer    *wire.Writer
	Pool      *stream.Pool
	Motor     *motor.Coordinator
	Reader    *command.Reader
	Conns     []io.Closer
	Listeners []io.Closer

	// GraceDelay before closing the listeners, giving the client time to
	// close its side. Defaults to 2s.
	GraceDelay time.Duration

	// BusyPoll is the interval for rechecking the transport busy flag
	// before exposing. Defaults to 100ms.
	BusyPoll time.Duration
}

// Controller holds the session state and the dispatch table. All command
// processing is strictly serialized on the Run goroutine; the atomics
// exist only so the web status server can read a consistent snapshot.
type Controller struct {
	cfg    *config.Config
	cam    sensor.Sensor
	wr     *wire.Writer
	pool   *stream.Pool
	motor  *motor.Coordinator
	reader *command.Reader

	conns      []io.Closer
	listeners  []io.Closer
	graceDelay time.Duration
	busyPoll   time.Duration

	mode       atomic.Int32
	frameCount atomic.Int64
	lightOn    atomic.Bool
	exposure   atomic.Int32 // current working capture exposure (µs)

	autoAdvance   bool
	autoExp       bool
	manExposureUs int32
	aeBaseUs      int32
	bracketShots  int
	bracketStops  float64

	handlers map[byte]func(command.Command)

	exitFlag atomic.Bool
	ioFailed atomic.Bool
	exitOnce sync.Once
}

// New creates the session controller with its startup defaults: manual
// exposure 10ms, autoexposure seed from config, single-shot brackets.
func New(d Deps) *Controller {
	c := &Controller{
		cfg:           d.Config,
		cam:           d.Sensor,
		wr:            d.Writer,
		pool:          d.Pool,
		motor:         d.Motor,
		reader:        d.Reader,
		conns:         d.Conns,
		listeners:     d.Listeners,
		graceDelay:    d.GraceDelay,
		busyPoll:      d.BusyPoll,
		manExposureUs: 10000,
		aeBaseUs:      int32(d.Config.Exposure.BaseUs),
		bracketShots:  1,
		bracketStops:  1,
	}
	if c.graceDelay <= 0 {
		c.graceDelay = 2 * time.Second
	}
	if c.busyPoll <= 0 {
		c.busyPoll = 100 * time.Millisecond
	}
	c.buildDispatch()

	if c.pool != nil {
		c.pool.SetErrorHandler(func(err error) {
			// Worker goroutine; just flag it, the Run loop shuts down.
			c.ioFailed.Store(true)
		})
	}
	return c
}

// Mode returns the current capture mode.
func (c *Controller) Mode() Mode {
	return Mode(c.mode.Load())
}

func (c *Controller) setMode(m Mode) {
	c.mode.Store(int32(m))
}

// FrameCount returns the number of capture requests served.
func (c *Controller) FrameCount() int {
	return int(c.frameCount.Load())
}

// LightOn reports the last light state announced to the client.
func (c *Controller) LightOn() bool {
	return c.lightOn.Load()
}

// ExposureUs returns the current working capture exposure.
func (c *Controller) ExposureUs() int32 {
	return c.exposure.Load()
}

// Run is the session main loop: pop one command at a time, dispatch it,
// recheck the exit flag on timeouts. A dead control channel or a failed
// image channel aborts the session.
func (c *Controller) Run() {
	for !c.exitFlag.Load() {
		if c.ioFailed.Load() {
			debug.Info("Image channel failure, shutting down")
			c.Abort()
			return
		}
		line, ok := c.reader.ReadLine(time.Second)
		if ok {
			c.Dispatch(line)
			continue
		}
		if c.reader.Closed() {
			debug.Info("Control channel closed, shutting down")
			c.Abort()
			return
		}
	}
}

// Dispatch executes one control line. Unknown codes and malformed
// arguments are logged and ignored, never fatal.
func (c *Controller) Dispatch(line string) {
	cmd, ok := command.Parse(line)
	if !ok {
		debug.Info("Empty command string")
		return
	}
	debug.Command(cmd.Code, cmd.Arg)

	h, known := c.handlers[cmd.Code]
	if !known {
		debug.Info("Unknown command code %c, ignoring", cmd.Code)
		metrics.UnknownCommands.Inc()
		return
	}
	metrics.CommandsProcessed.WithLabelValues(string(cmd.Code)).Inc()
	h(cmd)
}

// Abort notifies the client of an abnormal exit ('X') and shuts down.
func (c *Controller) Abort() {
	if err := c.wr.SendFlag(wire.FlagAbort); err != nil {
		debug.Error(err)
	}
	c.Exit()
}

// Exit runs the full shutdown sequence in fixed order: notify client,
// stop motor and lighting, join the transport driver, terminate the
// transmit workers with a bounded join, stop the sensor, close both
// channels, pause for the client, close the listeners. Idempotent.
func (c *Controller) Exit() {
	c.exitOnce.Do(func() {
		if err := c.wr.SendFlag(wire.FlagTerminate); err != nil {
			debug.Error(err)
		}

		// Stop the transport, turn off the light, release the motor.
		c.motor.Cleanup()

		debug.Info("Coming out...")
		c.exitFlag.Store(true)

		// The driver drains pending orders (cleanup included) and must
		// complete; no timeout here.
		c.motor.Stop()

		// Transmit workers get a bounded join each and are abandoned,
		// not killed, when it expires.
		c.pool.Shutdown(500 * time.Millisecond)

		c.setMode(ModeOff)
		if err := c.cam.Stop(); err != nil {
			debug.Error(err)
		}

		// Release the command reader in case it is blocked handing over
		// a line nobody will consume.
		if c.reader != nil {
			c.reader.Close()
		}

		for _, cn := range c.conns {
			if cn != nil {
				if err := cn.Close(); err != nil {
					debug.Error(err)
				}
			}
		}

		// Time for the client to close its side of the connections.
		time.Sleep(c.graceDelay)

		for _, l := range c.listeners {
			if l != nil {
				if err := l.Close(); err != nil {
					debug.Error(err)
				}
			}
		}

		debug.Info("Released client connections")
		debug.Info("All connections closed")
		debug.Info("Finalized")
	})
}
