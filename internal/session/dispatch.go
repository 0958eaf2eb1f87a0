package session

import (
	"time"

	"github.com/cineto/filmrig/internal/command"
	"github.com/cineto/filmrig/internal/debug"
	"github.com/cineto/filmrig/internal/hw/sensor"
	"github.com/cineto/filmrig/internal/wire"
)

// buildDispatch fills the code → handler table. Each handler decodes its
// own argument; decode failures log and no-op.
func (c *Controller) buildDispatch() {
	c.handlers = map[byte]func(command.Command){
		command.CodeNewImage: func(command.Command) { c.newImage() },

		// Initial settings.
		command.CodeZoom: c.intHandler(c.cam.SetZoom),
		command.CodeRoiX: c.intHandler(c.cam.SetRoiX),
		command.CodeRoiY: c.intHandler(c.cam.SetRoiY),

		command.CodeLightOn:  func(command.Command) { c.motor.LightOn() },
		command.CodeLightOff: func(command.Command) { c.motor.LightOff() },

		command.CodePreviewOn: func(command.Command) {
			c.motor.LightOn()
			c.sendLight(true)
			c.setMode(ModePreviewing)
		},
		command.CodePreviewOff: func(command.Command) {
			c.motor.LightOff()
			c.sendLight(false)
			c.setMode(ModeOff)
		},

		// Transport motion.
		command.CodeMotorFastRev: func(command.Command) { c.motor.MotorRev() },
		command.CodeMotorRevOne:  func(command.Command) { c.motor.RevFrame(1) },
		command.CodeMotorStop:    func(command.Command) { c.motor.MotorStop() },
		command.CodeMotorFwdOne:  func(command.Command) { c.motor.FwdFrame(1) },
		command.CodeMotorFastFwd: func(command.Command) { c.motor.MotorFwd() },

		// Sensor controls.
		command.CodeAnalogueGain: c.floatHandler(c.cam.SetAnalogueGain),
		command.CodeExpComp:      c.floatHandler(c.cam.SetExposureValue),
		command.CodeAwbMode:      c.intHandler(c.cam.SetAwbMode),
		command.CodeGainBlue: c.floatHandler(func(v float64) {
			c.cam.SetColourGain(sensor.Blue, v)
		}),
		command.CodeGainRed: c.floatHandler(func(v float64) {
			c.cam.SetColourGain(sensor.Red, v)
		}),
		command.CodeBrightness: c.floatHandler(c.cam.SetBrightness),
		command.CodeContrast:   c.floatHandler(c.cam.SetContrast),
		command.CodeSaturation: c.floatHandler(c.cam.SetSaturation),

		command.CodeQuit: func(command.Command) { c.Exit() },

		// Capture.
		command.CodeBracketShots: c.intHandler(func(n int) {
			if n < 1 {
				n = 1
			}
			c.bracketShots = n
		}),
		command.CodeBracketStops: c.floatHandler(func(v float64) {
			c.bracketStops = v
		}),
		command.CodeTestPhoto: func(command.Command) { c.testPhoto() },
		command.CodeAutoExpOn: func(command.Command) {
			c.autoExp = true
			c.cam.SetAutoGain(true)
		},
		command.CodeAutoExpOff: func(command.Command) {
			c.autoExp = false
			c.cam.SetAutoGain(false)
		},
		command.CodeFixExposure: c.floatHandler(func(ms float64) {
			// Client sends milliseconds; the sensor wants microseconds.
			c.manExposureUs = int32(ms * 1000)
		}),
		command.CodeFrameAckOn:  func(command.Command) { c.motor.SetUpdateFrame(true) },
		command.CodeFrameAckOff: func(command.Command) { c.motor.SetUpdateFrame(false) },
		command.CodeMotorWake:   func(command.Command) { c.motor.MotorWake() },
		command.CodeMotorSleep:  func(command.Command) { c.motor.MotorSleep() },
		command.CodeFrameRev: func(cmd command.Command) {
			if n, ok := c.intDefaultArg(cmd, 1); ok {
				c.motor.RevFrame(n)
			}
		},
		command.CodeFrameAdv: func(cmd command.Command) {
			if n, ok := c.intDefaultArg(cmd, 1); ok {
				c.motor.FwdFrame(n)
			}
		},
		command.CodeStopCapture: func(command.Command) {
			c.setMode(ModeOff)
			c.motor.LightOff()
			c.sendLight(false)
		},
		command.CodeStartCapture: func(command.Command) { c.startCapture() },

		// Advanced settings.
		command.CodeVFlipOn:  c.flipHandler(c.cam.SetVFlip, true),
		command.CodeVFlipOff: c.flipHandler(c.cam.SetVFlip, false),
		command.CodeHFlipOn:  c.flipHandler(c.cam.SetHFlip, true),
		command.CodeHFlipOff: c.flipHandler(c.cam.SetHFlip, false),

		command.CodeConstraintMode: c.intHandler(c.cam.SetConstraintMode),
		command.CodeExposureMode:   c.intHandler(c.cam.SetExposureMode),
		command.CodeMeteringMode:   c.intHandler(c.cam.SetMeteringMode),
		command.CodeResolution:     c.intHandler(c.cam.SetSize),
		command.CodeSharpness:      c.floatHandler(c.cam.SetSharpness),

		command.CodeSendStopOn: func(command.Command) { c.motor.SetSendStop(true) },
	}
}

// testPhoto takes one capture-quality frame with the light on and the
// advance and stop telemetry muted, then restores the light.
func (c *Controller) testPhoto() {
	c.autoAdvance = false
	c.motor.SetSendStop(false)
	c.motor.LightOn()
	c.sendLight(true)
	c.setMode(ModeCapturing)
	time.Sleep(500 * time.Millisecond)
	c.newImage()
	c.motor.LightOff()
	c.sendLight(false)
}

// startCapture enters capture mode with auto-advance and takes the
// first frame immediately.
func (c *Controller) startCapture() {
	c.motor.SetSendStop(false)
	c.motor.LightOn()
	c.sendLight(true)
	c.setMode(ModeCapturing)
	c.autoAdvance = true
	c.newImage()
}

func (c *Controller) intHandler(apply func(int)) func(command.Command) {
	return func(cmd command.Command) {
		v, err := cmd.Int()
		if err != nil {
			debug.Info("Bad argument for command %c: %v", cmd.Code, err)
			return
		}
		apply(v)
	}
}

func (c *Controller) floatHandler(apply func(float64)) func(command.Command) {
	return func(cmd command.Command) {
		v, err := cmd.Float()
		if err != nil {
			debug.Info("Bad argument for command %c: %v", cmd.Code, err)
			return
		}
		apply(v)
	}
}

func (c *Controller) flipHandler(apply func(bool) error, on bool) func(command.Command) {
	return func(cmd command.Command) {
		if err := apply(on); err != nil {
			debug.Error(err)
		}
	}
}

func (c *Controller) intDefaultArg(cmd command.Command, def int) (int, bool) {
	v, err := cmd.IntDefault(def)
	if err != nil {
		debug.Info("Bad argument for command %c: %v", cmd.Code, err)
		return 0, false
	}
	return v, true
}

// sendLight announces the light state on the image channel.
func (c *Controller) sendLight(on bool) {
	c.lightOn.Store(on)
	flag := wire.FlagLightOff
	if on {
		flag = wire.FlagLightOn
	}
	if err := c.wr.SendFlag(flag); err != nil {
		debug.Error(err)
		c.ioFailed.Store(true)
	}
}
