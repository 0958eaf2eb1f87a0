package session

import (
	"time"

	"github.com/cineto/filmrig/internal/debug"
	"github.com/cineto/filmrig/internal/wire"
)

// newImage serves one capture request from the client. The path depends
// on the session mode; in Off mode the request is a no-op end to end.
func (c *Controller) newImage() {
	switch c.Mode() {
	case ModePreviewing:
		c.previewImage()
	case ModeCapturing:
		c.captureImage()
	case ModeOff:
		return
	}

	n := c.frameCount.Add(1)
	debug.Info("Sent image %d", n)
}

// previewImage takes one preview frame at the manual exposure. With
// autoexposure enabled the sensor varies its analogue gain around this
// exposure, and the resulting exposure data is reported to the client.
func (c *Controller) previewImage() {
	c.cam.SetExposureTime(c.manExposureUs)
	c.exposure.Store(c.manExposureUs)

	c.takeAndQueue(wire.FlagPreview)

	if c.autoExp {
		c.sendExposure(wire.FlagExposure)
	}

	debug.Info("Taken preview image. %s", c.exposureInfo())
}

// captureImage runs the full capture path: resolve the exposure (manual
// or converged), wait out transport motion, then take the bracket.
func (c *Controller) captureImage() {
	var exposureUs int32
	if c.autoExp {
		exposureUs = c.converge()
		c.sendExposure(wire.FlagExposure)
	} else {
		exposureUs = c.manExposureUs
	}
	c.exposure.Store(exposureUs)
	c.cam.SetExposureTime(exposureUs)

	// No exposure while the film is still moving; vibration and motion
	// blur would ruin the frame.
	for c.motor.Busy() {
		time.Sleep(c.busyPoll)
	}

	for shot := 1; shot <= c.bracketShots; shot++ {
		bracketExposure := BracketExposure(c.bracketStops, shot, c.bracketShots,
			int(exposureUs), c.cfg.Exposure.MinUs, c.cfg.Exposure.MaxUs)

		c.cam.SetExposureTime(int32(bracketExposure))

		// The pipeline reports the new exposure only after a few frames;
		// poll metadata up to the retry bound, then accept best-effort.
		for i := 0; i < c.cfg.Exposure.SettleRetries; i++ {
			meta := c.cam.Metadata()
			dif := meta.ExposureTime - int32(bracketExposure)
			if dif < 0 {
				dif = -dif
			}
			if dif <= int32(c.cfg.Exposure.ToleranceUs) {
				break
			}
		}

		c.sendExposure(wire.FlagShotExposure)

		var flag byte
		switch {
		case c.bracketShots == 1:
			flag = wire.FlagSingle
		case shot < c.bracketShots:
			flag = wire.FlagBracket
		default:
			flag = wire.FlagBracketEnd
		}

		c.takeAndQueue(flag)

		switch flag {
		case wire.FlagSingle:
			debug.Info("Single image taken. %s", c.exposureInfo())
		case wire.FlagBracket:
			debug.Info("Bracketing image taken. %s", c.exposureInfo())
		case wire.FlagBracketEnd:
			debug.Info("Last bracketing image taken. %s", c.exposureInfo())
		}
	}

	if c.autoAdvance {
		c.motor.FwdFrame(1)
	}
}

// takeAndQueue captures one frame into a pool slot and hands it to the
// slot's transmit worker. Checkout applies backpressure when all slots
// are busy; the frame is dropped only when the pool has shut down.
func (c *Controller) takeAndQueue(flag byte) {
	quality := c.cfg.Capture.QualityCapture
	if c.Mode() == ModePreviewing {
		quality = c.cfg.Capture.QualityPreview
	}

	slot := c.pool.Checkout()
	if slot == nil {
		debug.Info("Transmit pool is shut down, dropping frame")
		return
	}

	if err := c.cam.Capture(&slot.Buf, quality); err != nil {
		debug.Error(err)
		c.pool.Release(slot)
		return
	}

	if c.cam.AwbAuto() {
		c.sendGains()
	}

	meta := c.cam.Metadata()
	c.pool.Assign(slot, flag, meta.ExposureTime)
}

// sendExposure writes an exposure record (flags 'e' or 'f') with the
// pipeline's current metadata.
func (c *Controller) sendExposure(flag byte) {
	meta := c.cam.Metadata()
	frameRate := float32(0)
	if meta.FrameDuration > 0 {
		frameRate = 1e6 / float32(meta.FrameDuration)
	}
	if err := c.wr.SendExposure(flag, meta.ExposureTime,
		meta.AnalogueGain, meta.DigitalGain, frameRate); err != nil {
		debug.Error(err)
		c.ioFailed.Store(true)
	}
}

// sendGains reports the blue and red colour gains the pipeline settled on.
func (c *Controller) sendGains() {
	meta := c.cam.Metadata()
	blue := meta.ColourGains[1]
	red := meta.ColourGains[0]

	if err := c.wr.SendGains(blue, red); err != nil {
		debug.Error(err)
		c.ioFailed.Store(true)
		return
	}

	debug.Info("Gains data sent to the client: blue = %.2f, red = %.2f", blue, red)
}

func (c *Controller) exposureInfo() string {
	meta := c.cam.Metadata()
	frameRate := float32(0)
	if meta.FrameDuration > 0 {
		frameRate = 1e6 / float32(meta.FrameDuration)
	}
	return debug.Fmt("Exp. time = %d us - Framerate = %.1f fps - AG = %.2f - DG = %.2f",
		meta.ExposureTime, frameRate, meta.AnalogueGain, meta.DigitalGain)
}
