package session

import (
	"io"

	"github.com/cineto/filmrig/internal/debug"
	"github.com/cineto/filmrig/internal/hw/sensor"
	"github.com/cineto/filmrig/internal/metrics"
)

// aeState tracks the convergence hysteresis. The search first walks the
// exposure toward the gain=1 region, then confirms it has stepped past
// the boundary once in each direction before accepting, which prevents
// oscillating on the edge.
type aeState int

const (
	aeSeeking   aeState = iota // no decrease has happened yet
	aeLowered                  // exposure was decreased at gain=1
	aeRebounded                // increased again after a decrease
)

// converge finds the exposure time at which the sensor's analogue gain
// settles at unity, stepping from the adaptive base estimate. The
// accepted value becomes the new base, so later runs start close to the
// answer while ambient light drifts slowly. Both the settle loop and
// the search itself are bounded; on exhaustion the current estimate is
// accepted best-effort. Auto gain is always disabled on exit.
func (c *Controller) converge() int32 {
	exp := cfgClampExposure(c.cfg, int(c.aeBaseUs))
	cfg := c.cfg.Exposure
	qAE := c.cfg.Capture.QualityAE

	state := aeSeeking

	c.cam.SetExposureTime(int32(exp))
	c.cam.SetAutoGain(true)
	defer c.cam.SetAutoGain(false)

	// One disposable exposure to seed the metadata pipeline.
	if err := c.cam.Capture(io.Discard, qAE); err != nil {
		debug.Error(err)
		return int32(exp)
	}

	for iter := 0; iter < cfg.AEMaxIter; iter++ {
		meta, settled := c.settleExposure(int32(exp), qAE)
		if !settled {
			debug.Info("Autoexposure settle retries exhausted, accepting %d us", exp)
			break
		}

		gain := meta.AnalogueGain

		if gain == 1 && state == aeRebounded {
			// Confirmed: smallest stepped exposure at unity gain.
			debug.Info("Autoexposure time = %d us", exp)
			debug.Value("Analogue gain", gain)
			break
		}

		if gain == 1 {
			// Still at unity; probe a shorter exposure.
			exp = cfgClampExposure(c.cfg, exp-cfg.StepUs)
			c.cam.SetExposureTime(int32(exp))
			state = aeLowered
			continue
		}

		// Gain above unity: exposure is too short.
		exp = cfgClampExposure(c.cfg, exp+cfg.StepUs)
		c.cam.SetExposureTime(int32(exp))
		if state == aeLowered {
			state = aeRebounded
		}
	}

	// Adaptive seed for the next run.
	c.aeBaseUs = int32(exp)
	metrics.AEConvergences.Inc()

	return int32(exp)
}

// settleExposure re-exposes until the pipeline reports the commanded
// exposure within tolerance, bounded by the settle retry count. It
// returns the last metadata read and whether it settled.
func (c *Controller) settleExposure(target int32, quality int) (meta sensor.Metadata, settled bool) {
	tol := int32(c.cfg.Exposure.ToleranceUs)
	for i := 0; i < c.cfg.Exposure.SettleRetries; i++ {
		meta = c.cam.Metadata()
		dif := meta.ExposureTime - target
		if dif < 0 {
			dif = -dif
		}
		if dif <= tol {
			return meta, true
		}
		if err := c.cam.Capture(io.Discard, quality); err != nil {
			debug.Error(err)
			return meta, false
		}
	}
	return meta, false
}
