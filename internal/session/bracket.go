package session

import (
	"math"

	"github.com/cineto/filmrig/internal/config"
)

// BracketExposure computes the exposure time for one shot of a bracket.
// Shot indices 1..count span the range [-stops/2, +stops/2] around the
// base exposure evenly; a single shot uses the base unchanged. The
// result is always clamped to the configured exposure bounds.
func BracketExposure(stops float64, shot, count, baseUs, minUs, maxUs int) int {
	if count <= 1 {
		return clampExposure(baseUs, minUs, maxUs)
	}

	// Evenly spaced in [-1, 1]: shot 1 at -1, the last at +1.
	adj := float64(shot-1)/float64(count-1)*2 - 1

	exposureUs := int(float64(baseUs) * math.Pow(2, adj*stops/2))
	return clampExposure(exposureUs, minUs, maxUs)
}

func clampExposure(us, minUs, maxUs int) int {
	if us > maxUs {
		return maxUs
	}
	if us < minUs {
		return minUs
	}
	return us
}

func cfgClampExposure(cfg *config.Config, us int) int {
	return clampExposure(us, cfg.Exposure.MinUs, cfg.Exposure.MaxUs)
}
