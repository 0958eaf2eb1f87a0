package sensor

import (
	"fmt"
	"io"
	"sync"

	"github.com/cineto/filmrig/internal/debug"
)

// SimConfig tunes the simulated sensor.
type SimConfig struct {
	SceneExposureUs int // exposure at which analogue gain settles at 1
	PipelineLag     int // frames before a commanded exposure shows in metadata
	WidthPx         int
	HeightPx        int
}

// Sim is a deterministic in-memory sensor used for development on PC and
// for tests. It models the two behaviors the exposure machinery depends
// on: commanded controls propagate to metadata only after PipelineLag
// captured frames, and with auto gain enabled the analogue gain rises
// above 1 exactly when the exposure time is below the scene requirement.
type Sim struct {
	mu sync.Mutex

	cfg SimConfig

	commanded int32   // last commanded exposure time
	lagLine   []int32 // exposure values still working through the pipeline
	reported  int32   // exposure the pipeline currently reports

	autoGain     bool
	analogueGain float64 // manual gain when autoGain is off
	exposureVal  float64
	awbMode      int
	colourGains  [2]float32

	brightness, contrast, saturation, sharpness float64
	zoom, roiX, roiY                            int
	vflip, hflip                                bool
	constraintMode, exposureMode, meteringMode  int
	sizeIndex                                   int

	stopped bool
}

// NewSim creates a simulated sensor. Zero-valued config fields get
// workable defaults.
func NewSim(cfg SimConfig) *Sim {
	if cfg.SceneExposureUs <= 0 {
		cfg.SceneExposureUs = 4000
	}
	if cfg.PipelineLag <= 0 {
		cfg.PipelineLag = 2
	}
	if cfg.WidthPx <= 0 {
		cfg.WidthPx = 2028
	}
	if cfg.HeightPx <= 0 {
		cfg.HeightPx = 1520
	}

	s := &Sim{
		cfg:          cfg,
		commanded:    10000,
		reported:     10000,
		analogueGain: 1,
		colourGains:  [2]float32{2.0, 1.8},
	}
	s.lagLine = make([]int32, cfg.PipelineLag)
	for i := range s.lagLine {
		s.lagLine[i] = s.commanded
	}
	return s
}

func (s *Sim) SetExposureTime(us int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commanded = us
}

func (s *Sim) SetAutoGain(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoGain = enabled
}

func (s *Sim) SetAnalogueGain(gain float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analogueGain = gain
}

func (s *Sim) SetExposureValue(ev float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exposureVal = ev
}

func (s *Sim) SetAwbMode(mode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awbMode = mode
}

// SetColourGain fixes one colour gain manually, which drops the sensor
// out of auto white balance.
func (s *Sim) SetColourGain(ch Channel, gain float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awbMode = 0
	s.colourGains[ch] = float32(gain)
}

func (s *Sim) AwbAuto() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awbMode != 0
}

func (s *Sim) SetBrightness(v float64) { s.mu.Lock(); s.brightness = v; s.mu.Unlock() }
func (s *Sim) SetContrast(v float64)   { s.mu.Lock(); s.contrast = v; s.mu.Unlock() }
func (s *Sim) SetSaturation(v float64) { s.mu.Lock(); s.saturation = v; s.mu.Unlock() }
func (s *Sim) SetSharpness(v float64)  { s.mu.Lock(); s.sharpness = v; s.mu.Unlock() }

func (s *Sim) SetZoom(z int) { s.mu.Lock(); s.zoom = z; s.mu.Unlock() }
func (s *Sim) SetRoiX(x int) { s.mu.Lock(); s.roiX = x; s.mu.Unlock() }
func (s *Sim) SetRoiY(y int) { s.mu.Lock(); s.roiY = y; s.mu.Unlock() }

// SetVFlip reconfigures the pipeline; in the simulator that just resets
// the lag line so the next frames report the current commanded exposure.
func (s *Sim) SetVFlip(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vflip = on
	s.resetPipelineLocked()
	return nil
}

func (s *Sim) SetHFlip(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hflip = on
	s.resetPipelineLocked()
	return nil
}

func (s *Sim) SetConstraintMode(m int) { s.mu.Lock(); s.constraintMode = m; s.mu.Unlock() }
func (s *Sim) SetExposureMode(m int)   { s.mu.Lock(); s.exposureMode = m; s.mu.Unlock() }
func (s *Sim) SetMeteringMode(m int)   { s.mu.Lock(); s.meteringMode = m; s.mu.Unlock() }
func (s *Sim) SetSize(index int)       { s.mu.Lock(); s.sizeIndex = index; s.mu.Unlock() }

func (s *Sim) resetPipelineLocked() {
	for i := range s.lagLine {
		s.lagLine[i] = s.commanded
	}
	s.reported = s.commanded
}

// Capture emits a JPEG-shaped payload (SOI marker, filler, EOI marker)
// sized by resolution and quality, and moves the pipeline one frame
// forward so commanded controls eventually reach Metadata.
func (s *Sim) Capture(w io.Writer, quality int) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("sim sensor: capture after stop")
	}

	s.advanceLocked()

	if quality <= 0 || quality > 100 {
		quality = 75
	}
	size := s.cfg.WidthPx * s.cfg.HeightPx / 1024 * quality / 100
	if size < 16 {
		size = 16
	}
	s.mu.Unlock()

	debug.Trace("Sim sensor: capture quality=%d size=%d", quality, size)

	buf := make([]byte, size)
	buf[0], buf[1] = 0xFF, 0xD8
	for i := 2; i < size-2; i++ {
		buf[i] = byte(i)
	}
	buf[size-2], buf[size-1] = 0xFF, 0xD9

	_, err := w.Write(buf)
	return err
}

// advanceLocked moves the lag line one frame forward: the oldest
// pending value becomes the reported one.
func (s *Sim) advanceLocked() {
	s.reported = s.lagLine[0]
	copy(s.lagLine, s.lagLine[1:])
	s.lagLine[len(s.lagLine)-1] = s.commanded
}

// Metadata blocks for the next frame on real hardware, so here too each
// call advances the pipeline and reports what that frame used.
func (s *Sim) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advanceLocked()

	gain := float32(1)
	if s.autoGain {
		if s.reported > 0 && int(s.reported) < s.cfg.SceneExposureUs {
			gain = float32(s.cfg.SceneExposureUs) / float32(s.reported)
			if gain > 8 {
				gain = 8
			}
		}
	} else {
		gain = float32(s.analogueGain)
	}

	frameDuration := s.reported + 10000

	return Metadata{
		ExposureTime:  s.reported,
		AnalogueGain:  gain,
		DigitalGain:   1,
		FrameDuration: frameDuration,
		ColourGains:   s.colourGains,
	}
}

// Stop shuts the simulated pipeline down; further captures fail.
func (s *Sim) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}
