package sensor

import "io"

// Channel identifies a colour gain channel, matching the order the sensor
// reports them in metadata.
type Channel int

const (
	Red  Channel = 0
	Blue Channel = 1
)

// Metadata is the per-frame metadata reported by the sensor pipeline.
// Reported values lag commanded controls by a few frames.
type Metadata struct {
	ExposureTime  int32      // µs
	AnalogueGain  float32    // unity when exposure is sufficient
	DigitalGain   float32
	FrameDuration int32      // µs, frame rate = 1e6 / FrameDuration
	ColourGains   [2]float32 // red, blue
}

// Sensor is the high-level interface to the image sensor. It hides the
// register-level control interface, which lives outside this program.
// Control setters take effect on subsequent frames; Metadata reports what
// the pipeline actually used.
type Sensor interface {
	// Exposure and gain.
	SetExposureTime(us int32)
	SetAutoGain(enabled bool)
	SetAnalogueGain(gain float64)
	SetExposureValue(ev float64)

	// White balance. Mode 0 is manual; SetColourGain switches to manual.
	SetAwbMode(mode int)
	SetColourGain(ch Channel, gain float64)
	AwbAuto() bool

	// Image tuning.
	SetBrightness(v float64)
	SetContrast(v float64)
	SetSaturation(v float64)
	SetSharpness(v float64)

	// Geometry. Flips restart the pipeline.
	SetZoom(z int)
	SetRoiX(x int)
	SetRoiY(y int)
	SetVFlip(on bool) error
	SetHFlip(on bool) error

	// Algorithm modes and output size.
	SetConstraintMode(m int)
	SetExposureMode(m int)
	SetMeteringMode(m int)
	SetSize(index int)

	// Capture encodes one frame as JPEG at the given quality and writes
	// it to w. It also advances the metadata pipeline by one frame.
	Capture(w io.Writer, quality int) error

	// Metadata returns the most recent frame metadata.
	Metadata() Metadata

	// Stop shuts the sensor pipeline down.
	Stop() error
}
