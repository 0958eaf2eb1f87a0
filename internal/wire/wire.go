// Package wire implements the binary framing of the image/telemetry
// channel. Every record starts with a one-byte flag; multi-byte fields
// are little-endian. A single Writer guards the whole channel with one
// mutex, so the session, the transmit workers and the motor driver can
// never interleave partial records.
package wire

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/cineto/filmrig/internal/debug"
)

// Record flags.
const (
	FlagPreview    byte = 'p' // preview image
	FlagSingle     byte = 's' // single capture image
	FlagBracket    byte = 'a' // intermediate bracket image
	FlagBracketEnd byte = 'b' // final bracket image

	FlagExposure     byte = 'e' // exposure record (autoexposure / preview)
	FlagShotExposure byte = 'f' // exposure record, one per bracket shot
	FlagGains        byte = 'g' // colour gain record

	FlagLightOn  byte = 'l'
	FlagLightOff byte = 'L'

	FlagAdvance byte = 'F' // transport advanced, int32 frame delta follows
	FlagStopped byte = 'M' // transport stopped

	FlagAbort     byte = 'X' // server is about to exit abnormally
	FlagTerminate byte = 'T' // server is terminating gracefully
)

// Writer serializes all outbound records on the image/telemetry channel.
// The zero value is not usable; construct with NewWriter.
type Writer struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewWriter wraps the image/telemetry connection.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// SendImage writes one complete image record:
// flag, int32 LE exposure time (µs), uint32 LE length, raw bytes.
func (wr *Writer) SendImage(flag byte, exposureUs int32, img []byte) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	debug.Wire(flag, len(img))

	var hdr [9]byte
	hdr[0] = flag
	binary.LittleEndian.PutUint32(hdr[1:5], uint32(exposureUs))
	binary.LittleEndian.PutUint32(hdr[5:9], uint32(len(img)))
	if _, err := wr.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := wr.w.Write(img); err != nil {
		return err
	}
	return wr.w.Flush()
}

// SendExposure writes an exposure record:
// flag, int32 LE exposure (µs), float32 LE analogue gain,
// float32 LE digital gain, float32 LE frame rate.
// Gains are rounded to two decimals and the frame rate to one, matching
// what the client displays.
func (wr *Writer) SendExposure(flag byte, exposureUs int32, analogueGain, digitalGain, frameRate float32) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	debug.Wire(flag, 13)

	var rec [13]byte
	rec[0] = flag
	binary.LittleEndian.PutUint32(rec[1:5], uint32(exposureUs))
	binary.LittleEndian.PutUint32(rec[5:9], math.Float32bits(roundTo(analogueGain, 2)))
	binary.LittleEndian.PutUint32(rec[9:13], math.Float32bits(roundTo(digitalGain, 2)))
	if _, err := wr.w.Write(rec[:]); err != nil {
		return err
	}
	var fr [4]byte
	binary.LittleEndian.PutUint32(fr[:], math.Float32bits(roundTo(frameRate, 1)))
	if _, err := wr.w.Write(fr[:]); err != nil {
		return err
	}
	return wr.w.Flush()
}

// SendGains writes a colour gain record: 'g', float32 LE blue, float32 LE red.
func (wr *Writer) SendGains(blue, red float32) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	debug.Wire(FlagGains, 8)

	var rec [9]byte
	rec[0] = FlagGains
	binary.LittleEndian.PutUint32(rec[1:5], math.Float32bits(blue))
	binary.LittleEndian.PutUint32(rec[5:9], math.Float32bits(red))
	if _, err := wr.w.Write(rec[:]); err != nil {
		return err
	}
	return wr.w.Flush()
}

// SendAdvance writes a transport advance acknowledgement:
// 'F', int32 LE frame delta (negative when reversing).
func (wr *Writer) SendAdvance(delta int32) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	debug.Wire(FlagAdvance, 4)

	var rec [5]byte
	rec[0] = FlagAdvance
	binary.LittleEndian.PutUint32(rec[1:5], uint32(delta))
	if _, err := wr.w.Write(rec[:]); err != nil {
		return err
	}
	return wr.w.Flush()
}

// SendFlag writes a flag-only record (l, L, M, X, T).
func (wr *Writer) SendFlag(flag byte) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	debug.Wire(flag, 0)

	if err := wr.w.WriteByte(flag); err != nil {
		return err
	}
	return wr.w.Flush()
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float32, places int) float32 {
	scale := math.Pow(10, float64(places))
	return float32(math.Round(float64(v)*scale) / scale)
}
