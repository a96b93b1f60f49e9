// Package waveform drives the arbitrary waveform generator which modulates the laser with the PN code
package waveform

import (
	"context"
	"fmt"
	"math"

	"github.com/roman-kulish/pn-raman/internal/driver"
	"github.com/roman-kulish/pn-raman/internal/pn"
)

const (
	// DefaultClockHz is the DAC sample clock
	DefaultClockHz = 2e9

	// HighLevel is the DAC code emitted for a 1 bit, 0 bits emit 0
	HighLevel uint16 = 2047

	// MaxLevel is the largest DAC code accepted by the card
	MaxLevel uint16 = 4095

	// PointAlignment is the granularity of segment lengths accepted by the card
	PointAlignment = 16
)

// Generator is the waveform generator boundary
type Generator interface {
	CardCount(ctx context.Context) (int, error)
	Start(ctx context.Context, code pn.Code, modulationMHz float64) error
	Stop(ctx context.Context) error
}

// Segment is one continuously looped waveform segment
type Segment struct {
	ClockHz       float64
	SamplesPerBit int
	Samples       []uint16
}

// PadBegin is the level held before the segment starts
func (s Segment) PadBegin() uint16 {
	return s.Samples[0]
}

// PadEnd is the level held after the segment stops
func (s Segment) PadEnd() uint16 {
	return s.Samples[len(s.Samples)-1]
}

// SamplesPerBit returns how many DAC clocks one PN bit lasts
func SamplesPerBit(clockHz, modulationMHz float64) (int, error) {
	if !(clockHz > 0) || !(modulationMHz > 0) {
		return 0, driver.NewConfigError(fmt.Sprintf("invalid clock %g Hz or modulation %g MHz", clockHz, modulationMHz))
	}
	spb := int(math.Ceil(clockHz / (modulationMHz * 1e6)))
	if spb < 1 {
		spb = 1
	}
	return spb, nil
}

// BuildSegment holds every bit of code for SamplesPerBit clocks at level
func BuildSegment(code pn.Code, modulationMHz, clockHz float64, level uint16) (Segment, error) {
	if code.Len() == 0 {
		return Segment{}, driver.NewConfigError("empty PN code")
	}
	if level > MaxLevel {
		return Segment{}, driver.NewConfigError(fmt.Sprintf("level %d above %d", level, MaxLevel))
	}

	spb, err := SamplesPerBit(clockHz, modulationMHz)
	if err != nil {
		return Segment{}, err
	}

	points := code.Len() * spb
	if points%PointAlignment != 0 {
		return Segment{}, driver.NewConfigError(fmt.Sprintf("segment of %d points is not a multiple of %d", points, PointAlignment))
	}

	samples := make([]uint16, points)
	for i := 0; i < code.Len(); i++ {
		v := uint16(code.Bit(i)) * level
		for j := 0; j < spb; j++ {
			samples[i*spb+j] = v
		}
	}

	return Segment{ClockHz: clockHz, SamplesPerBit: spb, Samples: samples}, nil
}
