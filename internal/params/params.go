// Package params declares the acoustic synthesis parameters, their safe ranges
// and the built-in presets.
//
// The tables in this package are static. Every value that leaves it is clamped
// to the declared range at the moment it is used, so a later edit to a range
// can never let a stale preset value escape.
package params

import "math"

// Name identifies one of the eight tunable parameters. The string value is
// the key used in persisted snapshots.
type Name string

// Parameter names.
const (
	Temperature    Name = "temperature"
	LengthScale    Name = "lengthScale"
	NoiseScale     Name = "noiseScale"
	NoiseScaleW    Name = "noiseScaleW"
	RhythmicPauses Name = "rhythmicPauses"
	VolumeBalance  Name = "volumeBalance"
	PitchScale     Name = "pitchScale"
	SpeakingSpeed  Name = "speakingSpeed"
)

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp limits value to the range.
func (r Range) Clamp(value float64) float64 {
	return Clamp(value, r.Min, r.Max)
}

// Contains reports whether value lies inside the range.
func (r Range) Contains(value float64) bool {
	return value >= r.Min && value <= r.Max
}

var ranges = map[Name]Range{
	Temperature:    {Min: 0.1, Max: 1.0},
	LengthScale:    {Min: 0.5, Max: 2.0},
	NoiseScale:     {Min: 0.0, Max: 1.0},
	NoiseScaleW:    {Min: 0.0, Max: 1.0},
	RhythmicPauses: {Min: 0.0, Max: 1.0},
	VolumeBalance:  {Min: 0.5, Max: 1.5},
	PitchScale:     {Min: 0.5, Max: 1.5},
	SpeakingSpeed:  {Min: 0.5, Max: 1.5},
}

// order is the canonical parameter order used for iteration and display.
var order = []Name{
	Temperature,
	LengthScale,
	NoiseScale,
	NoiseScaleW,
	RhythmicPauses,
	VolumeBalance,
	PitchScale,
	SpeakingSpeed,
}

// Names returns every parameter name in canonical order.
func Names() []Name {
	names := make([]Name, len(order))
	copy(names, order)

	return names
}

// RangeOf returns the declared range for a parameter.
func RangeOf(name Name) (Range, bool) {
	r, ok := ranges[name]

	return r, ok
}

// Clamp returns max(lo, min(value, hi)). NaN collapses to lo.
func Clamp(value, lo, hi float64) float64 {
	if math.IsNaN(value) {
		return lo
	}

	return max(lo, min(value, hi))
}

// Set is one complete assignment of the eight acoustic parameters.
type Set struct {
	Temperature    float64 `json:"temperature"`
	LengthScale    float64 `json:"lengthScale"`
	NoiseScale     float64 `json:"noiseScale"`
	NoiseScaleW    float64 `json:"noiseScaleW"`
	RhythmicPauses float64 `json:"rhythmicPauses"`
	VolumeBalance  float64 `json:"volumeBalance"`
	PitchScale     float64 `json:"pitchScale"`
	SpeakingSpeed  float64 `json:"speakingSpeed"`
}

// field returns a pointer to the struct field backing name.
func (s *Set) field(name Name) *float64 {
	switch name {
	case Temperature:
		return &s.Temperature
	case LengthScale:
		return &s.LengthScale
	case NoiseScale:
		return &s.NoiseScale
	case NoiseScaleW:
		return &s.NoiseScaleW
	case RhythmicPauses:
		return &s.RhythmicPauses
	case VolumeBalance:
		return &s.VolumeBalance
	case PitchScale:
		return &s.PitchScale
	case SpeakingSpeed:
		return &s.SpeakingSpeed
	default:
		return nil
	}
}

// Get returns the value of a parameter.
func (s Set) Get(name Name) (float64, bool) {
	ptr := s.field(name)
	if ptr == nil {
		return 0, false
	}

	return *ptr, true
}

// With returns a copy of s with name set to the clamped value. Unknown names
// leave the copy unchanged.
func (s Set) With(name Name, value float64) Set {
	ptr := s.field(name)
	if ptr == nil {
		return s
	}

	*ptr = ranges[name].Clamp(value)

	return s
}

// Clamped returns a copy of s with every parameter inside its range.
func (s Set) Clamped() Set {
	for _, name := range order {
		ptr := s.field(name)
		*ptr = ranges[name].Clamp(*ptr)
	}

	return s
}

// Valid reports whether every parameter lies inside its range.
func (s Set) Valid() bool {
	for _, name := range order {
		value, _ := s.Get(name)
		if !ranges[name].Contains(value) {
			return false
		}
	}

	return true
}
