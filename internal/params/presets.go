package params

// Preset labels. Custom is not a preset: it marks a hand-edited block.
const (
	PresetWarm      = "warm"
	PresetKlar      = "klar"
	PresetDynamisch = "dynamisch"
	PresetErzaehler = "erzaehler"
	Custom          = "custom"
)

// DefaultPreset seeds every new block.
const DefaultPreset = PresetWarm

// Preset is a named, fully specified parameter set.
type Preset struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Values      Set    `json:"values"`
}

// Clamped returns the preset values clamped to the current ranges.
func (p Preset) Clamped() Set {
	return p.Values.Clamped()
}

var presets = map[string]Preset{
	PresetWarm: {
		Name:        PresetWarm,
		Label:       "Warm",
		Description: "Emotional, friendly and conversational",
		Values: Set{
			Temperature:    0.87,
			LengthScale:    0.98,
			NoiseScale:     0.80,
			NoiseScaleW:    0.85,
			RhythmicPauses: 0.65,
			VolumeBalance:  0.95,
			PitchScale:     0.95,
			SpeakingSpeed:  0.95,
		},
	},
	PresetKlar: {
		Name:        PresetKlar,
		Label:       "Klar",
		Description: "Professional, articulate and clear",
		Values: Set{
			Temperature:    0.80,
			LengthScale:    0.95,
			NoiseScale:     0.82,
			NoiseScaleW:    0.80,
			RhythmicPauses: 0.50,
			VolumeBalance:  1.05,
			PitchScale:     1.02,
			SpeakingSpeed:  1.00,
		},
	},
	PresetDynamisch: {
		Name:        PresetDynamisch,
		Label:       "Dynamisch",
		Description: "Expressive and varied, for narration and drama",
		Values: Set{
			Temperature:    0.92,
			LengthScale:    1.02,
			NoiseScale:     0.90,
			NoiseScaleW:    0.95,
			RhythmicPauses: 0.75,
			VolumeBalance:  1.00,
			PitchScale:     1.05,
			SpeakingSpeed:  0.98,
		},
	},
	PresetErzaehler: {
		Name:        PresetErzaehler,
		Label:       "Erzähler",
		Description: "Authoritative, deep narrator voice",
		Values: Set{
			Temperature:    0.85,
			LengthScale:    1.03,
			NoiseScale:     0.78,
			NoiseScaleW:    0.82,
			RhythmicPauses: 0.80,
			VolumeBalance:  0.90,
			PitchScale:     0.90,
			SpeakingSpeed:  0.92,
		},
	},
}

var presetOrder = []string{PresetWarm, PresetKlar, PresetDynamisch, PresetErzaehler}

// PresetNames returns the built-in preset names in display order.
func PresetNames() []string {
	names := make([]string, len(presetOrder))
	copy(names, presetOrder)

	return names
}

// Lookup returns a copy of the named preset.
func Lookup(name string) (Preset, bool) {
	p, ok := presets[name]

	return p, ok
}

// IsPreset reports whether name is a built-in preset.
func IsPreset(name string) bool {
	_, ok := presets[name]

	return ok
}

// Presets returns copies of all built-in presets in display order.
func Presets() []Preset {
	out := make([]Preset, 0, len(presetOrder))
	for _, name := range presetOrder {
		out = append(out, presets[name])
	}

	return out
}
