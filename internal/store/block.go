package store

import "github.com/book-expert/tts-workbench/internal/params"

// Status holds per-block session state. It is never persisted: a restored
// session starts with no audio and nothing in flight.
type Status struct {
	Generating bool   `json:"generating"`
	Progress   int    `json:"progress"`
	AudioKey   string `json:"audioKey,omitempty"`
}

// TestBlock is one independent synthesis experiment.
type TestBlock struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
	params.Set
	Preset string `json:"preset"`
	Status Status `json:"-"`
	// Serial is unique for the lifetime of a Store. Ids restart after
	// ClearAll; serials do not.
	Serial uint64 `json:"-"`
}

// Ref identifies one block instance across an id reuse.
type Ref struct {
	ID     int
	Serial uint64
}

// Params returns the block's parameter values.
func (b TestBlock) Params() params.Set {
	return b.Set
}

// Ref returns the identity of this block instance.
func (b TestBlock) Ref() Ref {
	return Ref{ID: b.ID, Serial: b.Serial}
}

// State is the committed store content. Its JSON form is the persisted
// snapshot body.
type State struct {
	Blocks         []TestBlock `json:"blocks"`
	NextID         int         `json:"nextId"`
	HasInitialized bool        `json:"_hasInitialized"`
	// Revision counts committed changes since the Store was created.
	Revision uint64 `json:"-"`
}

// Patch is a partial block update. Nil fields are left untouched.
type Patch struct {
	Text           *string  `json:"text,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	LengthScale    *float64 `json:"lengthScale,omitempty"`
	NoiseScale     *float64 `json:"noiseScale,omitempty"`
	NoiseScaleW    *float64 `json:"noiseScaleW,omitempty"`
	RhythmicPauses *float64 `json:"rhythmicPauses,omitempty"`
	VolumeBalance  *float64 `json:"volumeBalance,omitempty"`
	PitchScale     *float64 `json:"pitchScale,omitempty"`
	SpeakingSpeed  *float64 `json:"speakingSpeed,omitempty"`
}

// TextPatch returns a patch that only replaces the text.
func TextPatch(text string) Patch {
	return Patch{Text: &text}
}

// ParamPatch returns a patch that sets a single parameter.
func ParamPatch(name params.Name, value float64) Patch {
	return Patch{}.WithParam(name, value)
}

// WithParam returns a copy of p that also sets name. Unknown names are ignored.
func (p Patch) WithParam(name params.Name, value float64) Patch {
	slot := p.slot(name)
	if slot != nil {
		*slot = &value
	}

	return p
}

// WithText returns a copy of p that also replaces the text.
func (p Patch) WithText(text string) Patch {
	p.Text = &text

	return p
}

func (p *Patch) slot(name params.Name) **float64 {
	switch name {
	case params.Temperature:
		return &p.Temperature
	case params.LengthScale:
		return &p.LengthScale
	case params.NoiseScale:
		return &p.NoiseScale
	case params.NoiseScaleW:
		return &p.NoiseScaleW
	case params.RhythmicPauses:
		return &p.RhythmicPauses
	case params.VolumeBalance:
		return &p.VolumeBalance
	case params.PitchScale:
		return &p.PitchScale
	case params.SpeakingSpeed:
		return &p.SpeakingSpeed
	default:
		return nil
	}
}

// TouchesParams reports whether the patch assigns at least one parameter.
func (p Patch) TouchesParams() bool {
	for _, name := range params.Names() {
		if *p.slot(name) != nil {
			return true
		}
	}

	return false
}

// merge applies p on top of block field by field, then re-clamps the whole
// parameter set so previously stored values are verified as well.
func merge(block TestBlock, p Patch) TestBlock {
	if p.Text != nil {
		block.Text = *p.Text
	}

	for _, name := range params.Names() {
		value := *p.slot(name)
		if value != nil {
			block.Set = block.Set.With(name, *value)
		}
	}

	block.Set = block.Set.Clamped()

	if p.TouchesParams() {
		block.Preset = params.Custom
	}

	return block
}
