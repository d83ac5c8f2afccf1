// Package core defines the interfaces shared between the workbench components.
package core

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by ObjectStore implementations when a key
// has never been written.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// SynthesisParams are the acoustic values the synthesis service accepts.
type SynthesisParams struct {
	Temperature float64
	LengthScale float64
	NoiseScale  float64
	NoiseScaleW float64
}

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, cfg SynthesisParams) ([]byte, error)
}

// Transcoder converts audio between encodings, for example "wav" to "mp3".
type Transcoder interface {
	Transcode(ctx context.Context, data []byte, from, to string) ([]byte, error)
}

// Publisher emits an event payload on a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}
