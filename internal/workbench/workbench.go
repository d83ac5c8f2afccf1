// Package workbench drives synthesis for the blocks of a store. It snapshots
// a block's text and parameters at dispatch, stores the resulting audio and
// records it on the block, and exports stored audio for download.
package workbench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-workbench/internal/audio"
	"github.com/book-expert/tts-workbench/internal/core"
	"github.com/book-expert/tts-workbench/internal/store"
	"github.com/book-expert/tts-workbench/internal/synth"
	"github.com/google/uuid"
)

// Progress values reported through the block status.
const (
	progressDispatched = 10
	progressDone       = 100
)

var (
	// ErrBlockNotFound is returned for an id that is not in the store.
	ErrBlockNotFound = errors.New("block not found")
	// ErrBlockRemoved is returned when a block disappears while its audio is
	// being synthesized, including when ClearAll hands its id to a new block.
	// The audio is discarded.
	ErrBlockRemoved = errors.New("block removed during synthesis")
	// ErrAlreadyGenerating is returned when the block has a synthesis in flight.
	ErrAlreadyGenerating = errors.New("block is already generating")
	// ErrEmptyText is returned for a block whose text is blank.
	ErrEmptyText = errors.New("block text is empty")
	// ErrNoAudio is returned when exporting a block that has no audio yet.
	ErrNoAudio = errors.New("block has no audio")
	// ErrTranscoderUnavailable is returned for an MP3 export without a transcoder.
	ErrTranscoderUnavailable = errors.New("no transcoder configured")
)

// AudioCreatedEvent announces newly stored audio for a block.
type AudioCreatedEvent struct {
	Header   events.EventHeader `json:"header"`
	BlockID  int                `json:"block_id"`
	AudioKey string             `json:"audio_key"`
	Preset   string             `json:"preset"`
}

// Options configures optional collaborators of a Runner.
type Options struct {
	// Publisher receives an AudioCreatedEvent on Subject after each
	// successful synthesis. Nil disables events.
	Publisher core.Publisher
	Subject   string
	// Transcoder is required for MP3 exports.
	Transcoder core.Transcoder
	// FilePrefix names exported files.
	FilePrefix string
}

// Export is a downloadable rendition of a block's audio.
type Export struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Runner dispatches synthesis requests for store blocks.
type Runner struct {
	store       *store.Store
	synthesizer core.Synthesizer
	audioStore  core.ObjectStore
	options     Options
	log         *logger.Logger
	now         func() time.Time

	mu       sync.Mutex
	inFlight map[store.Ref]struct{}
}

// New creates a Runner. Audio is kept in audioStore under generated keys.
func New(
	blocks *store.Store,
	synthesizer core.Synthesizer,
	audioStore core.ObjectStore,
	log *logger.Logger,
	options Options,
) *Runner {
	return &Runner{
		store:       blocks,
		synthesizer: synthesizer,
		audioStore:  audioStore,
		options:     options,
		log:         log,
		now:         time.Now,
		inFlight:    make(map[store.Ref]struct{}),
	}
}

// Generate synthesizes the block with id using the text and parameters it
// has right now. Edits made while the request is in flight do not affect
// it. The returned key names the stored audio.
func (r *Runner) Generate(ctx context.Context, id int) (string, error) {
	block, ok := r.store.Block(id)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrBlockNotFound, id)
	}

	if strings.TrimSpace(block.Text) == "" {
		return "", fmt.Errorf("%w: %d", ErrEmptyText, id)
	}

	ref := block.Ref()

	err := r.claim(ref)
	if err != nil {
		return "", err
	}
	defer r.release(ref)

	previous := block.Status.AudioKey

	if !r.store.SetStatusOf(ref, store.Status{Generating: true, Progress: progressDispatched, AudioKey: previous}) {
		return "", fmt.Errorf("%w: %d", ErrBlockRemoved, id)
	}

	r.info("Dispatching synthesis for block %d (preset %s)", id, block.Preset)

	audioData, err := r.synthesizer.Synthesize(ctx, block.Text, synth.WireParams(block.Params()))
	if err != nil {
		r.store.SetStatusOf(ref, store.Status{AudioKey: previous})

		return "", fmt.Errorf("failed to synthesize block %d: %w", id, err)
	}

	if !r.store.Holds(ref) {
		return "", r.discard(id)
	}

	audioKey := uuid.NewString() + "." + audio.FormatWAV.Extension()

	err = r.audioStore.Upload(ctx, audioKey, audioData)
	if err != nil {
		r.store.SetStatusOf(ref, store.Status{AudioKey: previous})

		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	// An object uploaded for a block removed during the upload stays
	// unreferenced.
	if !r.store.SetStatusOf(ref, store.Status{Progress: progressDone, AudioKey: audioKey}) {
		return "", r.discard(id)
	}

	r.publish(id, audioKey, block.Preset)

	return audioKey, nil
}

// Generating reports whether a synthesis for id is in flight.
func (r *Runner) Generating(id int) bool {
	block, ok := r.store.Block(id)
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, busy := r.inFlight[block.Ref()]

	return busy
}

// Export returns the block's latest audio in the requested format.
func (r *Runner) Export(ctx context.Context, id int, format audio.Format) (Export, error) {
	block, ok := r.store.Block(id)
	if !ok {
		return Export{}, fmt.Errorf("%w: %d", ErrBlockNotFound, id)
	}

	if block.Status.AudioKey == "" {
		return Export{}, fmt.Errorf("%w: %d", ErrNoAudio, id)
	}

	data, err := r.audioStore.Download(ctx, block.Status.AudioKey)
	if err != nil {
		return Export{}, fmt.Errorf("failed to download audio for block %d: %w", id, err)
	}

	if format != audio.FormatWAV {
		if r.options.Transcoder == nil {
			return Export{}, ErrTranscoderUnavailable
		}

		data, err = r.options.Transcoder.Transcode(ctx, data, string(audio.FormatWAV), string(format))
		if err != nil {
			return Export{}, fmt.Errorf("failed to convert audio for block %d: %w", id, err)
		}
	}

	fileName := audio.ExportFileName(r.options.FilePrefix, r.now(), format)
	r.info("Exported block %d as %s", id, fileName)

	return Export{
		FileName:    fileName,
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

func (r *Runner) claim(ref store.Ref) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.inFlight[ref]; busy {
		return fmt.Errorf("%w: %d", ErrAlreadyGenerating, ref.ID)
	}

	r.inFlight[ref] = struct{}{}

	return nil
}

func (r *Runner) release(ref store.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.inFlight, ref)
}

func (r *Runner) discard(id int) error {
	r.info("Discarding audio for removed block %d", id)

	return fmt.Errorf("%w: %d", ErrBlockRemoved, id)
}

func (r *Runner) publish(id int, audioKey, preset string) {
	if r.options.Publisher == nil || r.options.Subject == "" {
		return
	}

	event := AudioCreatedEvent{
		Header: events.EventHeader{
			Timestamp:  r.now(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		BlockID:  id,
		AudioKey: audioKey,
		Preset:   preset,
	}

	data, err := json.Marshal(event)
	if err != nil {
		r.warn("Failed to marshal audio event for block %d: %v", id, err)

		return
	}

	err = r.options.Publisher.Publish(r.options.Subject, data)
	if err != nil {
		r.warn("Failed to publish audio event for block %d: %v", id, err)
	}
}

func (r *Runner) info(format string, args ...any) {
	if r.log != nil {
		r.log.Info(format, args...)
	}
}

func (r *Runner) warn(format string, args ...any) {
	if r.log != nil {
		r.log.Warn(format, args...)
	}
}
