package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-workbench/internal/core"
	"github.com/book-expert/tts-workbench/internal/params"
)

// Snapshot storage identity. A stored snapshot whose version differs from
// SchemaVersion is ignored.
const (
	DefaultSnapshotKey = "plattdeutsch-tts-blocks"
	SchemaVersion      = 2
)

// ErrVersionMismatch is returned by Decode for snapshots written under a
// different schema version.
var ErrVersionMismatch = errors.New("snapshot schema version mismatch")

// snapshot is the stored envelope: the committed state plus its version tag.
type snapshot struct {
	State   State `json:"state"`
	Version int   `json:"version"`
}

// Encode serializes state into a versioned snapshot. Session status is not
// part of the output.
func Encode(state State) ([]byte, error) {
	if state.Blocks == nil {
		state.Blocks = []TestBlock{}
	}

	data, err := json.Marshal(snapshot{State: state, Version: SchemaVersion})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return data, nil
}

// Decode parses a snapshot and normalizes it so the restored state satisfies
// the same invariants as a live store.
func Decode(data []byte) (State, error) {
	var snap snapshot

	err := json.Unmarshal(data, &snap)
	if err != nil {
		return State{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	if snap.Version != SchemaVersion {
		return State{}, fmt.Errorf("%w: stored %d, current %d", ErrVersionMismatch, snap.Version, SchemaVersion)
	}

	return normalize(snap.State), nil
}

// normalize re-clamps parameters, drops duplicate ids, maps unknown preset
// labels to custom and keeps the id counter ahead of every restored id.
func normalize(state State) State {
	blocks := make([]TestBlock, 0, len(state.Blocks))
	seen := make(map[int]struct{}, len(state.Blocks))
	highest := 0

	for _, block := range state.Blocks {
		if _, dup := seen[block.ID]; dup {
			continue
		}

		seen[block.ID] = struct{}{}

		block.Set = block.Set.Clamped()
		block.Status = Status{}

		if !params.IsPreset(block.Preset) {
			block.Preset = params.Custom
		}

		highest = max(highest, block.ID)
		blocks = append(blocks, block)
	}

	state.Blocks = blocks
	state.NextID = max(state.NextID, highest+1, initialNextID)

	return state
}

// Persister reads and writes store snapshots through an ObjectStore.
type Persister struct {
	objects core.ObjectStore
	key     string
	log     *logger.Logger
}

// NewPersister creates a Persister that stores snapshots under key. An empty
// key selects DefaultSnapshotKey.
func NewPersister(objects core.ObjectStore, key string, log *logger.Logger) *Persister {
	if key == "" {
		key = DefaultSnapshotKey
	}

	return &Persister{
		objects: objects,
		key:     key,
		log:     log,
	}
}

// Key returns the storage key of the snapshot.
func (p *Persister) Key() string {
	return p.key
}

// Load returns the stored state. The boolean is false when there is nothing
// usable to restore: missing, unreadable and version-mismatched snapshots
// all mean a cold start.
func (p *Persister) Load(ctx context.Context) (State, bool) {
	data, err := p.objects.Download(ctx, p.key)
	if err != nil {
		if errors.Is(err, core.ErrObjectNotFound) {
			p.info("No stored snapshot under %q, starting empty", p.key)
		} else {
			p.warn("Failed to read snapshot %q, starting empty: %v", p.key, err)
		}

		return State{}, false
	}

	state, err := Decode(data)
	if err != nil {
		p.warn("Discarding snapshot %q: %v", p.key, err)

		return State{}, false
	}

	return state, true
}

// Save writes state as the current snapshot.
func (p *Persister) Save(ctx context.Context, state State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}

	err = p.objects.Upload(ctx, p.key, data)
	if err != nil {
		return fmt.Errorf("failed to upload snapshot '%s': %w", p.key, err)
	}

	return nil
}

func (p *Persister) info(format string, args ...any) {
	if p.log != nil {
		p.log.Info(format, args...)
	}
}

func (p *Persister) warn(format string, args ...any) {
	if p.log != nil {
		p.log.Warn(format, args...)
	}
}
