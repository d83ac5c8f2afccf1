package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/book-expert/tts-workbench/internal/params"
	"github.com/book-expert/tts-workbench/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBrokenStorage = errors.New("storage unavailable")

type failingObjects struct{}

func (failingObjects) Download(context.Context, string) ([]byte, error) {
	return nil, errBrokenStorage
}

func (failingObjects) Upload(context.Context, string, []byte) error {
	return errBrokenStorage
}

func TestPersistence_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, count := range []int{0, 1, 5} {
		objects := newMemObjects()
		persister := store.NewPersister(objects, "", nil)
		original := store.New(context.Background(), persister, nil)

		original.EnsureInitialBlock()

		for range count {
			id := original.AddBlock()
			original.UpdateBlock(id, store.TextPatch("Plattdüütsch"))
			original.ApplyPreset(id, params.PresetNames()[id%4])
		}

		original.SetStatus(1, store.Status{Generating: true, Progress: 90})

		restored := store.New(context.Background(), store.NewPersister(objects, "", nil), nil)

		want := original.State()
		want.Revision = 0

		for i := range want.Blocks {
			want.Blocks[i].Status = store.Status{}
		}

		assert.Equal(t, want, restored.State(), "count %d", count)
	}
}

func TestPersistence_WireShape(t *testing.T) {
	t.Parallel()

	s := store.New(context.Background(), nil, nil)
	s.AddBlock()
	s.SetStatus(1, store.Status{Generating: true, AudioKey: "x.wav"})

	data, err := store.Encode(s.State())
	require.NoError(t, err)

	var raw map[string]any

	require.NoError(t, json.Unmarshal(data, &raw))
	assert.InDelta(t, float64(store.SchemaVersion), raw["version"], 0)

	state, ok := raw["state"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"blocks", "nextId", "_hasInitialized"}, keys(state))

	blocks, ok := state["blocks"].([]any)
	require.True(t, ok)
	require.Len(t, blocks, 1)

	block, ok := blocks[0].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{
		"id", "text", "preset",
		"temperature", "lengthScale", "noiseScale", "noiseScaleW",
		"rhythmicPauses", "volumeBalance", "pitchScale", "speakingSpeed",
	}, keys(block))
}

func TestPersistence_EmptyStateEncodesEmptyList(t *testing.T) {
	t.Parallel()

	data, err := store.Encode(store.State{NextID: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":{"blocks":[],"nextId":1,"_hasInitialized":false},"version":2}`, string(data))
}

func TestPersistence_ColdStartCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "corrupt json", data: []byte("{not json")},
		{name: "older version", data: []byte(`{"state":{"blocks":[{"id":4}],"nextId":5,"_hasInitialized":true},"version":1}`)},
		{name: "missing version", data: []byte(`{"state":{"blocks":[],"nextId":3,"_hasInitialized":true}}`)},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			objects := newMemObjects()
			objects.data[store.DefaultSnapshotKey] = testCase.data

			s := store.New(context.Background(), store.NewPersister(objects, "", nil), nil)

			state := s.State()
			assert.Empty(t, state.Blocks)
			assert.Equal(t, 1, state.NextID)
			assert.False(t, state.HasInitialized)
		})
	}
}

func TestPersistence_DecodeVersionMismatch(t *testing.T) {
	t.Parallel()

	_, err := store.Decode([]byte(`{"state":{},"version":7}`))
	require.ErrorIs(t, err, store.ErrVersionMismatch)
}

func TestPersistence_MissingSnapshotIsColdStart(t *testing.T) {
	t.Parallel()

	s := store.New(context.Background(), store.NewPersister(newMemObjects(), "other-key", nil), nil)
	assert.Empty(t, s.Blocks())
	assert.Equal(t, 1, s.State().NextID)
}

func TestPersistence_RestoreNormalizesState(t *testing.T) {
	t.Parallel()

	objects := newMemObjects()
	objects.data[store.DefaultSnapshotKey] = []byte(`{
		"state": {
			"blocks": [
				{"id": 3, "text": "a", "temperature": 9, "lengthScale": 0.1, "preset": "warm"},
				{"id": 3, "text": "duplicate", "preset": "klar"},
				{"id": 7, "text": "b", "pitchScale": 1.1, "preset": "whisper"}
			],
			"nextId": 2,
			"_hasInitialized": true
		},
		"version": 2
	}`)

	s := store.New(context.Background(), store.NewPersister(objects, "", nil), nil)

	state := s.State()
	require.Len(t, state.Blocks, 2)
	assert.Equal(t, 8, state.NextID)
	assert.True(t, state.HasInitialized)

	for _, block := range state.Blocks {
		assert.True(t, block.Params().Valid())
	}

	assert.InDelta(t, 1.0, state.Blocks[0].Temperature, 1e-12)
	assert.InDelta(t, 0.5, state.Blocks[0].LengthScale, 1e-12)
	assert.Equal(t, "a", state.Blocks[0].Text)
	assert.Equal(t, params.Custom, state.Blocks[1].Preset)

	assert.Equal(t, 8, s.AddBlock())
}

func TestPersistence_StorageFailuresAreSilent(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)
	s := store.New(context.Background(), store.NewPersister(failingObjects{}, "", log), log)

	id := s.AddBlock()
	s.UpdateBlock(id, store.ParamPatch(params.SpeakingSpeed, 1.2))

	block, ok := s.Block(id)
	require.True(t, ok)
	assert.InDelta(t, 1.2, block.SpeakingSpeed, 1e-12)
}

func TestPersister_SaveWrapsUploadError(t *testing.T) {
	t.Parallel()

	persister := store.NewPersister(failingObjects{}, "k", nil)
	assert.Equal(t, "k", persister.Key())

	err := persister.Save(context.Background(), store.State{NextID: 1})
	require.ErrorIs(t, err, errBrokenStorage)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for key := range m {
		out = append(out, key)
	}

	return out
}
