package api

import (
	"testing"

	"github.com/book-expert/tts-workbench/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferLatest_KeepsNewestRevision(t *testing.T) {
	t.Parallel()

	updates := make(chan store.State, 1)

	offerLatest(updates, store.State{Revision: 3})
	offerLatest(updates, store.State{Revision: 5})
	offerLatest(updates, store.State{Revision: 4})

	require.Len(t, updates, 1)
	assert.Equal(t, uint64(5), (<-updates).Revision)

	offerLatest(updates, store.State{Revision: 1})
	assert.Equal(t, uint64(1), (<-updates).Revision, "an empty channel takes any state")
}

func TestFeedCursor_SkipsStatesAlreadyCovered(t *testing.T) {
	t.Parallel()

	var cursor feedCursor

	assert.True(t, cursor.advance(store.State{Revision: 0}), "a fresh store's first state is sent")
	assert.False(t, cursor.advance(store.State{Revision: 0}))
	assert.True(t, cursor.advance(store.State{Revision: 7}))
	assert.False(t, cursor.advance(store.State{Revision: 6}), "an update queued before the initial state is dropped")
	assert.True(t, cursor.advance(store.State{Revision: 8}))
}
