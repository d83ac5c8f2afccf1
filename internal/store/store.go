// Package store owns the collection of test blocks and enforces the
// parameter range invariant on every write.
//
// The Store is the single writer of its blocks. Every committed mutation is
// written through the Persister before subscribers are notified, so the
// durable snapshot never lags behind what consumers observe.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-workbench/internal/params"
)

const (
	initialNextID  = 1
	persistTimeout = 5 * time.Second
)

// Listener receives the committed state after each change.
type Listener func(State)

// Store holds the test blocks of one workbench session.
type Store struct {
	mu          sync.Mutex
	blocks      []TestBlock
	nextID      int
	initialized bool

	serial      uint64
	revision    uint64

	persister *Persister
	log       *logger.Logger

	listeners      map[int]Listener
	nextListenerID int

	// delivery orders listener calls by revision.
	delivery  sync.Mutex
	turn      *sync.Cond
	delivered uint64
}

// New creates a Store and restores the last snapshot through persister.
// A nil persister keeps the store in memory only.
func New(ctx context.Context, persister *Persister, log *logger.Logger) *Store {
	s := &Store{
		blocks:    nil,
		nextID:    initialNextID,
		persister: persister,
		log:       log,
		listeners: make(map[int]Listener),
	}
	s.turn = sync.NewCond(&s.delivery)

	if persister == nil {
		return s
	}

	state, ok := persister.Load(ctx)
	if !ok {
		return s
	}

	s.blocks = state.Blocks
	s.nextID = state.NextID
	s.initialized = state.HasInitialized

	for i := range s.blocks {
		s.blocks[i].Serial = s.nextSerial()
	}

	if log != nil {
		log.Info("Restored %d test blocks (next id %d)", len(s.blocks), s.nextID)
	}

	return s
}

// AddBlock appends a block seeded from the default preset and returns its id.
func (s *Store) AddBlock() int {
	var id int

	s.mutate(true, func() bool {
		id = s.addLocked()

		return true
	})

	return id
}

// RemoveBlock deletes the block with id. Unknown ids are ignored.
func (s *Store) RemoveBlock(id int) {
	s.mutate(true, func() bool {
		index := s.indexLocked(id)
		if index < 0 {
			return false
		}

		s.blocks = slices.Delete(s.blocks, index, index+1)

		return true
	})
}

// UpdateBlock merges patch into the block with id. Any parameter in the
// patch marks the block as custom; a text-only patch keeps the preset label.
func (s *Store) UpdateBlock(id int, patch Patch) {
	s.mutate(true, func() bool {
		index := s.indexLocked(id)
		if index < 0 {
			return false
		}

		s.blocks[index] = merge(s.blocks[index], patch)

		return true
	})
}

// ApplyPreset overwrites all parameters of the block with the named preset.
// Unknown presets and unknown ids are ignored.
func (s *Store) ApplyPreset(id int, presetName string) {
	preset, ok := params.Lookup(presetName)
	if !ok {
		if s.log != nil {
			s.log.Warn("Ignoring unknown preset %q for block %d", presetName, id)
		}

		return
	}

	values := preset.Clamped()

	s.mutate(true, func() bool {
		index := s.indexLocked(id)
		if index < 0 {
			return false
		}

		s.blocks[index].Set = values
		s.blocks[index].Preset = presetName

		return true
	})
}

// ClearAll removes every block and resets the id counter and the
// initialized flag.
func (s *Store) ClearAll() {
	s.mutate(true, func() bool {
		s.blocks = nil
		s.nextID = initialNextID
		s.initialized = false

		return true
	})
}

// EnsureInitialBlock adds the first block of a fresh session. It does
// nothing once the store has been initialized or already holds blocks.
func (s *Store) EnsureInitialBlock() {
	s.mutate(true, func() bool {
		if s.initialized || len(s.blocks) > 0 {
			return false
		}

		s.addLocked()
		s.initialized = true

		return true
	})
}

// SetStatus replaces the session status of a block. Status is not part of
// the snapshot, so this notifies listeners without writing to storage.
func (s *Store) SetStatus(id int, status Status) {
	s.mutate(false, func() bool {
		index := s.indexLocked(id)
		if index < 0 {
			return false
		}

		s.blocks[index].Status = status

		return true
	})
}

// SetStatusOf replaces the status of the block instance ref. It reports
// false, and changes nothing, when that instance is no longer in the store.
func (s *Store) SetStatusOf(ref Ref, status Status) bool {
	var applied bool

	s.mutate(false, func() bool {
		index := s.refIndexLocked(ref)
		if index < 0 {
			return false
		}

		s.blocks[index].Status = status
		applied = true

		return true
	})

	return applied
}

// Holds reports whether the block instance ref is still in the store.
func (s *Store) Holds(ref Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refIndexLocked(ref) >= 0
}

// Block returns a copy of the block with id.
func (s *Store) Block(id int) (TestBlock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexLocked(id)
	if index < 0 {
		return TestBlock{}, false
	}

	return s.blocks[index], true
}

// Blocks returns a copy of the blocks in order.
func (s *Store) Blocks() []TestBlock {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.blocks)
}

// State returns a copy of the committed state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stateLocked()
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. Listeners run on the goroutine that made the change, one
// state at a time in revision order. They must not block or modify the store.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.listeners, id)
	}
}

// mutate runs fn under the lock. When fn reports a change the new state is
// persisted (if requested) and then delivered to listeners outside the lock.
func (s *Store) mutate(persist bool, fn func() bool) {
	s.mu.Lock()

	if !fn() {
		s.mu.Unlock()

		return
	}

	s.revision++
	state := s.stateLocked()

	if persist {
		s.saveLocked(state)
	}

	listeners := make([]Listener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}

	s.mu.Unlock()

	s.deliver(state, listeners)
}

// deliver waits until every earlier revision has reached the listeners and
// then hands them state.
func (s *Store) deliver(state State, listeners []Listener) {
	s.delivery.Lock()
	for s.delivered+1 != state.Revision {
		s.turn.Wait()
	}
	s.delivery.Unlock()

	for _, listener := range listeners {
		listener(state)
	}

	s.delivery.Lock()
	s.delivered = state.Revision
	s.turn.Broadcast()
	s.delivery.Unlock()
}

// saveLocked writes state while the lock is held so snapshots reach storage
// in mutation order. Failures are logged; the in-memory state stays valid.
func (s *Store) saveLocked(state State) {
	if s.persister == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := s.persister.Save(ctx, state)
	if err != nil && s.log != nil {
		s.log.Error("Failed to persist test blocks: %v", err)
	}
}

// addLocked appends a block seeded from the default preset. Ids come from
// the counter only, so a removed id is never handed out again.
func (s *Store) addLocked() int {
	id := s.nextID
	s.nextID++

	preset, _ := params.Lookup(params.DefaultPreset)
	s.blocks = append(s.blocks, TestBlock{
		ID:     id,
		Text:   "",
		Set:    preset.Clamped(),
		Preset: params.DefaultPreset,
		Status: Status{},
		Serial: s.nextSerial(),
	})

	return id
}

func (s *Store) nextSerial() uint64 {
	s.serial++

	return s.serial
}

func (s *Store) stateLocked() State {
	return State{
		Blocks:         append(make([]TestBlock, 0, len(s.blocks)), s.blocks...),
		NextID:         s.nextID,
		HasInitialized: s.initialized,
		Revision:       s.revision,
	}
}

func (s *Store) indexLocked(id int) int {
	return slices.IndexFunc(s.blocks, func(block TestBlock) bool {
		return block.ID == id
	})
}

func (s *Store) refIndexLocked(ref Ref) int {
	index := s.indexLocked(ref.ID)
	if index < 0 || s.blocks[index].Serial != ref.Serial {
		return -1
	}

	return index
}
