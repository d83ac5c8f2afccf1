// Package worker_test tests the NATS generate worker.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-workbench/internal/core"
	"github.com/book-expert/tts-workbench/internal/store"
	"github.com/book-expert/tts-workbench/internal/workbench"
	"github.com/book-expert/tts-workbench/internal/worker"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSubject = "tts.blocks.generate"

var errMockGenerate = errors.New("mock generate error")

// mockGenerator records the ids it was asked to generate.
type mockGenerator struct {
	mu   sync.Mutex
	ids  []int
	fail bool
}

func (m *mockGenerator) Generate(_ context.Context, id int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ids = append(m.ids, id)

	if m.fail {
		return "", errMockGenerate
	}

	return "audio-key.wav", nil
}

func (m *mockGenerator) calls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]int(nil), m.ids...)
}

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(_ context.Context, text string, _ core.SynthesisParams) ([]byte, error) {
	return []byte("RIFF" + text), nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, core.ErrObjectNotFound
	}

	return data, nil
}

func (m *memObjects) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = data

	return nil
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

// startWorker runs a worker for generator until the test ends.
func startWorker(t *testing.T, generator worker.Generator) *nats.Conn {
	t.Helper()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	workerInstance := worker.NewNatsWorker(natsConnection, testSubject, generator, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errChan, "worker.Run should not error on graceful shutdown")
	})

	return natsConnection
}

// request retries until the worker's subscription is in place.
func request(t *testing.T, natsConnection *nats.Conn, payload any) worker.GenerateReply {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var replyMsg *nats.Msg

	require.Eventually(t, func() bool {
		replyMsg, err = natsConnection.Request(testSubject, data, time.Second)

		return !errors.Is(err, nats.ErrNoResponders)
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var reply worker.GenerateReply

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))

	return reply
}

func newHeader() events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}
}

func TestMessageHandler_Success(t *testing.T) {
	t.Parallel()

	generator := &mockGenerator{}
	natsConnection := startWorker(t, generator)

	testRequest := worker.GenerateRequest{Header: newHeader(), BlockID: 3}
	reply := request(t, natsConnection, testRequest)

	assert.Empty(t, reply.Error)
	assert.Equal(t, "audio-key.wav", reply.AudioKey)
	assert.Equal(t, 3, reply.BlockID)
	assert.Equal(t, testRequest.Header.WorkflowID, reply.Header.WorkflowID)
	assert.Equal(t, []int{3}, generator.calls())
}

func TestMessageHandler_GenerateFailure(t *testing.T) {
	t.Parallel()

	generator := &mockGenerator{fail: true}
	natsConnection := startWorker(t, generator)

	reply := request(t, natsConnection, worker.GenerateRequest{Header: newHeader(), BlockID: 1})

	assert.Contains(t, reply.Error, errMockGenerate.Error())
	assert.Empty(t, reply.AudioKey)
}

func TestMessageHandler_InvalidRequest(t *testing.T) {
	t.Parallel()

	generator := &mockGenerator{}
	natsConnection := startWorker(t, generator)

	reply := request(t, natsConnection, map[string]any{"block_id": 0})
	assert.Contains(t, reply.Error, worker.ErrInvalidBlockID.Error())

	reply = request(t, natsConnection, "not an object")
	assert.NotEmpty(t, reply.Error)

	assert.Empty(t, generator.calls())
}

func TestMessageHandler_DrivesWorkbench(t *testing.T) {
	t.Parallel()

	blocks := store.New(context.Background(), nil, nil)
	id := blocks.AddBlock()
	blocks.UpdateBlock(id, store.TextPatch("Wat mookst du?"))

	objects := &memObjects{objects: make(map[string][]byte)}
	runner := workbench.New(blocks, stubSynthesizer{}, objects, nil, workbench.Options{})
	natsConnection := startWorker(t, runner)

	reply := request(t, natsConnection, worker.GenerateRequest{Header: newHeader(), BlockID: id})
	require.Empty(t, reply.Error)

	data, err := objects.Download(context.Background(), reply.AudioKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFWat mookst du?"), data)

	block, ok := blocks.Block(id)
	require.True(t, ok)
	assert.Equal(t, reply.AudioKey, block.Status.AudioKey)

	reply = request(t, natsConnection, worker.GenerateRequest{Header: newHeader(), BlockID: id + 100})
	assert.Contains(t, reply.Error, workbench.ErrBlockNotFound.Error())
}
