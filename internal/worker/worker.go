// Package worker provides a NATS worker that synthesizes blocks on request.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
)

const handleMessageTimeout = 60 * time.Second

// ErrInvalidBlockID indicates a request without a positive block id.
var ErrInvalidBlockID = errors.New("block_id must be positive")

// Generator synthesizes a block and returns the key of the stored audio.
type Generator interface {
	Generate(ctx context.Context, id int) (string, error)
}

// GenerateRequest asks for the block with BlockID to be synthesized.
type GenerateRequest struct {
	Header  events.EventHeader `json:"header"`
	BlockID int                `json:"block_id"`
}

// GenerateReply answers a GenerateRequest. Error is empty on success.
type GenerateReply struct {
	Header   events.EventHeader `json:"header"`
	BlockID  int                `json:"block_id"`
	AudioKey string             `json:"audio_key,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// NatsWorker listens for generate requests on a NATS subject.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	generator      Generator
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	generator Generator,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		generator:      generator,
		log:            log,
	}
}

// Run subscribes and blocks until ctx is cancelled, then drains the
// subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for generate requests on '%s'", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	request, err := parseRequest(msg.Data)
	if err != nil {
		w.log.Error("Failed to parse generate request: %v", err)
		w.reply(msg, GenerateReply{Header: request.Header, BlockID: request.BlockID, Error: err.Error()})

		return
	}

	reply := GenerateReply{Header: request.Header, BlockID: request.BlockID}

	audioKey, err := w.generator.Generate(ctx, request.BlockID)
	if err != nil {
		w.log.Error("Failed to generate block %d for workflow %s: %v",
			request.BlockID, request.Header.WorkflowID, err)
		reply.Error = err.Error()
	} else {
		reply.AudioKey = audioKey
	}

	w.reply(msg, reply)
}

// reply responds when the sender asked for an answer.
func (w *NatsWorker) reply(msg *nats.Msg, reply GenerateReply) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply for block %d: %v", reply.BlockID, err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply for block %d: %v", reply.BlockID, err)
	}
}

func parseRequest(data []byte) (GenerateRequest, error) {
	var request GenerateRequest

	err := json.Unmarshal(data, &request)
	if err != nil {
		return GenerateRequest{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if request.BlockID <= 0 {
		return request, fmt.Errorf("%w: got %d", ErrInvalidBlockID, request.BlockID)
	}

	return request, nil
}
