// Package api exposes the block store and synthesis runner over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-workbench/internal/audio"
	"github.com/book-expert/tts-workbench/internal/params"
	"github.com/book-expert/tts-workbench/internal/store"
	"github.com/book-expert/tts-workbench/internal/synth"
	"github.com/book-expert/tts-workbench/internal/workbench"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const (
	headerContentType        = "Content-Type"
	headerContentDisposition = "Content-Disposition"
	contentTypeJSON          = "application/json"
	maxPatchBody             = 1 << 20
	healthTimeout            = 5 * time.Second
)

// HealthChecker reports the state of the remote TTS service.
type HealthChecker interface {
	Health(ctx context.Context) (synth.Health, error)
}

// BlockView is a block as returned by the API, including its session status.
type BlockView struct {
	store.TestBlock
	Status store.Status `json:"status"`
}

// StateView is the store content as returned by the API.
type StateView struct {
	Blocks         []BlockView `json:"blocks"`
	NextID         int         `json:"nextId"`
	HasInitialized bool        `json:"_hasInitialized"`
	Revision       uint64      `json:"revision"`
}

// NewStateView converts a store state for output.
func NewStateView(state store.State) StateView {
	blocks := make([]BlockView, 0, len(state.Blocks))
	for _, block := range state.Blocks {
		blocks = append(blocks, newBlockView(block))
	}

	return StateView{
		Blocks:         blocks,
		NextID:         state.NextID,
		HasInitialized: state.HasInitialized,
		Revision:       state.Revision,
	}
}

func newBlockView(block store.TestBlock) BlockView {
	return BlockView{TestBlock: block, Status: block.Status}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Server serves the workbench API.
type Server struct {
	store  *store.Store
	runner *workbench.Runner
	health HealthChecker
	log    *logger.Logger
}

// NewServer creates a Server. health may be nil.
func NewServer(blocks *store.Store, runner *workbench.Runner, health HealthChecker, log *logger.Logger) *Server {
	return &Server{store: blocks, runner: runner, health: health, log: log}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/presets", s.handlePresets)
		r.Get("/state", s.handleState)
		r.Get("/ws", s.handleFeed)

		r.Route("/blocks", func(r chi.Router) {
			r.Post("/", s.handleAddBlock)
			r.Delete("/", s.handleClearAll)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetBlock)
				r.Patch("/", s.handleUpdateBlock)
				r.Delete("/", s.handleRemoveBlock)
				r.Post("/preset/{name}", s.handleApplyPreset)
				r.Post("/generate", s.handleGenerate)
				r.Get("/audio", s.handleAudio)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"blocks":    len(s.store.Blocks()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		upstream, err := s.health.Health(ctx)
		if err != nil {
			body["tts_service"] = map[string]any{"status": "unreachable", "error": err.Error()}
		} else {
			body["tts_service"] = upstream
		}
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handlePresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, params.Presets())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewStateView(s.store.State()))
}

func (s *Server) handleAddBlock(w http.ResponseWriter, _ *http.Request) {
	id := s.store.AddBlock()

	block, _ := s.store.Block(id)
	writeJSON(w, http.StatusCreated, newBlockView(block))
}

func (s *Server) handleClearAll(w http.ResponseWriter, _ *http.Request) {
	s.store.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	block, ok := s.blockFromPath(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, newBlockView(block))
}

func (s *Server) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	block, ok := s.blockFromPath(w, r)
	if !ok {
		return
	}

	var patch store.Patch

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatchBody))
	decoder.DisallowUnknownFields()

	err := decoder.Decode(&patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid patch", err.Error())

		return
	}

	s.store.UpdateBlock(block.ID, patch)
	s.writeBlock(w, block.ID)
}

func (s *Server) handleRemoveBlock(w http.ResponseWriter, r *http.Request) {
	block, ok := s.blockFromPath(w, r)
	if !ok {
		return
	}

	s.store.RemoveBlock(block.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	block, ok := s.blockFromPath(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	if !params.IsPreset(name) {
		writeError(w, http.StatusBadRequest, "unknown preset", name)

		return
	}

	s.store.ApplyPreset(block.ID, name)
	s.writeBlock(w, block.ID)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	block, ok := s.blockFromPath(w, r)
	if !ok {
		return
	}

	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "synthesis is not configured", "")

		return
	}

	audioKey, err := s.runner.Generate(r.Context(), block.ID)
	if err != nil {
		s.logError("Generate for block %d failed: %v", block.ID, err)
		writeError(w, generateStatus(err), "generation failed", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"block_id": block.ID, "audio_key": audioKey})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	block, ok := s.blockFromPath(w, r)
	if !ok {
		return
	}

	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "synthesis is not configured", "")

		return
	}

	format, err := audio.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid format", err.Error())

		return
	}

	export, err := s.runner.Export(r.Context(), block.ID, format)
	if err != nil {
		writeError(w, exportStatus(err), "export failed", err.Error())

		return
	}

	w.Header().Set(headerContentType, export.ContentType)
	w.Header().Set(headerContentDisposition, `attachment; filename="`+export.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

// blockFromPath resolves the {id} parameter, writing 400 or 404 when it
// does not name a block.
func (s *Server) blockFromPath(w http.ResponseWriter, r *http.Request) (store.TestBlock, bool) {
	raw := chi.URLParam(r, "id")

	id, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block id", raw)

		return store.TestBlock{}, false
	}

	block, ok := s.store.Block(id)
	if !ok {
		writeError(w, http.StatusNotFound, "block not found", raw)

		return store.TestBlock{}, false
	}

	return block, true
}

// writeBlock answers with the current block, or 404 when it was removed
// concurrently.
func (s *Server) writeBlock(w http.ResponseWriter, id int) {
	block, ok := s.store.Block(id)
	if !ok {
		writeError(w, http.StatusNotFound, "block not found", strconv.Itoa(id))

		return
	}

	writeJSON(w, http.StatusOK, newBlockView(block))
}

func (s *Server) logError(format string, args ...any) {
	if s.log != nil {
		s.log.Error(format, args...)
	}
}

func generateStatus(err error) int {
	var serviceErr *synth.ServiceError

	switch {
	case errors.Is(err, workbench.ErrBlockNotFound):
		return http.StatusNotFound
	case errors.Is(err, workbench.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, workbench.ErrAlreadyGenerating):
		return http.StatusConflict
	case errors.Is(err, workbench.ErrBlockRemoved):
		return http.StatusGone
	case errors.As(err, &serviceErr) && serviceErr.StatusCode == http.StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func exportStatus(err error) int {
	switch {
	case errors.Is(err, workbench.ErrBlockNotFound), errors.Is(err, workbench.ErrNoAudio):
		return http.StatusNotFound
	case errors.Is(err, workbench.ErrTranscoderUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, errorBody{Error: message, Message: detail})
}
