// Package synth is the client for the remote text-to-speech service.
//
// The service accepts a JSON body with the text and four acoustic
// parameters and answers with encoded audio, or with a JSON object carrying
// an "error" string when synthesis fails.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/tts-workbench/internal/core"
	"github.com/book-expert/tts-workbench/internal/params"
)

// API endpoints and paths.
const (
	apiSynthesize = "/api/tts"
	apiHealth     = "/api/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
	audioTypePrefix   = "audio/"
)

// Error messages.
const (
	errFmtUnexpectedContentType = "%w: expected audio/*, got %q"
	errFmtServiceNonOKStatus    = "TTS service returned non-OK status: %s, body: %s"
)

// maxErrorBody bounds how much of a non-JSON error body is kept.
const maxErrorBody = 4096

var (
	// ErrTextEmpty is returned when the text is empty after trimming.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrUnexpectedContentType is returned when a 200 response is not audio.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrEmptyAudio is returned when the service answers 200 with no body.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// Request is the JSON body of a synthesis request. Only these four
// parameters are understood by the service; the remaining store parameters
// stay on the client.
type Request struct {
	Text        string  `json:"text"`
	Temperature float64 `json:"temperature"`
	LengthScale float64 `json:"length_scale"`
	NoiseScale  float64 `json:"noise_scale"`
	NoiseScaleW float64 `json:"noise_scale_w"`
}

// NewRequest builds a request from text and a parameter snapshot.
func NewRequest(text string, values params.Set) Request {
	return Request{
		Text:        strings.TrimSpace(text),
		Temperature: values.Temperature,
		LengthScale: values.LengthScale,
		NoiseScale:  values.NoiseScale,
		NoiseScaleW: values.NoiseScaleW,
	}
}

// WireParams extracts the transmitted subset of a parameter set.
func WireParams(values params.Set) core.SynthesisParams {
	return core.SynthesisParams{
		Temperature: values.Temperature,
		LengthScale: values.LengthScale,
		NoiseScale:  values.NoiseScale,
		NoiseScaleW: values.NoiseScaleW,
	}
}

// ServiceError is a failure reported by the service itself.
type ServiceError struct {
	StatusCode int
	Message    string `json:"error"`
	Detail     string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("TTS service error (%d): %s", e.StatusCode, e.Message)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	if e.Code != "" {
		msg += " (code: " + e.Code + ")"
	}

	return msg
}

// Health is the service health report.
type Health struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelName   string `json:"model_name,omitempty"`
}

// HTTPClient talks to the TTS service over HTTP.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient creates a client for the service at baseURL
// (e.g. "http://127.0.0.1:5000"). The timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize implements core.Synthesizer.
func (c *HTTPClient) Synthesize(ctx context.Context, text string, cfg core.SynthesisParams) ([]byte, error) {
	return c.GenerateSpeech(ctx, Request{
		Text:        strings.TrimSpace(text),
		Temperature: cfg.Temperature,
		LengthScale: cfg.LengthScale,
		NoiseScale:  cfg.NoiseScale,
		NoiseScaleW: cfg.NoiseScaleW,
	})
}

// GenerateSpeech sends req and returns the encoded audio.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiSynthesize,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to TTS service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get(headerContentType))
	if !strings.HasPrefix(mediaType, audioTypePrefix) {
		return nil, fmt.Errorf(errFmtUnexpectedContentType, ErrUnexpectedContentType, resp.Header.Get(headerContentType))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// Health queries the service health endpoint. A service that answers but
// has no model loaded is reported through Health.ModelLoaded, not an error.
func (c *HTTPClient) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return Health{}, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{}, fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	var health Health

	err = json.NewDecoder(resp.Body).Decode(&health)
	if err != nil {
		return Health{}, fmt.Errorf("failed to decode health response: %w", err)
	}

	return health, nil
}

// parseErrorResponse decodes the service's {"error": ...} body, falling back
// to the raw body when it is not JSON.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	serviceErr := &ServiceError{StatusCode: resp.StatusCode}

	err := json.Unmarshal(body, serviceErr)
	if err == nil && serviceErr.Message != "" {
		return serviceErr
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, strings.TrimSpace(string(body)))
}
