package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/book-expert/logger"
)

// DefaultBitrateKbps is the MP3 bitrate used when none is configured.
const DefaultBitrateKbps = 192

// DefaultFFmpegPath is looked up on PATH.
const DefaultFFmpegPath = "ffmpeg"

var (
	// ErrEmptyInput is returned when there is nothing to transcode.
	ErrEmptyInput = errors.New("no audio data to transcode")
	// ErrUnsupportedConversion is returned for a source format other than WAV.
	ErrUnsupportedConversion = errors.New("unsupported conversion")
)

// FFmpegTranscoder converts WAV audio by running the ffmpeg binary.
type FFmpegTranscoder struct {
	path        string
	bitrateKbps int
	log         *logger.Logger
}

// NewFFmpegTranscoder creates a transcoder. Zero values select the defaults.
func NewFFmpegTranscoder(path string, bitrateKbps int, log *logger.Logger) *FFmpegTranscoder {
	if path == "" {
		path = DefaultFFmpegPath
	}

	if bitrateKbps <= 0 {
		bitrateKbps = DefaultBitrateKbps
	}

	return &FFmpegTranscoder{path: path, bitrateKbps: bitrateKbps, log: log}
}

// Args returns the ffmpeg arguments for converting input to output as mono
// audio in the target format.
func (t *FFmpegTranscoder) Args(input, output string, to Format) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", input, "-ac", "1"}

	if to == FormatMP3 {
		args = append(args, "-codec:a", "libmp3lame", "-b:a", strconv.Itoa(t.bitrateKbps)+"k")
	}

	return append(args, output)
}

// Transcode implements core.Transcoder. Converting a format to itself
// returns the input unchanged.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, data []byte, from, to string) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	source, err := ParseFormat(from)
	if err != nil {
		return nil, err
	}

	target, err := ParseFormat(to)
	if err != nil {
		return nil, err
	}

	if source == target {
		return data, nil
	}

	if source != FormatWAV {
		return nil, fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, source, target)
	}

	workDir, err := os.MkdirTemp("", "tts-export-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for transcoding: %w", err)
	}

	defer func() {
		removeErr := os.RemoveAll(workDir)
		if removeErr != nil && t.log != nil {
			t.log.Warn("Failed to remove temp dir '%s': %v", workDir, removeErr)
		}
	}()

	input := filepath.Join(workDir, "input."+source.Extension())
	output := filepath.Join(workDir, "output."+target.Extension())

	err = os.WriteFile(input, data, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to write transcoder input: %w", err)
	}

	// #nosec G204 -- the binary comes from configuration and arguments are built here
	cmd := exec.CommandContext(ctx, t.path, t.Args(input, output, target)...)

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	err = cmd.Run()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg execution failed: %w - output: %s", err, stderr.String())
	}

	converted, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcoder output: %w", err)
	}

	return converted, nil
}
