// Package audio provides export formats, file naming and transcoding for
// synthesized audio.
package audio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Format represents a supported export format.
type Format string

// Supported formats. The TTS service always produces WAV.
const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// Content types.
const (
	contentTypeWAV = "audio/wav"
	contentTypeMP3 = "audio/mpeg"
)

// DefaultFilePrefix is the export file name prefix.
const DefaultFilePrefix = "plattdeutsch"

// ErrUnknownFormat is returned for a format other than wav or mp3.
var ErrUnknownFormat = errors.New("unknown audio format")

// ParseFormat parses a format name. The empty string selects WAV.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatWAV:
		return FormatWAV, nil
	case FormatMP3:
		return FormatMP3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatMP3 {
		return contentTypeMP3
	}

	return contentTypeWAV
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// ExportFileName returns "<prefix>-<unix millis>.<ext>".
func ExportFileName(prefix string, at time.Time, format Format) string {
	if prefix == "" {
		prefix = DefaultFilePrefix
	}

	return prefix + "-" + strconv.FormatInt(at.UnixMilli(), 10) + "." + format.Extension()
}
