package audio_test

import (
	"context"
	"testing"
	"time"

	"github.com/book-expert/tts-workbench/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want audio.Format
	}{
		{"", audio.FormatWAV},
		{"wav", audio.FormatWAV},
		{" MP3 ", audio.FormatMP3},
	}

	for _, tc := range testCases {
		got, err := audio.ParseFormat(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := audio.ParseFormat("flac")
	require.ErrorIs(t, err, audio.ErrUnknownFormat)
}

func TestFormat_ContentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "audio/wav", audio.FormatWAV.ContentType())
	assert.Equal(t, "audio/mpeg", audio.FormatMP3.ContentType())
}

func TestExportFileName(t *testing.T) {
	t.Parallel()

	at := time.UnixMilli(1718000000123)

	assert.Equal(t, "plattdeutsch-1718000000123.wav", audio.ExportFileName("", at, audio.FormatWAV))
	assert.Equal(t, "sample-1718000000123.mp3", audio.ExportFileName("sample", at, audio.FormatMP3))
}

func TestFFmpegTranscoder_Args(t *testing.T) {
	t.Parallel()

	transcoder := audio.NewFFmpegTranscoder("", 0, nil)
	args := transcoder.Args("in.wav", "out.mp3", audio.FormatMP3)

	assert.Contains(t, args, "192k")
	assert.Contains(t, args, "libmp3lame")
	assert.Equal(t, "out.mp3", args[len(args)-1])

	custom := audio.NewFFmpegTranscoder("/opt/ffmpeg", 128, nil)
	assert.Contains(t, custom.Args("in.wav", "out.mp3", audio.FormatMP3), "128k")
	assert.NotContains(t, custom.Args("in.wav", "out.wav", audio.FormatWAV), "-b:a")
}

func TestFFmpegTranscoder_Transcode(t *testing.T) {
	t.Parallel()

	transcoder := audio.NewFFmpegTranscoder("/nonexistent/ffmpeg", 0, nil)
	ctx := context.Background()

	_, err := transcoder.Transcode(ctx, nil, "wav", "mp3")
	require.ErrorIs(t, err, audio.ErrEmptyInput)

	same, err := transcoder.Transcode(ctx, []byte("RIFF"), "wav", "wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), same)

	_, err = transcoder.Transcode(ctx, []byte("ID3"), "mp3", "wav")
	require.ErrorIs(t, err, audio.ErrUnsupportedConversion)

	_, err = transcoder.Transcode(ctx, []byte("RIFF"), "wav", "ogg")
	require.ErrorIs(t, err, audio.ErrUnknownFormat)

	_, err = transcoder.Transcode(ctx, []byte("RIFF"), "wav", "mp3")
	require.Error(t, err, "a missing ffmpeg binary must surface as an error")
}
