package main

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/tts-workbench/internal/audio"
	"github.com/book-expert/tts-workbench/internal/config"
	"github.com/book-expert/tts-workbench/internal/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("synth-client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	return fs
}

// TestMainFlags verifies that command-line flags are parsed correctly.
func TestMainFlags(t *testing.T) {
	t.Parallel()

	flags := parseFlags(newFlagSet(), []string{
		"--text", "Hello, world!",
		"--preset", "klar",
		"--param", "temperature=0.5",
		"--param", "pitchScale=1.2",
		"--format", "mp3",
		"--url", "http://tts:5000",
	})

	assert.Equal(t, "Hello, world!", flags.text)
	assert.Equal(t, "klar", flags.preset)
	assert.Equal(t, paramOverrides{"temperature=0.5", "pitchScale=1.2"}, flags.params)
	assert.Equal(t, "mp3", flags.format)
	assert.Equal(t, "http://tts:5000", flags.url)

	defaults := parseFlags(newFlagSet(), nil)
	assert.Equal(t, params.DefaultPreset, defaults.preset)
	assert.Equal(t, "wav", defaults.format)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	values, format, err := resolve(appFlags{
		text:   "Moin",
		preset: params.PresetErzaehler,
		params: paramOverrides{"temperature=7", "noiseScale= 0.25"},
		format: "mp3",
	})
	require.NoError(t, err)
	assert.Equal(t, audio.FormatMP3, format)
	assert.InDelta(t, 1.0, values.Temperature, 1e-12, "overrides are clamped")
	assert.InDelta(t, 0.25, values.NoiseScale, 1e-12)
	assert.InDelta(t, 1.03, values.LengthScale, 1e-12)
}

// TestArgumentValidation verifies required and malformed arguments.
func TestArgumentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   appFlags
		wantErr error
	}{
		{"missing text", appFlags{preset: "warm", format: "wav"}, ErrTextRequired},
		{"blank text", appFlags{text: "  ", preset: "warm", format: "wav"}, ErrTextRequired},
		{"unknown preset", appFlags{text: "x", preset: "custom", format: "wav"}, ErrInvalidArgument},
		{"param without value", appFlags{text: "x", preset: "warm", params: paramOverrides{"temperature"}, format: "wav"}, ErrInvalidArgument},
		{"unknown param", appFlags{text: "x", preset: "warm", params: paramOverrides{"volume=1"}, format: "wav"}, ErrInvalidArgument},
		{"non-numeric param", appFlags{text: "x", preset: "warm", params: paramOverrides{"temperature=hot"}, format: "wav"}, ErrInvalidArgument},
		{"unknown format", appFlags{text: "x", preset: "warm", format: "ogg"}, audio.ErrUnknownFormat},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := resolve(testCase.flags)
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

var errNoProjectConfig = errors.New("project.toml not found")

func discovered(cfg *config.Config, calls *int) func() (*config.Config, error) {
	return func() (*config.Config, error) {
		*calls++

		return cfg, nil
	}
}

func TestLoadConfig_UsesSharedLookupWithoutConfigFlag(t *testing.T) {
	t.Parallel()

	shared := &config.Config{}
	shared.Service.URL = "http://from-project:8000"
	shared.Export.FilePrefix = "projekt"
	shared.ApplyDefaults()

	var calls int

	cfg, err := loadConfig(appFlags{}, discovered(shared, &calls))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "http://from-project:8000", cfg.Service.URL)
	assert.Equal(t, "projekt", cfg.Export.FilePrefix)

	cfg, err = loadConfig(appFlags{url: "http://tts:5000"}, discovered(shared, &calls))
	require.NoError(t, err)
	assert.Equal(t, "http://tts:5000", cfg.Service.URL)
	assert.Equal(t, 2, calls)

	_, err = loadConfig(appFlags{}, func() (*config.Config, error) {
		return nil, errNoProjectConfig
	})
	require.ErrorIs(t, err, errNoProjectConfig)
}

func TestLoadConfig_ConfigFlagSkipsLookup(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "workbench.toml")
	require.NoError(t, os.WriteFile(path, []byte("[service]\nurl = \"http://file:9000\"\n"), 0o600))

	var calls int

	cfg, err := loadConfig(appFlags{config: path, url: "http://tts:5000"}, discovered(nil, &calls))
	require.NoError(t, err)
	assert.Zero(t, calls)
	assert.Equal(t, "http://tts:5000", cfg.Service.URL)
	assert.Equal(t, "plattdeutsch", cfg.Export.FilePrefix)

	_, err = loadConfig(appFlags{config: "/nonexistent/workbench.toml"}, discovered(nil, &calls))
	require.Error(t, err)
	assert.Zero(t, calls)
}
