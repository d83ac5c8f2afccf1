// Command synth-client synthesizes one text with a preset and writes the
// audio to a file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-workbench/internal/audio"
	"github.com/book-expert/tts-workbench/internal/config"
	"github.com/book-expert/tts-workbench/internal/params"
	"github.com/book-expert/tts-workbench/internal/synth"
)

// Flag descriptions.
const (
	flagTextDesc   = "Text to convert to speech"
	flagPresetDesc = "Preset name: warm, klar, dynamisch or erzaehler"
	flagParamDesc  = "Parameter override name=value, repeatable (e.g. temperature=0.7)"
	flagOutputDesc = "Output file path (defaults to <prefix>-<millis>.<format>)"
	flagFormatDesc = "Output format: wav or mp3"
	flagConfigDesc = "Path to a TOML config file (defaults to the shared configurator lookup)"
	flagURLDesc    = "TTS service URL (overrides the config file)"
	flagHealthDesc = "Check TTS service health and exit"
)

// Flag names.
const (
	flagText   = "text"
	flagPreset = "preset"
	flagParam  = "param"
	flagOutput = "output"
	flagFormat = "format"
	flagConfig = "config"
	flagURL    = "url"
	flagHealth = "health"
)

// Messages.
const (
	errTextRequired      = "--text must be provided"
	errFmtUnknownPreset  = "unknown preset %q"
	errFmtInvalidParam   = "invalid --param %q: expected name=value"
	errFmtUnknownParam   = "unknown parameter %q"
	logGenerated         = "Generated: %s\n"
	logServiceHealthy    = "TTS service status: %s, model loaded: %t\n"
	logFileNameDefault   = "synth-client.log"
	healthCheckTimeout   = 10 * time.Second
	outputFilePermission = 0o644
)

var (
	// ErrTextRequired is returned when no text was given.
	ErrTextRequired = errors.New(errTextRequired)
	// ErrInvalidArgument is returned for malformed flag values.
	ErrInvalidArgument = errors.New("invalid argument")
)

// paramOverrides collects repeated --param flags.
type paramOverrides []string

func (p *paramOverrides) String() string {
	return strings.Join(*p, ",")
}

func (p *paramOverrides) Set(value string) error {
	*p = append(*p, value)

	return nil
}

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text   string
	preset string
	params paramOverrides
	output string
	format string
	config string
	url    string
	health bool
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags(flag.CommandLine, os.Args[1:])

	clientLog, err := logger.New(os.TempDir(), logFileNameDefault)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer clientLog.Close()

	cfg, err := loadConfig(flags, func() (*config.Config, error) {
		return config.Load(clientLog)
	})
	if err != nil {
		clientLog.Error("Failed to load configuration: %v", err)

		return err
	}

	client := synth.NewHTTPClient(cfg.Service.URL, cfg.Service.Timeout())

	if flags.health {
		return checkHealth(client)
	}

	values, format, err := resolve(flags)
	if err != nil {
		flag.Usage()

		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.Timeout())
	defer cancel()

	clientLog.Info("Synthesizing %d characters with preset %s", len(flags.text), flags.preset)

	data, err := client.GenerateSpeech(ctx, synth.NewRequest(flags.text, values))
	if err != nil {
		clientLog.Error("Failed to synthesize text: %v", err)

		return fmt.Errorf("failed to synthesize text: %w", err)
	}

	if format != audio.FormatWAV {
		transcoder := audio.NewFFmpegTranscoder(cfg.Export.FFmpegPath, cfg.Export.MP3BitrateKbps, clientLog)

		data, err = transcoder.Transcode(ctx, data, string(audio.FormatWAV), string(format))
		if err != nil {
			clientLog.Error("Failed to convert audio: %v", err)

			return fmt.Errorf("failed to convert audio: %w", err)
		}
	}

	outputPath := flags.output
	if outputPath == "" {
		outputPath = audio.ExportFileName(cfg.Export.FilePrefix, time.Now(), format)
	}

	err = os.WriteFile(outputPath, data, outputFilePermission)
	if err != nil {
		return fmt.Errorf("failed to write '%s': %w", outputPath, err)
	}

	clientLog.Info("Wrote %d bytes to %s", len(data), outputPath)
	fmt.Printf(logGenerated, outputPath)

	return nil
}

// parseFlags defines and parses command-line flags on fs.
func parseFlags(fs *flag.FlagSet, args []string) appFlags {
	var flags appFlags

	fs.StringVar(&flags.text, flagText, "", flagTextDesc)
	fs.StringVar(&flags.preset, flagPreset, params.DefaultPreset, flagPresetDesc)
	fs.Var(&flags.params, flagParam, flagParamDesc)
	fs.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	fs.StringVar(&flags.format, flagFormat, string(audio.FormatWAV), flagFormatDesc)
	fs.StringVar(&flags.config, flagConfig, "", flagConfigDesc)
	fs.StringVar(&flags.url, flagURL, "", flagURLDesc)
	fs.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	_ = fs.Parse(args)

	return flags
}

// loadConfig reads --config when given and otherwise uses discover, the
// lookup the service itself uses. --url overrides the loaded service URL.
func loadConfig(flags appFlags, discover func() (*config.Config, error)) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if flags.config != "" {
		cfg, err = config.LoadFile(flags.config)
	} else {
		cfg, err = discover()
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if flags.url != "" {
		cfg.Service.URL = flags.url
	}

	return cfg, nil
}

// resolve validates the synthesis flags and returns the parameter values
// and output format they select.
func resolve(flags appFlags) (params.Set, audio.Format, error) {
	if strings.TrimSpace(flags.text) == "" {
		return params.Set{}, "", ErrTextRequired
	}

	preset, ok := params.Lookup(flags.preset)
	if !ok {
		return params.Set{}, "", fmt.Errorf("%w: "+errFmtUnknownPreset, ErrInvalidArgument, flags.preset)
	}

	values := preset.Clamped()

	for _, override := range flags.params {
		name, raw, found := strings.Cut(override, "=")
		if !found {
			return params.Set{}, "", fmt.Errorf("%w: "+errFmtInvalidParam, ErrInvalidArgument, override)
		}

		if _, known := params.RangeOf(params.Name(name)); !known {
			return params.Set{}, "", fmt.Errorf("%w: "+errFmtUnknownParam, ErrInvalidArgument, name)
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return params.Set{}, "", fmt.Errorf("%w: "+errFmtInvalidParam, ErrInvalidArgument, override)
		}

		values = values.With(params.Name(name), value)
	}

	format, err := audio.ParseFormat(flags.format)
	if err != nil {
		return params.Set{}, "", err
	}

	return values, format, nil
}

// checkHealth performs a service health check and prints the result.
func checkHealth(client *synth.HTTPClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		fmt.Printf("TTS service is not healthy: %v\n", err)

		return err
	}

	fmt.Printf(logServiceHealthy, health.Status, health.ModelLoaded)

	return nil
}
