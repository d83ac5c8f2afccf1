// Package config provides the configuration structure for the tts-workbench.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Storage backends.
const (
	BackendFile  = "file"
	BackendNATS  = "nats"
	BackendRedis = "redis"
)

// Defaults applied to zero values.
const (
	defaultServiceURL          = "http://127.0.0.1:5000"
	defaultTimeoutSeconds      = 120
	defaultStorageDir          = "data"
	defaultSnapshotKey         = "plattdeutsch-tts-blocks"
	defaultNATSURL             = "nats://127.0.0.1:4222"
	defaultSnapshotBucket      = "TTS_WORKBENCH_STATE"
	defaultAudioBucket         = "TTS_WORKBENCH_AUDIO"
	defaultGenerateSubject     = "tts.blocks.generate"
	defaultAudioCreatedSubject = "tts.audio.created"
	defaultRedisAddr           = "127.0.0.1:6379"
	defaultFFmpegPath          = "ffmpeg"
	defaultMP3BitrateKbps      = 192
	defaultFilePrefix          = "plattdeutsch"
	defaultListenAddr          = "127.0.0.1:8080"
	defaultLogsDir             = "logs"
)

// ErrUnknownBackend is returned for a storage backend other than file, nats or redis.
var ErrUnknownBackend = errors.New("unknown storage backend")

// ServiceConfig locates the remote TTS service.
type ServiceConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (s ServiceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// StorageConfig selects where the block snapshot and audio are kept.
type StorageConfig struct {
	Backend     string `toml:"backend"`
	Dir         string `toml:"dir"`
	SnapshotKey string `toml:"snapshot_key"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                 string `toml:"url"`
	SnapshotBucket      string `toml:"snapshot_bucket"`
	AudioBucket         string `toml:"audio_bucket"`
	GenerateSubject     string `toml:"generate_subject"`
	AudioCreatedSubject string `toml:"audio_created_subject"`
}

// RedisConfig holds the connection settings for the redis backend.
type RedisConfig struct {
	Addr string `toml:"addr"`
	DB   int    `toml:"db"`
}

// ExportConfig controls audio downloads.
type ExportConfig struct {
	FFmpegPath     string `toml:"ffmpeg_path"`
	MP3BitrateKbps int    `toml:"mp3_bitrate_kbps"`
	FilePrefix     string `toml:"file_prefix"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Storage StorageConfig `toml:"storage"`
	NATS    NATSConfig    `toml:"nats"`
	Redis   RedisConfig   `toml:"redis"`
	Export  ExportConfig  `toml:"export"`
	Server  ServerConfig  `toml:"server"`
	Paths   PathsConfig   `toml:"paths"`
}

// Load loads the configuration through the shared configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile loads the configuration from a TOML file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Service.URL, defaultServiceURL)
	setDefault(&c.Service.TimeoutSeconds, defaultTimeoutSeconds)
	setDefault(&c.Storage.Backend, BackendFile)
	setDefault(&c.Storage.Dir, defaultStorageDir)
	setDefault(&c.Storage.SnapshotKey, defaultSnapshotKey)
	setDefault(&c.NATS.URL, defaultNATSURL)
	setDefault(&c.NATS.SnapshotBucket, defaultSnapshotBucket)
	setDefault(&c.NATS.AudioBucket, defaultAudioBucket)
	setDefault(&c.NATS.GenerateSubject, defaultGenerateSubject)
	setDefault(&c.NATS.AudioCreatedSubject, defaultAudioCreatedSubject)
	setDefault(&c.Redis.Addr, defaultRedisAddr)
	setDefault(&c.Export.FFmpegPath, defaultFFmpegPath)
	setDefault(&c.Export.MP3BitrateKbps, defaultMP3BitrateKbps)
	setDefault(&c.Export.FilePrefix, defaultFilePrefix)
	setDefault(&c.Server.ListenAddr, defaultListenAddr)
	setDefault(&c.Paths.BaseLogsDir, defaultLogsDir)
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendNATS, BackendRedis:
		return nil
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownBackend, c.Storage.Backend)
	}
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}
