// main package for the tts-workbench
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-workbench/internal/api"
	"github.com/book-expert/tts-workbench/internal/audio"
	"github.com/book-expert/tts-workbench/internal/config"
	"github.com/book-expert/tts-workbench/internal/core"
	"github.com/book-expert/tts-workbench/internal/objectstore"
	"github.com/book-expert/tts-workbench/internal/store"
	"github.com/book-expert/tts-workbench/internal/synth"
	"github.com/book-expert/tts-workbench/internal/workbench"
	"github.com/book-expert/tts-workbench/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Flag names and descriptions.
const (
	flagConfig     = "config"
	flagHealth     = "health"
	flagConfigDesc = "Path to a TOML config file (defaults to the shared configurator lookup)"
	flagHealthDesc = "Check TTS service health and exit"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	healthTimeout     = 10 * time.Second
	redisKeyPrefix    = "tts-workbench:"
	audioSubdir       = "audio"
)

// backends are the storage handles selected by configuration.
type backends struct {
	snapshots core.ObjectStore
	audio     core.ObjectStore
	nats      *nats.Conn
	closers   []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in '%s': %w", logPath, err)
	}

	return log, nil
}

func loadConfig(path string, log *logger.Logger) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}

	return config.Load(log)
}

func run() error {
	configPath := flag.String(flagConfig, "", flagConfigDesc)
	healthOnly := flag.Bool(flagHealth, false, flagHealthDesc)
	flag.Parse()

	bootstrapLog, err := setupLogger(os.TempDir(), "tts-workbench-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := loadConfig(*configPath, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	log, err := setupLogger(cfg.Paths.BaseLogsDir, "tts-workbench.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	client := synth.NewHTTPClient(cfg.Service.URL, cfg.Service.Timeout())

	if *healthOnly {
		return checkHealth(client)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := openBackends(cfg, log)
	if err != nil {
		log.Error("Failed to open storage: %v", err)

		return err
	}
	defer stores.close()

	blocks := store.New(ctx, store.NewPersister(stores.snapshots, cfg.Storage.SnapshotKey, log), log)
	blocks.EnsureInitialBlock()

	options := workbench.Options{
		Transcoder: audio.NewFFmpegTranscoder(cfg.Export.FFmpegPath, cfg.Export.MP3BitrateKbps, log),
		FilePrefix: cfg.Export.FilePrefix,
	}
	if stores.nats != nil {
		options.Publisher = stores.nats
		options.Subject = cfg.NATS.AudioCreatedSubject
	}

	runner := workbench.New(blocks, client, stores.audio, log, options)

	workerDone := make(chan error, 1)

	if stores.nats != nil {
		natsWorker := worker.NewNatsWorker(stores.nats, cfg.NATS.GenerateSubject, runner, log)

		go func() {
			workerDone <- natsWorker.Run(ctx)
		}()
	} else {
		workerDone <- nil
	}

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.NewServer(blocks, runner, client, log).Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- server.ListenAndServe()
	}()

	log.System("TTS-Workbench listening on %s (storage: %s, tts service: %s)",
		cfg.Server.ListenAddr, cfg.Storage.Backend, cfg.Service.URL)

	select {
	case err = <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed: %v", err)

			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutdown requested.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	if err != nil {
		log.Warn("HTTP server shutdown: %v", err)
	}

	stop()

	err = <-workerDone
	if err != nil {
		log.Warn("Worker stopped with error: %v", err)
	}

	return nil
}

// openBackends connects the configured snapshot and audio stores. NATS is
// required for the nats backend and optional otherwise; without it the
// generate worker and audio events are disabled.
func openBackends(cfg *config.Config, log *logger.Logger) (*backends, error) {
	result := &backends{}

	switch cfg.Storage.Backend {
	case config.BackendNATS:
		natsConnection, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}

		result.nats = natsConnection
		result.closers = append(result.closers, natsConnection.Close)

		jetstreamContext, err := natsConnection.JetStream()
		if err != nil {
			result.close()

			return nil, fmt.Errorf("failed to get JetStream context: %w", err)
		}

		result.snapshots, err = objectstore.NewNats(jetstreamContext, cfg.NATS.SnapshotBucket, "tts-workbench block snapshots")
		if err != nil {
			result.close()

			return nil, err
		}

		result.audio, err = objectstore.NewNats(jetstreamContext, cfg.NATS.AudioBucket, "tts-workbench generated audio")
		if err != nil {
			result.close()

			return nil, err
		}

		return result, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		result.closers = append(result.closers, func() { _ = client.Close() })
		result.snapshots = objectstore.NewRedisStore(client, redisKeyPrefix)
		result.audio = objectstore.NewRedisStore(client, redisKeyPrefix+audioSubdir+":")
	default:
		snapshots, err := objectstore.NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}

		audioFiles, err := objectstore.NewFileStore(filepath.Join(cfg.Storage.Dir, audioSubdir))
		if err != nil {
			return nil, err
		}

		result.snapshots = snapshots
		result.audio = audioFiles
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Warn("NATS unavailable at %s, generate worker disabled: %v", cfg.NATS.URL, err)

		return result, nil
	}

	result.nats = natsConnection
	result.closers = append(result.closers, natsConnection.Close)

	return result, nil
}

func checkHealth(client *synth.HTTPClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		fmt.Printf("TTS service is not healthy: %v\n", err)

		return err
	}

	fmt.Printf("TTS service status: %s, model loaded: %t\n", health.Status, health.ModelLoaded)

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
