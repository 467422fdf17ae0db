// Command climate-hub receives agent telemetry, keeps history and relays
// operator overrides to connected agents.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/afroash/climate-agent/internal/config"
	"github.com/afroash/climate-agent/internal/logging"
	"github.com/afroash/climate-agent/internal/server"
	"github.com/afroash/climate-agent/internal/storage"
)

const version = "v0.3.0"

func main() {
	var configPath string
	var showVersion bool

	flagSet := pflag.NewFlagSet("climate-hub", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config file (defaults and environment only when empty)")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if showVersion {
		fmt.Println("climate-hub", version)
		return
	}

	cfg, err := config.LoadAppConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging, os.Stdout)

	logger.Info().
		Str("version", version).
		Str("config", cfg.String()).
		Msg("Starting climate hub")

	hub, err := newHubServer(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start hub")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := hub.run(ctx); err != nil {
		logger.Error().Err(err).Msg("Hub stopped with error")
		os.Exit(1)
	}
}

// hubServer is the wired control hub
type hubServer struct {
	logger  zerolog.Logger
	http    *http.Server
	store   *server.MemoryStore
	hub     *server.Hub
	sqlite  *storage.SQLiteStore
	writer  *storage.DBWriter
	cleaner *storage.RetentionCleaner
}

func newHubServer(cfg *config.AppConfig, logger zerolog.Logger) (*hubServer, error) {
	h := &hubServer{
		logger: logger,
		store:  server.NewMemoryStore(cfg.Storage.BufferSize),
		hub:    server.NewHub(cfg.Server.AuthToken, logger.With().Str("component", "hub").Logger(), cfg.Server.AllowedOrigins...),
	}
	api := server.NewAPIHandler(h.store, logger.With().Str("component", "api").Logger())

	if cfg.Database.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		sqlite, err := storage.NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open history database: %w", err)
		}
		h.sqlite = sqlite
		logger.Info().Str("path", cfg.Database.Path).Msg("SQLite store opened")

		h.writer = storage.NewDBWriter(sqlite, storage.DBWriterConfig{
			BatchSize:   cfg.Database.BatchSize,
			FlushPeriod: cfg.Database.FlushPeriod,
			ChannelSize: cfg.Database.ChannelSize,
		}, logger)
		h.cleaner = storage.NewRetentionCleaner(sqlite, storage.RetentionCleanerConfig{
			RetentionDays: cfg.Database.RetentionDays,
			CleanupPeriod: cfg.Database.CleanupPeriod,
		}, logger)

		api.SetHistory(sqlite)
		api.SetWriter(h.writer)
	}

	router := server.NewRouter(api, h.hub, version)
	h.http = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handlers.LoggingHandler(accessLog(logger), router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return h, nil
}

// accessLog routes combined-format request lines through the logger
func accessLog(logger zerolog.Logger) io.Writer {
	return logger.With().Str("component", "http").Logger()
}

// run serves until ctx is cancelled, then drains history and stops
func (h *hubServer) run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		h.logger.Info().Str("addr", h.http.Addr).Msg("Server listening")
		errCh <- h.http.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
	}

	h.logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.http.Shutdown(shutdownCtx); err != nil {
		h.logger.Error().Err(err).Msg("Server shutdown error")
	}

	h.close()
	h.logger.Info().Msg("Server stopped")
	return serveErr
}

func (h *hubServer) close() {
	if h.writer != nil {
		h.writer.Stop()
		h.logger.Info().Msg("DBWriter stopped")
	}
	if h.cleaner != nil {
		h.cleaner.Stop()
		h.logger.Info().Msg("RetentionCleaner stopped")
	}
	if h.sqlite != nil {
		h.sqlite.Close()
		h.logger.Info().Msg("SQLiteStore closed")
	}
}
