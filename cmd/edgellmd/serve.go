package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"edgellm/internal/common/fsutil"
	"edgellm/internal/device"
	"edgellm/internal/download"
	"edgellm/internal/engine"
	"edgellm/internal/httpapi"
	"edgellm/internal/lifecycle"
	"edgellm/internal/storage"
)

type serveFlags struct {
	configPath  string
	logLevel    string
	addr        string
	modelsDir   string
	catalogPath string
}

func runServe(flags serveFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.ModelsDir, log)
	if err != nil {
		return err
	}
	tmpDir, err := fsutil.ExpandHome(cfg.TmpDir)
	if err != nil {
		return err
	}
	dl, err := download.New(store, tmpDir, log)
	if err != nil {
		return err
	}

	caps := device.New(cat, device.Probes{}).Detect()
	log.Info().
		Int64("total_memory_mb", caps.TotalMemoryMB).
		Str("tier", string(caps.Tier)).
		Str("engine", string(caps.RecommendedEngine)).
		Msg("device detected")

	mgr, err := lifecycle.New(lifecycle.Config{
		Catalog:    cat,
		Store:      store,
		Downloader: dl,
		Capability: caps,
		EngineOptions: engine.Options{
			ContextSize: cfg.ContextSize,
			Threads:     cfg.Threads,
			BatchSize:   cfg.BatchSize,
			GPULayers:   cfg.GPULayers,
			Logger:      log,
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
	if err := mgr.Close(); err != nil {
		log.Warn().Err(err).Msg("close incomplete")
	}
	log.Info().Msg("stopped")
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
