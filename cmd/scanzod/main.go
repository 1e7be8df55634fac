// scanzod is the HTTP daemon: extraction API, scan store, XLSX export and
// the optional drop-directory ingester.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mehdidadah/scanzo/internal/common"
	"github.com/mehdidadah/scanzo/internal/engine"
	"github.com/mehdidadah/scanzo/internal/export"
	"github.com/mehdidadah/scanzo/internal/ingest"
	"github.com/mehdidadah/scanzo/internal/ocr"
	"github.com/mehdidadah/scanzo/internal/registry"
	"github.com/mehdidadah/scanzo/internal/repository"
	"github.com/mehdidadah/scanzo/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a bad registry is the only startup-fatal extraction error
	reg, err := loadRegistry(cfg.Engine.RegistryPath)
	if err != nil {
		logger.Error("loading pattern registry", "path", cfg.Engine.RegistryPath, "error", err)
		os.Exit(1)
	}
	logger.Info("pattern registry loaded", "rules", reg.Len())

	eng, err := engine.New(reg, cfg.Engine, logger)
	if err != nil {
		logger.Error("building engine", "error", err)
		os.Exit(1)
	}

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.HealthCheck(ctx, pool, 3*time.Second, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	if err := repository.EnsureSchema(ctx, pool, logger); err != nil {
		logger.Error("ensuring schema", "error", err)
		os.Exit(1)
	}

	scans := repository.NewScanRepository(pool, logger)
	provider := ocr.NewTesseract(cfg.OCR, logger)
	runner := ingest.NewRunner(eng, provider, scans, "fr", logger)
	exp := export.NewService(scans, logger)

	if len(cfg.Ingest.Roots) > 0 {
		paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       cfg.Ingest.Roots,
			InitialScan: true,
			Debounce:    cfg.Ingest.Debounce,
		}, logger)
		if err != nil {
			logger.Error("starting ingest watcher", "error", err)
			os.Exit(1)
		}
		go runner.Consume(ctx, paths)
		go func() {
			for e := range errs {
				logger.Error("ingest watcher error", "error", e)
			}
		}()
		logger.Info("ingest watcher started", "roots", cfg.Ingest.Roots)
	}

	srv := server.New(eng, runner, scans, exp, pool, cfg.Server, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("stopped")
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Default()
	}
	return registry.LoadFile(path)
}
