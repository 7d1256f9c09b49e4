// Command airq trains the AQI model and serves the predictor, analysis
// pages and JSON API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/airq/internal/aqi"
	"github.com/YuminosukeSato/airq/internal/config"
	"github.com/YuminosukeSato/airq/internal/observability"
	"github.com/YuminosukeSato/airq/internal/web"
	"github.com/YuminosukeSato/airq/pkg/errors"
	"github.com/YuminosukeSato/airq/pkg/log"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "airq: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if _, err := log.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		return err
	}
	logger := log.GetLoggerWithName("airq")
	metrics := observability.NewMetrics()
	gin.SetMode(gin.ReleaseMode)

	loader := aqi.FileLoader{Path: cfg.DataPath, Sentinel: cfg.Sentinel}
	svc := aqi.NewService(
		aqi.NewTrainer(cfg.Forest),
		loader,
		aqi.WithMetrics(metrics),
		aqi.WithSnapshotPath(cfg.ModelPath),
	)
	srv := web.NewServer(svc, loader, web.Options{
		Addr:           cfg.HTTPAddr,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Sentinel:       cfg.Sentinel,
		RetrainEvery:   cfg.RetrainInterval,
		Metrics:        metrics,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server; /readyz reports 503 until a model is installed.
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	initErr := initModel(ctx, svc, cfg.ModelPath, logger)
	if initErr == nil {
		select {
		case <-ctx.Done():
		case err := <-serverErr:
			initErr = errors.Wrap(err, "http server")
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", err)
	}

	logger.Info("shutdown complete")
	return initErr
}

// initModel installs the snapshot at path when one exists and otherwise
// trains from the dataset. A training failure is fatal.
func initModel(ctx context.Context, svc *aqi.Service, path string, logger log.Logger) error {
	if path != "" {
		b, err := aqi.LoadBundle(path)
		switch {
		case err == nil:
			svc.Install(b)
			return nil
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("no model snapshot, training", log.SourceKey, path)
		default:
			logger.Warn("model snapshot unusable, training", log.SourceKey, path, "error", err.Error())
		}
	}

	if _, err := svc.Retrain(ctx); err != nil {
		return errors.Wrap(err, "initial training")
	}
	return nil
}
