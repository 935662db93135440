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

	"beamsched/internal/api"
	"beamsched/internal/buildinfo"
	"beamsched/internal/config"
	"beamsched/internal/logging"
	"beamsched/internal/metrics"
	"beamsched/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTraces, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "beamsched-api",
		ServiceVersion: buildinfo.Version,
		TraceExporter:  cfg.TracesExporter,
	})
	if err != nil {
		return err
	}
	metrics.RegisterDefault()

	srvDeps, err := api.NewServer(ctx, cfg, log)
	if err != nil {
		return err
	}

	worker := srvDeps.NewWebhookWorker()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srvDeps.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("api listening", slog.String("addr", cfg.Addr()), slog.String("version", buildinfo.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-workerDone
			_ = srvDeps.Close(context.Background())
			return err
		}
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	errs := []error{srv.Shutdown(sctx)}
	<-workerDone
	errs = append(errs, srvDeps.Close(sctx), shutdownTraces(sctx))
	return errors.Join(errs...)
}
