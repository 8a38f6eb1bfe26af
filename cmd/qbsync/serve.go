package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/application/qbwc"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/telemetry"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/interfaces/http/handler"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/interfaces/http/router"
)

// janitorInterval is how often expired Web Connector sessions are reaped
const janitorInterval = time.Minute

// NewServeCommand creates the serve subcommand
func NewServeCommand(root *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Web Connector SOAP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.host and server.port")
	return cmd
}

func runServe(ctx context.Context, root *RootOptions, addr string) error {
	cfg, log := root.cfg, root.log
	if addr == "" {
		addr = cfg.Server.Addr()
	}

	log.Info("Starting qbsync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("addr", addr),
		zap.String("version", version),
	)

	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		return err
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx := context.Background()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()
	metrics, err := telemetry.NewSyncMetrics(meterProvider.Meter("qbsync"))
	if err != nil {
		return err
	}

	svcCfg, err := serviceConfig(cfg)
	if err != nil {
		return err
	}

	cache, releaseCache, err := newCatalogCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer releaseCache.Close(log)

	opts := []qbwc.Option{
		qbwc.WithLogger(log.Named("qbwc")),
		qbwc.WithMetrics(metrics),
	}
	repo, releaseJournal, err := openJournal(cfg.Journal, log)
	if err != nil {
		return err
	}
	defer releaseJournal.Close(log)
	if repo != nil {
		opts = append(opts, qbwc.WithJournal(repo))
	}

	svc := qbwc.NewService(svcCfg, newLedgerClient(cfg.Ledger, log), cache, opts...)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go svc.RunJanitor(runCtx, janitorInterval)

	engine := router.NewEngine(router.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: tracerProvider.IsEnabled(),
		MaxBodyBytes:   cfg.Server.MaxBodySize,
		Meter:          meterProvider.Meter("http.server"),
	}, log)
	router.NewRouter(engine).Register(handler.NewQBWCHandler(svc)).Setup()

	srv := &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("endpoint", handler.EndpointPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited gracefully", zap.Int("open_sessions", svc.SessionCount()))
	return nil
}
