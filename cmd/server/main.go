package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/karelxkk/svx-dashboard/internal/adapter/httpserver"
	"github.com/karelxkk/svx-dashboard/internal/adapter/metrics"
	"github.com/karelxkk/svx-dashboard/internal/adapter/redis"
	"github.com/karelxkk/svx-dashboard/internal/admission"
	"github.com/karelxkk/svx-dashboard/internal/app"
	"github.com/karelxkk/svx-dashboard/internal/broadcast"
	"github.com/karelxkk/svx-dashboard/internal/control"
	"github.com/karelxkk/svx-dashboard/internal/detector"
	"github.com/karelxkk/svx-dashboard/internal/platform/config"
	"github.com/karelxkk/svx-dashboard/internal/platform/logging"
	"github.com/karelxkk/svx-dashboard/internal/platform/version"
	"github.com/karelxkk/svx-dashboard/internal/recordstore"
	"github.com/karelxkk/svx-dashboard/internal/stream"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupAdmitter(cfg *config.Config, m *metrics.Set) broadcast.Admitter {
	if !cfg.AdmissionEnabled {
		return admission.NewUnlimited(m.Admission)
	}
	return admission.New(admission.Limits{
		Global:        cfg.MaxClients,
		SoftPerOrigin: cfg.SoftPerOrigin,
		HardPerOrigin: cfg.HardPerOrigin,
		Reserve:       cfg.ReserveSlots,
	}, m.Admission)
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.Set) *goredis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, m.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupListener(cfg *config.Config, h *control.Handler) *control.Listener {
	if cfg.ControlAddr == "" {
		return nil
	}
	l, err := control.NewListener(cfg.ControlAddr, cfg.ControlAllowedCIDRs, h, control.DefaultIdleTimeout)
	if err == nil {
		err = l.Listen()
	}
	if err != nil {
		slog.Error("Failed to start control listener", "addr", cfg.ControlAddr, "error", err)
		os.Exit(1)
	}
	slog.Info("Control listener ready", "addr", l.Addr().String(), "allowed", cfg.ControlAllowedCIDRs)
	return l
}

func setupWatcher(cfg *config.Config, h *control.Handler, clock clockwork.Clock) *control.Watcher {
	if !cfg.WatchFiles {
		return nil
	}
	w, err := control.NewWatcher(control.WatcherOptions{
		StatusPath:   cfg.StatusCSV,
		HistoryPath:  cfg.HistoryCSV,
		FullResend:   cfg.FullResend(),
		PollInterval: cfg.PollInterval,
	}, h, clock)
	if err != nil {
		slog.Error("Failed to create file watcher", "error", err)
		os.Exit(1)
	}
	return w
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logCloser := logging.InitLogger(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	defer func() { _ = logCloser.Close() }()
	slog.Info("Application starting", "env", cfg.AppEnv, "version", version.Get().String())

	reg := metrics.NewRegistry()
	m := metrics.NewSet(reg)

	broker := broadcast.NewBroker(setupAdmitter(cfg, m), clock, cfg.MailboxSize, m.Stream)

	reader := recordstore.NewReader(cfg.StatusCSV, cfg.HistoryCSV, cfg.CSVDelim, cfg.HistoryTail)
	appSvc := app.NewService(reader, detector.New(), broker, app.Options{
		HistoryFormat: recordstore.HistoryFormat(cfg.HistoryFormat),
		FullResend:    cfg.FullResend(),
	}, clock, m.Control)

	handler := control.NewHandler(appSvc, m.Control)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := setupRedis(ctx, cfg, m)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var healthChecks []httpserver.HealthCheck
	if redisClient != nil {
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "redis", Check: redis.PingCheck(redisClient)})
	}

	srvOpts := httpserver.Options{
		AppEnv:       cfg.AppEnv,
		Addr:         cfg.HTTPAddr,
		SSEPath:      cfg.SSEPath,
		WSPath:       cfg.WSPath,
		CORSOrigin:   cfg.CORSOrigin,
		TrustProxy:   cfg.TrustProxy,
		ConnectRate:  cfg.ConnectRate,
		ConnectBurst: cfg.ConnectBurst,
		Pump: stream.Options{
			HeartbeatInterval: cfg.HeartbeatInterval,
			DrainTimeout:      cfg.DrainTimeout,
			RetryHint:         cfg.RetryHint,
		},
	}
	if cfg.MetricsEnabled {
		srvOpts.MetricsHandler = metrics.Handler(reg)
	}
	srv := httpserver.NewServer(srvOpts, broker, appSvc, clock, m, healthChecks)

	listener := setupListener(cfg, handler)
	watcher := setupWatcher(cfg, handler, clock)

	g, gctx := errgroup.WithContext(ctx)

	if listener != nil {
		g.Go(func() error { return listener.Serve(gctx) })
	}
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	if redisClient != nil {
		sub := redis.NewSubscriber(redisClient, cfg.RedisControlChannel, handler, clock, m.Redis)
		g.Go(func() error { return sub.Run(gctx) })
	}

	g.Go(srv.Start)

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
