// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search events published by every trix server, and index
// rebuild announcements, from Kafka. It aggregates them in memory (query
// volume, latency percentiles, cache hit rate, top queries and words,
// zero-result queries), snapshots the aggregate to PostgreSQL and serves
// GET /api/v1/analytics for dashboards.
//
// Usage:
//
//	analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/trix/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)
	if !cfg.Kafka.Enabled {
		slog.Error("analytics service needs kafka; set kafka.enabled")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port+1, slog.Default())
		defer shutdownMetrics(context.Background())
	}

	agg := analytics.NewAggregator(cfg.Analytics.TopQueries)
	checker := health.NewChecker()

	var history analytics.History
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		} else {
			defer pg.Close()
			store := aggregator.NewStore(pg)
			if err := pg.Migrate(ctx, aggregator.Schema...); err != nil {
				slog.Error("snapshot table migration failed", "error", err)
				os.Exit(1)
			}
			if prev, err := store.LatestSnapshot(ctx); err != nil {
				slog.Warn("could not load previous snapshot", "error", err)
			} else if prev != nil {
				agg.Restore(*prev)
				slog.Info("restored counters from snapshot", "total_searches", prev.TotalSearches)
			}
			store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
			history = store
			checker.Register("postgres", health.PingCheck(pg.Ping, true))
		}
	}

	for _, topic := range []string{cfg.Kafka.Topics.SearchEvents, cfg.Kafka.Topics.CacheInvalidate} {
		consumer := kafka.NewConsumer(cfg.Kafka, topic, analytics.HandleEvent(agg))
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("analytics consumer stopped", "topic", topic, "error", err)
			}
		}()
	}
	slog.Info("analytics consumers started",
		"search_events", cfg.Kafka.Topics.SearchEvents,
		"index_events", cfg.Kafka.Topics.CacheInvalidate,
		"group", cfg.Kafka.ConsumerGroup,
	)

	analyticsHandler := analytics.NewHandler(agg, history)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsHandler.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.Recover,
		middleware.RequestID,
		middleware.Logging,
		middleware.Metrics(m),
	}
	// Dashboards read the aggregate straight from the browser.
	if len(cfg.Server.CORSOrigins) > 0 {
		mws = append(mws, middleware.CORS(middleware.NewCORSConfig(cfg.Server.CORSOrigins)))
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
