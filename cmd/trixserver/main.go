// Command trixserver serves searches over a set of trix indexes through an
// HTTP JSON API and a JSON-over-TCP RPC listener.
//
// Usage:
//
//	trixserver [-config configs/development.yaml]
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
	"time"

	"github.com/Adithya-Monish-Kumar-K/trix/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/itemstore"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/registry"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/reloader"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/trix/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/rpc"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/tracing"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/trix"
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
	slog.Info("starting trix server", "port", cfg.Server.Port, "indexes", len(cfg.Indexes))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, slog.Default())
		defer shutdownMetrics(context.Background())
	}

	defaultMode, err := trix.ParseMode(cfg.Search.DefaultMode)
	if err != nil {
		slog.Error("bad default search mode", "error", err)
		os.Exit(1)
	}
	reg, err := registry.Open(ctx, cfg.Indexes, registry.Options{
		DefaultMode: defaultMode,
		Observer:    m.IndexObserver,
	})
	if err != nil {
		slog.Error("failed to open indexes", "error", err)
		os.Exit(1)
	}
	defer reg.Close()
	m.OpenIndexes.Set(float64(reg.Len()))

	checker := health.NewChecker()
	checker.Register("indexes", health.PingCheck(reg.Ping, false))

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, cache.WithMetrics(m))
			checker.Register("redis", health.PingCheck(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var execOpts []executor.Option
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, item descriptions disabled", "error", err)
		} else {
			defer pg.Close()
			if err := pg.Migrate(ctx, itemstore.Schema(cfg.Postgres.ItemsTable)...); err != nil {
				slog.Warn("item table migration failed", "error", err)
			}
			breaker := resilience.NewCircuitBreaker("itemstore", itemstore.BreakerConfig(
				func(name string, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			))
			items := itemstore.New(pg.DB, cfg.Postgres.ItemsTable, breaker)
			execOpts = append(execOpts, executor.WithItemDescriber(items))
			checker.Register("postgres", health.PingCheck(pg.Ping, true))
			slog.Info("item descriptions enabled", "table", cfg.Postgres.ItemsTable)
		}
	}
	exec := executor.New(reg, cfg.Search, execOpts...)

	aggregator := analytics.NewAggregator(cfg.Analytics.TopQueries)
	var publisher analytics.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		publisher = producer

		// Every server must see every rebuild, so each host gets its own group.
		kcfg := cfg.Kafka
		host, _ := os.Hostname()
		kcfg.ConsumerGroup = fmt.Sprintf("%s-reload-%s", cfg.Kafka.ConsumerGroup, host)
		var inv reloader.Invalidator
		if queryCache != nil {
			inv = queryCache
		}
		consumer := kafka.NewConsumer(kcfg, cfg.Kafka.Topics.CacheInvalidate, reloader.Handler(reg, inv))
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index reload consumer stopped", "error", err)
			}
		}()
		slog.Info("kafka enabled",
			"search_events", cfg.Kafka.Topics.SearchEvents,
			"cache_invalidate", cfg.Kafka.Topics.CacheInvalidate,
		)
	}
	collector := analytics.NewCollector(publisher, aggregator, analytics.CollectorConfig{
		Dropped: m.SearchEventsDropped,
	})
	collector.Start(ctx)
	defer collector.Close()

	h := handler.New(handler.Config{
		Executor:      exec,
		Indexes:       reg,
		Cache:         queryCache,
		Tracker:       collector,
		Metrics:       m,
		Tracer:        tracing.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.SampleRate, logger.WithComponent("tracing")),
		MaxQueryWords: cfg.Search.MaxQueryWords,
		Admin:         adminGuard(cfg.Server.AdminKeyHashes),
	})
	analyticsH := analytics.NewHandler(aggregator, nil)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.Recover,
		middleware.RequestID,
		middleware.Logging,
		middleware.Metrics(m),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		mws = append(mws, middleware.CORS(middleware.NewCORSConfig(cfg.Server.CORSOrigins)))
	}
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		limiter.StartPruning(ctx, 5*time.Minute)
		mws = append(mws, middleware.RateLimit(limiter))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + time.Second,
	}

	var rpcServer *rpc.Server
	if cfg.RPC.Port > 0 {
		rpcServer = rpc.NewServer()
		h.RegisterRPC(rpcServer)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.RPC.Port)
			if err := rpcServer.ListenAndServe(addr); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if rpcServer != nil {
			rpcServer.Stop()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("trix server listening", "addr", server.Addr, "rpc_port", cfg.RPC.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("trix server stopped")
}

// adminGuard protects index reloads and cache flushes once keys are
// configured.
func adminGuard(hashes []string) func(http.Handler) http.Handler {
	if len(hashes) == 0 {
		slog.Warn("no admin keys configured; reload and cache invalidation are open")
		return nil
	}
	return middleware.RequireKey(hashes)
}
