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

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/library"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/redis"
)

const snapshotInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := storage.New(db)
	if err := store.Migrate(ctx); err != nil {
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis, m)
		slog.Info("search cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	aggregator := analytics.NewAggregator()
	if snap, err := store.LatestSnapshot(ctx); err != nil {
		slog.Warn("could not load analytics snapshot", "error", err)
	} else if snap != nil {
		aggregator.Restore(*snap)
		slog.Info("analytics restored", "total_searches", snap.TotalSearches)
	}
	snapshotCtx, stopSnapshots := context.WithCancel(context.Background())
	snapshotsDone := analytics.StartPeriodicSave(snapshotCtx, store, aggregator, snapshotInterval)

	engineOpts := []indexer.Option{indexer.WithMetrics(m)}
	var collector *analytics.Collector
	if cfg.Kafka.Enabled() {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		collector = analytics.NewCollector(analyticsProducer, 10000)

		indexProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer indexProducer.Close()
		engineOpts = append(engineOpts, indexer.WithPublisher(indexProducer))

		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, "", analytics.HandleEvent(aggregator))
		defer analyticsConsumer.Close()
		go analyticsConsumer.Start(ctx)

		record := func(e analytics.IndexEvent) { aggregator.Track(e) }
		var onIndex kafka.MessageHandler = analytics.HandleEvent(aggregator)
		if queryCache != nil {
			onIndex = queryCache.OnIndexComplete(record)
		}
		indexConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, "", onIndex)
		defer indexConsumer.Close()
		go indexConsumer.Start(ctx)
		slog.Info("kafka enabled", "brokers", cfg.Kafka.Brokers)
	} else {
		collector = analytics.NewCollector(aggregator, 10000)
		engineOpts = append(engineOpts, indexer.WithPublisher(aggregator))
		slog.Warn("no kafka brokers configured, analytics stay in process")
	}
	collector.Start(ctx)
	defer collector.Close()

	checker := health.NewChecker()
	checker.Register("postgres", health.Ping(db.Ping, true))
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient.Ping, false))
	} else {
		checker.Register("redis", health.Disabled("not connected"))
	}

	engine := indexer.NewEngine(store, cfg.Indexer, engineOpts...)
	exec := executor.New(store, cfg.Search, m)
	h := handler.New(exec, engine, queryCache, collector, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	h.Routes(mux)
	library.NewHandler(store, cfg.Search.DefaultLimit, cfg.Search.MaxResults).Routes(mux)
	analytics.NewHandler(aggregator).Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		limiter.StartSweeper(ctx)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.CORS(middleware.NewCORSConfig(cfg.Server.AllowOrigins))(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	h.Wait()
	stopSnapshots()
	<-snapshotsDone
	slog.Info("search service stopped")
}
