package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	maxBooks := flag.Int("max-books", 0, "override catalog.maxBooks")
	workers := flag.Int("workers", 0, "override catalog.workers")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *maxBooks > 0 {
		cfg.Catalog.MaxBooks = *maxBooks
	}
	if *workers > 0 {
		cfg.Catalog.Workers = *workers
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

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
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	var publisher catalog.BatchPublisher
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.BooksImported)
		defer producer.Close()
		publisher = producer
	}

	importer := catalog.NewImporter(catalog.NewClient(cfg.Catalog, m), store, publisher, cfg.Catalog, m)
	summary, err := importer.Run(ctx)
	if err != nil && summary == nil {
		slog.Error("catalog import failed", "error", err)
		os.Exit(1)
	}
	if err != nil {
		slog.Warn("catalog import interrupted", "error", err, "stored", summary.Stored())
		return
	}
	slog.Info("catalog import complete",
		"stored", summary.Stored(),
		"imported", summary.Imported,
		"pages", summary.Pages,
	)
}
