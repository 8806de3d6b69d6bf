package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	modeFlag := flag.String("mode", "", "build to run: inverted, dual, tfidf or recompute")
	follow := flag.Bool("follow", false, "after the build, index books announced on the books.imported topic")
	forward := flag.Bool("forward", true, "with -follow, also write unscored forward entries")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *modeFlag == "" && !*follow {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -mode, -follow or both")
		flag.Usage()
		os.Exit(2)
	}
	var mode indexer.Mode
	if *modeFlag != "" {
		if mode, err = indexer.ParseMode(*modeFlag); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if *follow && !cfg.Kafka.Enabled() {
		fmt.Fprintln(os.Stderr, "-follow needs kafka brokers")
		os.Exit(2)
	}

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

	opts := []indexer.Option{indexer.WithMetrics(m)}
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		opts = append(opts, indexer.WithPublisher(producer))
	}
	engine := indexer.NewEngine(store, cfg.Indexer, opts...)

	if mode != "" {
		slog.Info("starting index build", "mode", mode, "parallelism", cfg.Indexer.Parallelism)
		report, err := engine.Run(ctx, mode)
		if err != nil {
			slog.Error("index build failed", "mode", mode, "error", err)
			os.Exit(1)
		}
		for _, f := range report.Failures() {
			slog.Warn("document failed", "doc_id", f.DocID, "reason", f.Reason)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(struct {
			Mode     indexer.Mode `json:"mode"`
			Indexed  int          `json:"indexed"`
			Skipped  int          `json:"skipped"`
			Failed   int          `json:"failed"`
			Duration string       `json:"duration"`
		}{report.Mode, report.Indexed, report.Skipped, report.Failed, report.Duration.String()})
	}

	if !*follow {
		return
	}
	c := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.BooksImported, "gutensearch-indexer",
		consumer.HandleImported(engine, store, *forward))
	defer c.Close()
	slog.Info("indexer following imported books", "topic", cfg.Kafka.Topics.BooksImported)
	if err := c.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}
	slog.Info("indexer stopped")
}
