// Package consumer indexes books as the catalog importer announces them on
// the books.imported topic.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/logger"
)

// Indexer is the part of indexer.Engine the consumer drives.
type Indexer interface {
	IndexDocument(ctx context.Context, doc index.Document, forward bool) indexer.DocResult
	Running() bool
}

// HandleImported returns a handler that loads each announced book and adds
// it to the inverted index, and to the forward index with unscored entries
// when forward is set. Weights stay stale until the next recompute.
//
// While a full build is running the handler waits for it to finish, since
// the build resets the indices and would discard the book's postings.
func HandleImported(engine Indexer, docs index.DocumentReader, forward bool) kafka.MessageHandler {
	log := logger.WithComponent("index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[catalog.ImportEvent](value)
		if err != nil {
			log.Error("failed to decode import event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if err := waitIdle(ctx, engine); err != nil {
			return fmt.Errorf("waiting to index book %d: %w", event.BookID, err)
		}

		found, err := docs.GetDocuments(ctx, []int64{event.BookID}, true)
		if err != nil {
			return fmt.Errorf("loading book %d: %w", event.BookID, err)
		}
		if len(found) == 0 {
			log.Warn("announced book not found", "doc_id", event.BookID)
			return nil
		}

		res := engine.IndexDocument(ctx, found[0], forward)
		switch res.Status {
		case indexer.StatusFailed:
			return fmt.Errorf("indexing book %d: %s", event.BookID, res.Reason)
		case indexer.StatusSkipped:
			log.Info("imported book skipped", "doc_id", event.BookID, "reason", res.Reason)
		default:
			log.Info("imported book indexed", "doc_id", event.BookID, "title", event.Title, "terms", res.Terms)
		}
		return nil
	}
}

var idlePoll = time.Second

func waitIdle(ctx context.Context, engine Indexer) error {
	if !engine.Running() {
		return nil
	}
	logger.FromContext(ctx).Info("index build running, waiting before indexing")
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()
	for engine.Running() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
