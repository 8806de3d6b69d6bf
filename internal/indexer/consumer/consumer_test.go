package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/config"
)

// busyIndexer reports a running build for the first polls calls.
type busyIndexer struct {
	*indexer.Engine
	polls atomic.Int32
}

func (b *busyIndexer) Running() bool { return b.polls.Add(-1) >= 0 }

func message(t *testing.T, id int64) []byte {
	t.Helper()
	b, err := json.Marshal(catalog.ImportEvent{BookID: id, Title: "Moby Dick"})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandleImportedIndexesBook(t *testing.T) {
	ctx := context.Background()
	store := index.NewMemoryStore()
	store.SaveDocument(ctx, index.Document{ID: 1, Title: "Moby Dick", Text: "call me ishmael"})
	engine := indexer.NewEngine(store, config.IndexerConfig{Parallelism: 1})

	handle := HandleImported(engine, store, true)
	if err := handle(ctx, []byte("1"), message(t, 1)); err != nil {
		t.Fatal(err)
	}
	postings, _ := store.Postings(ctx, "ishmael")
	if len(postings) != 1 || postings[0].DocID != 1 {
		t.Errorf("postings = %+v", postings)
	}
	if ids, _ := store.ForwardDocuments(ctx); len(ids) != 1 {
		t.Errorf("forward documents = %v", ids)
	}

	if err := handle(ctx, nil, message(t, 99)); err != nil {
		t.Errorf("missing books should be dropped, got %v", err)
	}
	if err := handle(ctx, nil, []byte("{")); err != nil {
		t.Errorf("bad messages should be dropped, got %v", err)
	}
}

func TestHandleImportedWaitsForBuild(t *testing.T) {
	idlePoll = time.Millisecond
	defer func() { idlePoll = time.Second }()

	ctx := context.Background()
	store := index.NewMemoryStore()
	store.SaveDocument(ctx, index.Document{ID: 1, Title: "Moby Dick", Text: "call me ishmael"})
	engine := &busyIndexer{Engine: indexer.NewEngine(store, config.IndexerConfig{Parallelism: 1})}
	engine.polls.Store(3)

	if err := HandleImported(engine, store, false)(ctx, nil, message(t, 1)); err != nil {
		t.Fatal(err)
	}
	if postings, _ := store.Postings(ctx, "ishmael"); len(postings) != 1 {
		t.Errorf("book not indexed after build finished: %+v", postings)
	}
}

func TestHandleImportedGivesUpOnCancel(t *testing.T) {
	idlePoll = time.Millisecond
	defer func() { idlePoll = time.Second }()

	store := index.NewMemoryStore()
	engine := &busyIndexer{Engine: indexer.NewEngine(store, config.IndexerConfig{Parallelism: 1})}
	engine.polls.Store(1 << 30)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := HandleImported(engine, store, false)(ctx, nil, message(t, 1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
