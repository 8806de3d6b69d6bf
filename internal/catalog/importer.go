package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/metrics"
)

var ErrNoText = errors.New("no plain-text format available")

// Sink stores a book and its text. created is false when the book was
// already present; the call must then leave the stored book unchanged.
type Sink interface {
	SaveBook(ctx context.Context, book Book, text string) (created bool, err error)
}

type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Outcome string

const (
	OutcomeImported Outcome = "imported"
	OutcomeExisting Outcome = "existing"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
	OutcomeLimit    Outcome = "limit"
)

type Summary struct {
	Pages    int           `json:"pages"`
	Imported int           `json:"imported"`
	Existing int           `json:"existing"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Stored is the number of books counted against MaxBooks.
func (s Summary) Stored() int {
	return s.Imported + s.Existing
}

type Importer struct {
	client    *Client
	sink      Sink
	publisher BatchPublisher
	cfg       config.CatalogConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewImporter(client *Client, sink Sink, publisher BatchPublisher, cfg config.CatalogConfig, m *metrics.Metrics) *Importer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Importer{
		client:    client,
		sink:      sink,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.WithComponent("catalog-importer"),
	}
}

type quota struct {
	mu    sync.Mutex
	used  int
	limit int
}

func (q *quota) full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit > 0 && q.used >= q.limit
}

func (q *quota) take() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && q.used >= q.limit {
		return false
	}
	q.used++
	return true
}

func (q *quota) release() {
	q.mu.Lock()
	q.used--
	q.mu.Unlock()
}

// Run pages through the catalog until it is exhausted or MaxBooks books
// are stored. Only a failure to load the first page is returned as an
// error; later page failures end the run early.
func (im *Importer) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}
	q := &quota{limit: im.cfg.MaxBooks}
	url := ""

	im.logger.Info("catalog import started",
		"base_url", im.cfg.BaseURL,
		"workers", im.cfg.Workers,
		"max_books", im.cfg.MaxBooks,
	)
	for !q.full() {
		page, err := im.client.FetchPage(ctx, url)
		if err != nil {
			if summary.Pages == 0 {
				return nil, fmt.Errorf("fetching first catalog page: %w", err)
			}
			im.logger.Error("catalog page failed, stopping", "url", url, "error", err)
			break
		}
		summary.Pages++
		if summary.Pages == 1 {
			im.logger.Info("catalog listing", "available", page.Count)
		}

		outcomes := im.importPage(ctx, page.Results, q)
		var events []kafka.Event
		for i, o := range outcomes {
			switch o {
			case OutcomeImported:
				summary.Imported++
				b := page.Results[i]
				events = append(events, kafka.Event{
					Key:   fmt.Sprint(b.ID),
					Value: ImportEvent{BookID: b.ID, Title: b.Title, Timestamp: time.Now().UTC()},
				})
			case OutcomeExisting:
				summary.Existing++
			case OutcomeSkipped:
				summary.Skipped++
			case OutcomeFailed:
				summary.Failed++
			}
		}
		im.announce(ctx, events)
		im.logger.Info("catalog page processed",
			"page", summary.Pages,
			"stored", summary.Stored(),
			"skipped", summary.Skipped,
			"failed", summary.Failed,
		)

		if page.Next == "" || ctx.Err() != nil {
			break
		}
		url = page.Next
		if q.full() {
			break
		}
		select {
		case <-time.After(im.cfg.PagePause):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	summary.Duration = time.Since(start)
	im.logger.Info("catalog import finished",
		"pages", summary.Pages,
		"imported", summary.Imported,
		"existing", summary.Existing,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)
	return summary, ctx.Err()
}

func (im *Importer) importPage(ctx context.Context, books []Book, q *quota) []Outcome {
	outcomes := make([]Outcome, len(books))
	var g errgroup.Group
	g.SetLimit(im.cfg.Workers)
	for i, book := range books {
		g.Go(func() error {
			outcomes[i] = im.importBook(ctx, book, q)
			im.metrics.CatalogBook(string(outcomes[i]))
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func (im *Importer) importBook(ctx context.Context, book Book, q *quota) Outcome {
	log := im.logger.With("book_id", book.ID)
	if q.full() || ctx.Err() != nil {
		return OutcomeLimit
	}
	text, err := im.client.FetchText(ctx, book)
	if errors.Is(err, ErrNoText) {
		log.Debug("book skipped", "reason", "no plain text")
		return OutcomeSkipped
	}
	if err != nil {
		log.Error("downloading book text failed", "error", err)
		return OutcomeFailed
	}
	words := len(strings.Fields(text))
	if words < im.cfg.MinWords {
		log.Debug("book skipped", "title", book.Title, "words", words)
		return OutcomeSkipped
	}
	text = truncate(text, im.cfg.MaxChars)

	if !q.take() {
		return OutcomeLimit
	}
	created, err := im.sink.SaveBook(ctx, book, text)
	if err != nil {
		q.release()
		log.Error("storing book failed", "error", err)
		return OutcomeFailed
	}
	if !created {
		return OutcomeExisting
	}
	log.Info("book imported", "title", book.Title, "words", words)
	return OutcomeImported
}

func (im *Importer) announce(ctx context.Context, events []kafka.Event) {
	if im.publisher == nil || len(events) == 0 {
		return
	}
	if err := im.publisher.PublishBatch(ctx, events); err != nil {
		im.logger.Warn("failed to announce imported books", "count", len(events), "error", err)
	}
}

// truncate keeps the first limit characters of text.
func truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}
