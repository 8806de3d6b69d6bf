// Package indexer builds the inverted and forward indices over the stored
// book corpus and maintains their TF-IDF weights.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/tfidf"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/metrics"
)

type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Engine struct {
	store       index.Store
	parallelism int
	publisher   EventPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	running     atomic.Bool
}

type Option func(*Engine)

// WithPublisher announces every finished build on the index.complete topic.
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(store index.Store, cfg config.IndexerConfig, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		parallelism: cfg.Parallelism,
		logger:      logger.WithComponent("indexer"),
	}
	if e.parallelism < 1 {
		e.parallelism = 1
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Running reports whether a build is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

type buildFunc func(context.Context) ([]DocResult, error)

// Run dispatches to the build for mode.
func (e *Engine) Run(ctx context.Context, mode Mode) (*Report, error) {
	build, err := e.builder(mode)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, mode, build)
}

// Start claims the engine for a build of mode and runs it in the background,
// calling done with the outcome once the engine is free again. It returns
// ErrIndexBusy without starting anything if another build holds the engine.
func (e *Engine) Start(ctx context.Context, mode Mode, done func(*Report, error)) error {
	build, err := e.builder(mode)
	if err != nil {
		return err
	}
	if !e.running.CompareAndSwap(false, true) {
		return apperrors.ErrIndexBusy
	}
	go func() {
		report, err := e.execute(ctx, mode, build)
		e.running.Store(false)
		if done != nil {
			done(report, err)
		}
	}()
	return nil
}

func (e *Engine) builder(mode Mode) (buildFunc, error) {
	switch mode {
	case ModeInverted, ModeDual:
		return e.rebuild(mode), nil
	case ModeTFIDF:
		return e.buildTFIDF, nil
	case ModeRecompute:
		return e.recompute, nil
	default:
		return nil, apperrors.Invalid("unknown index mode %q", mode)
	}
}

// Rebuild clears both indices and re-indexes every document with text. Dual
// mode also writes unscored forward entries.
func (e *Engine) Rebuild(ctx context.Context, mode Mode) (*Report, error) {
	if mode != ModeInverted && mode != ModeDual {
		return nil, apperrors.Invalid("rebuild mode must be inverted or dual, got %q", mode)
	}
	return e.run(ctx, mode, e.rebuild(mode))
}

func (e *Engine) rebuild(mode Mode) buildFunc {
	return func(ctx context.Context) ([]DocResult, error) {
		docs, err := e.prepare(ctx)
		if err != nil {
			return nil, err
		}
		results := runPool(ctx, e.parallelism, docs, func(ctx context.Context, doc index.Document) DocResult {
			return e.IndexDocument(ctx, doc, mode == ModeDual)
		})
		if err := ctx.Err(); err != nil {
			return results, err
		}
		return results, nil
	}
}

// IndexDocument tokenizes one document and commits its postings. A panic
// while tokenizing is reported as a failure of this document only.
func (e *Engine) IndexDocument(ctx context.Context, doc index.Document, forward bool) (res DocResult) {
	defer func() {
		if r := recover(); r != nil {
			res = failed(doc.ID, fmt.Errorf("panic while indexing: %v", r))
		}
		e.logResult(res)
	}()
	if doc.Text == "" {
		return skipped(doc.ID, "no text")
	}
	positions := tokenizer.New(doc.Language).Positions(doc.Text)
	if len(positions) == 0 {
		return skipped(doc.ID, "no qualifying terms")
	}
	postings := index.NewPostings(doc.ID, positions)
	var entries []index.ForwardEntry
	if forward {
		entries = postings.Forward()
	}
	if err := e.store.Commit(ctx, doc.ID, postings, entries); err != nil {
		return failed(doc.ID, fmt.Errorf("committing postings: %w", err))
	}
	return DocResult{DocID: doc.ID, Status: StatusIndexed, Terms: len(postings)}
}

type tokenized struct {
	doc       index.Document
	positions map[string][]int
	result    DocResult
}

// BuildTFIDF clears both indices and runs the two-pass build: the first pass
// tokenizes every document with the scoring tokenizer and gathers document
// frequencies, the second weighs and commits each document.
func (e *Engine) BuildTFIDF(ctx context.Context) (*Report, error) {
	return e.run(ctx, ModeTFIDF, e.buildTFIDF)
}

func (e *Engine) buildTFIDF(ctx context.Context) ([]DocResult, error) {
	docs, err := e.prepare(ctx)
	if err != nil {
		return nil, err
	}

	pass1 := runPool(ctx, e.parallelism, docs, e.tokenizeForScoring)
	stats := tfidf.NewStats()
	results := make([]DocResult, 0, len(docs))
	ready := make([]tokenized, 0, len(pass1))
	for _, t := range pass1 {
		if t.result.Status != "" {
			results = append(results, t.result)
			e.logResult(t.result)
			continue
		}
		stats.AddDocument(tfidf.Counts(t.positions))
		ready = append(ready, t)
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	e.logger.Info("corpus statistics collected", "documents", stats.N, "vocabulary", len(stats.DF))

	pass2 := runPool(ctx, e.parallelism, ready, func(ctx context.Context, t tokenized) DocResult {
		res := e.commitScored(ctx, stats, t)
		e.logResult(res)
		return res
	})
	return append(results, pass2...), nil
}

func (e *Engine) tokenizeForScoring(_ context.Context, doc index.Document) (t tokenized) {
	t.doc = doc
	defer func() {
		if r := recover(); r != nil {
			t.result = failed(doc.ID, fmt.Errorf("panic while tokenizing: %v", r))
		}
	}()
	if doc.Text == "" {
		t.result = skipped(doc.ID, "no text")
		return t
	}
	t.positions = tokenizer.New(doc.Language).Scoring().Positions(doc.Text)
	if len(t.positions) == 0 {
		t.result = skipped(doc.ID, "no qualifying terms")
	}
	return t
}

func (e *Engine) commitScored(ctx context.Context, stats *tfidf.Stats, t tokenized) DocResult {
	postings := index.NewPostings(t.doc.ID, t.positions)
	entries := stats.Score(postings.Forward())
	if err := e.store.Commit(ctx, t.doc.ID, postings, entries); err != nil {
		return failed(t.doc.ID, fmt.Errorf("committing scored postings: %w", err))
	}
	return DocResult{DocID: t.doc.ID, Status: StatusIndexed, Terms: len(postings)}
}

// RecomputeTFIDF rewrites the weights of every forward entry from the stored
// counts and a fresh document-frequency aggregation over the inverted index,
// without tokenizing any text. N is the number of documents in the inverted
// index, the population the frequencies are counted over.
func (e *Engine) RecomputeTFIDF(ctx context.Context) (*Report, error) {
	return e.run(ctx, ModeRecompute, e.recompute)
}

func (e *Engine) recompute(ctx context.Context) ([]DocResult, error) {
	ids, err := e.store.ForwardDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing forward documents: %w", err)
	}
	n, err := e.store.IndexedDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting indexed documents: %w", err)
	}
	df, err := e.store.DocumentFrequencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregating document frequencies: %w", err)
	}
	stats := tfidf.FromFrequencies(n, df)
	e.logger.Info("recomputing tf-idf", "documents", stats.N, "forward", len(ids), "vocabulary", len(df))

	results := runPool(ctx, e.parallelism, ids, func(ctx context.Context, id int64) DocResult {
		res := e.rescore(ctx, stats, id)
		e.logResult(res)
		return res
	})
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (e *Engine) rescore(ctx context.Context, stats *tfidf.Stats, docID int64) DocResult {
	entries, err := e.store.ForwardEntries(ctx, docID)
	if err != nil {
		return failed(docID, fmt.Errorf("loading forward entries: %w", err))
	}
	scored := stats.Score(entries)
	if scored == nil {
		return skipped(docID, "no counted terms")
	}
	if err := e.store.UpdateScores(ctx, docID, scored); err != nil {
		return failed(docID, fmt.Errorf("updating scores: %w", err))
	}
	return DocResult{DocID: docID, Status: StatusIndexed, Terms: len(scored)}
}

func (e *Engine) prepare(ctx context.Context) ([]index.Document, error) {
	if err := e.store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("clearing indices: %w", err)
	}
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// run serialises builds with Start.
func (e *Engine) run(ctx context.Context, mode Mode, build buildFunc) (*Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, apperrors.ErrIndexBusy
	}
	defer e.running.Store(false)
	return e.execute(ctx, mode, build)
}

// execute times a claimed build and announces the outcome.
func (e *Engine) execute(ctx context.Context, mode Mode, build buildFunc) (*Report, error) {
	start := time.Now()
	e.logger.Info("index build started", "mode", mode, "parallelism", e.parallelism)
	results, err := build(ctx)
	report := newReport(mode, results)
	report.Duration = time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.IndexBuild(string(mode), status, report.Duration)
	if err != nil {
		e.logger.Error("index build aborted", "mode", mode, "error", err)
		return report, fmt.Errorf("%s build: %w", mode, err)
	}

	e.logger.Info("index build finished",
		"mode", mode,
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	e.announce(ctx, report)
	return report, nil
}

func (e *Engine) announce(ctx context.Context, report *Report) {
	if e.publisher == nil {
		return
	}
	event := analytics.IndexEvent{
		Type:      analytics.EventIndexBuild,
		Mode:      string(report.Mode),
		Indexed:   report.Indexed,
		Skipped:   report.Skipped,
		Failed:    report.Failed,
		LatencyMs: report.Duration.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if err := e.publisher.Publish(ctx, kafka.Event{Key: string(report.Mode), Value: event}); err != nil {
		e.logger.Warn("failed to announce index build", "mode", report.Mode, "error", err)
	}
}

func (e *Engine) logResult(res DocResult) {
	e.metrics.DocumentIndexed(string(res.Status))
	switch res.Status {
	case StatusFailed:
		e.logger.Error("document failed", "doc_id", res.DocID, "reason", res.Reason)
	case StatusSkipped:
		e.logger.Debug("document skipped", "doc_id", res.DocID, "reason", res.Reason)
	default:
		e.logger.Debug("document indexed", "doc_id", res.DocID, "terms", res.Terms)
	}
}
