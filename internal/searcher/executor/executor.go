// Package executor answers keyword, pattern and highlight queries against the
// stored indices, ranking candidates with a per-query similarity graph.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/searcher/highlight"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/tracing"
)

// Reader is the read side of the storage layer used at query time.
type Reader interface {
	index.DocumentReader
	index.IndexReader
}

type Hit struct {
	ranker.ScoredDoc
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Language      string   `json:"language"`
	DownloadCount int      `json:"download_count"`
	Snippet       string   `json:"highlighted_text,omitempty"`
}

type SearchResult struct {
	Query     string               `json:"query"`
	Kind      analytics.SearchKind `json:"kind"`
	Author    string               `json:"author,omitempty"`
	Term      string               `json:"term,omitempty"`
	TotalHits int                  `json:"total_hits"`
	Results   []Hit                `json:"results"`
}

type Executor struct {
	store   Reader
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(store Reader, cfg config.SearchConfig, m *metrics.Metrics) *Executor {
	return &Executor{
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  logger.WithComponent("query-executor"),
	}
}

// Search looks up the first term of query, optionally keeps only books with
// a matching author, and ranks by occurrence count then PageRank.
func (e *Executor) Search(ctx context.Context, query, author string) (res *SearchResult, err error) {
	start := time.Now()
	res = &SearchResult{Query: query, Kind: analytics.KindKeyword, Author: author, Results: []Hit{}}
	defer func() { e.observe(analytics.KindKeyword, res, err, start) }()

	term, ok := tokenizer.Normalize(query)
	if !ok {
		return res, nil
	}
	res.Term = term

	_, span := tracing.StartChildSpan(ctx, "keyword.postings")
	postings, err := e.store.Postings(ctx, term)
	span.SetAttr("postings", len(postings))
	span.End()
	if err != nil {
		return nil, fmt.Errorf("looking up postings for %q: %w", term, err)
	}
	counts := postings.CountsByDoc()

	if author = strings.TrimSpace(author); author != "" {
		ids, err := e.store.DocumentsByAuthor(ctx, author)
		if err != nil {
			return nil, fmt.Errorf("looking up author %q: %w", author, err)
		}
		byAuthor := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			byAuthor[id] = struct{}{}
		}
		for id := range counts {
			if _, ok := byAuthor[id]; !ok {
				delete(counts, id)
			}
		}
	}

	ranked, err := e.rank(ctx, counts, ranker.RankByOccurrence)
	if err != nil {
		return nil, err
	}
	res.TotalHits = len(ranked)
	res.Results, err = e.hydrate(ctx, ranked)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// AdvancedSearch treats query as a case-insensitive regular expression and
// unions title matches, raw text matches over the most popular books and
// documents containing a matching term from the most frequent vocabulary.
// Results are ranked by occurrences of matched terms plus PageRank.
func (e *Executor) AdvancedSearch(ctx context.Context, pattern string) (res *SearchResult, err error) {
	start := time.Now()
	res = &SearchResult{Query: pattern, Kind: analytics.KindPattern, Results: []Hit{}}
	defer func() { e.observe(analytics.KindPattern, res, err, start) }()

	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		counts = make(map[int64]int)
	)
	include := func(ids []int64) {
		mu.Lock()
		defer mu.Unlock()
		for _, id := range ids {
			if _, seen := counts[id]; !seen {
				counts[id] = 0
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, span := tracing.StartChildSpan(ctx, "pattern.titles")
		defer span.End()
		ids, err := e.store.MatchTitles(gctx, pattern, e.cfg.MaxResults)
		if err != nil {
			return fmt.Errorf("matching titles: %w", err)
		}
		span.SetAttr("matches", len(ids))
		include(ids)
		return nil
	})
	g.Go(func() error {
		_, span := tracing.StartChildSpan(ctx, "pattern.text")
		defer span.End()
		ids, err := e.store.MatchText(gctx, pattern, e.cfg.TextScanBudget)
		if err != nil {
			return fmt.Errorf("matching text: %w", err)
		}
		span.SetAttr("matches", len(ids))
		include(ids)
		return nil
	})
	g.Go(func() error {
		_, span := tracing.StartChildSpan(ctx, "pattern.vocabulary")
		defer span.End()
		vocab, err := e.store.TopTerms(gctx, e.cfg.VocabularyScanLimit)
		if err != nil {
			return fmt.Errorf("listing vocabulary: %w", err)
		}
		var matched []string
		for _, tc := range vocab {
			if re.MatchString(tc.Term) {
				matched = append(matched, tc.Term)
			}
		}
		span.SetAttr("terms", len(matched))
		if len(matched) == 0 {
			return nil
		}
		postings, err := e.store.Postings(gctx, matched...)
		if err != nil {
			return fmt.Errorf("expanding matched terms: %w", err)
		}
		mu.Lock()
		for id, c := range postings.CountsByDoc() {
			counts[id] += c
		}
		mu.Unlock()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked, err := e.rank(ctx, counts, ranker.RankByScore)
	if err != nil {
		return nil, err
	}
	res.TotalHits = len(ranked)
	res.Results, err = e.hydrate(ctx, ranked)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// HighlightSearch returns every book containing the exact term, most popular
// first. Snippets are filled in per page by Snippets.
func (e *Executor) HighlightSearch(ctx context.Context, query string) (res *SearchResult, err error) {
	start := time.Now()
	res = &SearchResult{Query: query, Kind: analytics.KindHighlight, Results: []Hit{}}
	defer func() { e.observe(analytics.KindHighlight, res, err, start) }()

	if strings.TrimSpace(query) == "" {
		return nil, apperrors.Invalid("query is required")
	}
	term, ok := tokenizer.Normalize(query)
	if !ok {
		return res, nil
	}
	res.Term = term

	postings, err := e.store.Postings(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("looking up postings for %q: %w", term, err)
	}
	counts := postings.CountsByDoc()
	docs, err := e.store.GetDocuments(ctx, postings.DocIDs(), false)
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	for _, doc := range docs {
		c := counts[doc.ID]
		res.Results = append(res.Results, newHit(ranker.ScoredDoc{DocID: doc.ID, Occurrences: c, Score: float64(c)}, doc))
	}
	res.TotalHits = len(res.Results)
	return res, nil
}

// Snippets returns a copy of hits with each snippet marking up to
// HighlightMaxPositions occurrences of term. Only the given documents' text
// is loaded.
func (e *Executor) Snippets(ctx context.Context, term string, hits []Hit) ([]Hit, error) {
	out := make([]Hit, len(hits))
	copy(out, hits)
	if term == "" || len(hits) == 0 {
		return out, nil
	}
	_, span := tracing.StartChildSpan(ctx, "highlight.snippets")
	defer span.End()

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
	}
	postings, err := e.store.Postings(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("looking up postings for %q: %w", term, err)
	}
	positions := make(map[int64][]int, len(hits))
	for _, p := range postings {
		positions[p.DocID] = p.Positions
	}
	docs, err := e.store.GetDocuments(ctx, ids, true)
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	text := make(map[int64]string, len(docs))
	for _, d := range docs {
		text[d.ID] = d.Text
	}

	opts := highlight.Options{
		Window:       e.cfg.HighlightWindow,
		MaxPositions: e.cfg.HighlightMaxPositions,
		Fallback:     500,
	}
	termLen := utf8.RuneCountInString(term)
	for i := range out {
		out[i].Snippet = highlight.Snippet(text[out[i].DocID], positions[out[i].DocID], termLen, opts)
	}
	span.SetAttr("documents", len(out))
	return out, nil
}

// rank builds the similarity graph over the candidateCap documents with the
// most occurrences and orders every document in counts with order.
func (e *Executor) rank(
	ctx context.Context,
	counts map[int64]int,
	order func(map[int64]int, map[int64]float64) []ranker.ScoredDoc,
) ([]ranker.ScoredDoc, error) {
	if len(counts) == 0 {
		return nil, nil
	}
	_, span := tracing.StartChildSpan(ctx, "rank.pagerank")
	defer span.End()

	candidates := ranker.TopByOccurrence(counts, e.cfg.CandidateCap)
	termSets, err := e.store.TermSets(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("loading term sets: %w", err)
	}
	graph := ranker.BuildGraph(candidates, termSets)
	scores, iterations := ranker.PageRank(graph)
	e.metrics.ObserveRanking(len(candidates), iterations)
	span.SetAttr("candidates", len(candidates))
	span.SetAttr("edges", len(graph.Edges))
	span.SetAttr("iterations", iterations)
	return order(counts, scores), nil
}

func (e *Executor) hydrate(ctx context.Context, ranked []ranker.ScoredDoc) ([]Hit, error) {
	if len(ranked) == 0 {
		return []Hit{}, nil
	}
	ids := make([]int64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.DocID
	}
	docs, err := e.store.GetDocuments(ctx, ids, false)
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	byID := make(map[int64]index.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	hits := make([]Hit, 0, len(ranked))
	for _, r := range ranked {
		doc, ok := byID[r.DocID]
		if !ok {
			e.logger.Warn("ranked document missing from catalog", "doc_id", r.DocID)
			continue
		}
		hits = append(hits, newHit(r, doc))
	}
	return hits, nil
}

func (e *Executor) observe(kind analytics.SearchKind, res *SearchResult, err error, start time.Time) {
	elapsed := time.Since(start)
	if err != nil {
		outcome := "error"
		if errors.Is(err, apperrors.ErrInvalidInput) {
			outcome = "invalid"
		}
		e.metrics.ObserveSearch(string(kind), outcome, 0, elapsed)
		e.logger.Warn("query failed", "kind", kind, "error", err, "elapsed", elapsed)
		return
	}
	outcome := "hit"
	if res.TotalHits == 0 {
		outcome = "zero_result"
	}
	e.metrics.ObserveSearch(string(kind), outcome, len(res.Results), elapsed)
	e.logger.Info("query executed",
		"kind", kind,
		"query", res.Query,
		"term", res.Term,
		"total_hits", res.TotalHits,
		"elapsed", elapsed,
	)
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, apperrors.Invalid("pattern is required")
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, apperrors.Invalid("invalid pattern %q: %v", pattern, err)
	}
	return re, nil
}

func newHit(r ranker.ScoredDoc, doc index.Document) Hit {
	return Hit{
		ScoredDoc:     r,
		Title:         doc.Title,
		Authors:       doc.Authors,
		Language:      doc.Language,
		DownloadCount: doc.DownloadCount,
	}
}
