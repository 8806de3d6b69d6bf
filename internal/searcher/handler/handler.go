package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/tracing"
)

type SearchExecutor interface {
	Search(ctx context.Context, query, author string) (*executor.SearchResult, error)
	AdvancedSearch(ctx context.Context, pattern string) (*executor.SearchResult, error)
	HighlightSearch(ctx context.Context, query string) (*executor.SearchResult, error)
	Snippets(ctx context.Context, term string, hits []executor.Hit) ([]executor.Hit, error)
}

type IndexRunner interface {
	Run(ctx context.Context, mode indexer.Mode) (*indexer.Report, error)
	// Start claims the indexer and builds in the background. It fails with
	// ErrIndexBusy when a build is already running.
	Start(ctx context.Context, mode indexer.Mode, done func(*indexer.Report, error)) error
}

type EventTracker interface {
	Track(event interface{})
}

type Handler struct {
	executor     SearchExecutor
	indexer      IndexRunner
	cache        *cache.QueryCache
	collector    EventTracker
	defaultLimit int
	maxResults   int
	builds       sync.WaitGroup
	logger       *slog.Logger
}

func New(exec SearchExecutor, idx IndexRunner, queryCache *cache.QueryCache, collector EventTracker, defaultLimit, maxResults int) *Handler {
	return &Handler{
		executor:     exec,
		indexer:      idx,
		cache:        queryCache,
		collector:    collector,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       logger.WithComponent("search-handler"),
	}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/books/search", h.Search)
	mux.HandleFunc("GET /api/v1/books/advanced-search", h.AdvancedSearch)
	mux.HandleFunc("GET /api/v1/books/highlight-search", h.HighlightSearch)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("POST /api/v1/index/recompute", h.Recompute)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Page is one page of a ranked result list.
type Page struct {
	Query      string               `json:"query"`
	Kind       analytics.SearchKind `json:"kind"`
	Term       string               `json:"term,omitempty"`
	Author     string               `json:"author,omitempty"`
	Count      int                  `json:"count"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
	CacheHit   bool                 `json:"cache_hit"`
	Results    []executor.Hit       `json:"results"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	author := strings.TrimSpace(q.Get("author"))
	h.serveQuery(w, r, analytics.KindKeyword, author, func(ctx context.Context, query string) (*executor.SearchResult, error) {
		return h.executor.Search(ctx, query, author)
	})
}

func (h *Handler) AdvancedSearch(w http.ResponseWriter, r *http.Request) {
	h.serveQuery(w, r, analytics.KindPattern, "", h.executor.AdvancedSearch)
}

func (h *Handler) HighlightSearch(w http.ResponseWriter, r *http.Request) {
	h.serveQuery(w, r, analytics.KindHighlight, "", h.executor.HighlightSearch)
}

func (h *Handler) serveQuery(
	w http.ResponseWriter,
	r *http.Request,
	kind analytics.SearchKind,
	author string,
	run func(ctx context.Context, query string) (*executor.SearchResult, error),
) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "search."+string(kind), middleware.GetRequestID(r.Context()))
	log := logger.FromContext(ctx)
	defer func() {
		span.End()
		span.Log(log)
	}()

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, apperrors.Invalid("query parameter 'q' is required"))
		return
	}
	page, pageSize, err := h.pagination(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var result *executor.SearchResult
	cacheHit := false
	if h.cache != nil {
		key := cache.Key{Kind: kind, Query: query, Author: author}
		result, cacheHit, err = h.cache.GetOrCompute(ctx, key, func() (*executor.SearchResult, error) {
			return run(ctx, query)
		})
	} else {
		result, err = run(ctx, query)
	}
	span.SetAttr("cache_hit", cacheHit)
	if err != nil {
		log.Error("search failed", "kind", kind, "query", query, "error", err)
		h.writeError(w, err)
		return
	}

	resp := paginate(result, page, pageSize)
	resp.CacheHit = cacheHit
	if kind == analytics.KindHighlight {
		resp.Results, err = h.executor.Snippets(ctx, result.Term, resp.Results)
		if err != nil {
			log.Error("building snippets failed", "query", query, "error", err)
			h.writeError(w, err)
			return
		}
	}
	latencyMs := time.Since(start).Milliseconds()
	log.Info("search completed",
		"kind", kind,
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(resp.Results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	if h.collector != nil {
		h.collector.Track(analytics.SearchEvent{
			Type:      analytics.EventSearch,
			Kind:      kind,
			Query:     query,
			Author:    author,
			TotalHits: result.TotalHits,
			Returned:  len(resp.Results),
			LatencyMs: latencyMs,
			CacheHit:  cacheHit,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(ctx),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) pagination(r *http.Request) (page, size int, err error) {
	page, size = 1, h.defaultLimit
	if v := r.URL.Query().Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 1 {
			return 0, 0, apperrors.Invalid("page must be a positive integer")
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		size, err = strconv.Atoi(v)
		if err != nil || size < 1 {
			return 0, 0, apperrors.Invalid("page_size must be a positive integer")
		}
		if size > h.maxResults {
			size = h.maxResults
		}
	}
	return page, size, nil
}

func paginate(res *executor.SearchResult, page, size int) Page {
	total := len(res.Results)
	p := Page{
		Query:      res.Query,
		Kind:       res.Kind,
		Term:       res.Term,
		Author:     res.Author,
		Count:      res.TotalHits,
		Page:       page,
		PageSize:   size,
		TotalPages: (total + size - 1) / size,
		Results:    []executor.Hit{},
	}
	from := (page - 1) * size
	if from >= total {
		return p
	}
	to := min(from+size, total)
	p.Results = res.Results[from:to]
	return p
}

// Rebuild starts an index build in the background and answers 202. With
// wait=true it blocks and returns the build report instead.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	mode, err := indexer.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		h.writeError(w, apperrors.Invalid("%v", err))
		return
	}
	if mode == indexer.ModeRecompute {
		h.writeError(w, apperrors.Invalid("use POST /api/v1/index/recompute to recompute tf-idf"))
		return
	}
	h.startBuild(w, r, mode)
}

func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	h.startBuild(w, r, indexer.ModeRecompute)
}

func (h *Handler) startBuild(w http.ResponseWriter, r *http.Request, mode indexer.Mode) {
	if h.indexer == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "indexing is disabled"))
		return
	}
	if r.URL.Query().Get("wait") == "true" {
		report, err := h.indexer.Run(r.Context(), mode)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.afterBuild(r.Context(), mode)
		h.writeJSON(w, http.StatusOK, report)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	h.builds.Add(1)
	err := h.indexer.Start(ctx, mode, func(_ *indexer.Report, err error) {
		defer h.builds.Done()
		if err != nil {
			logger.FromContext(ctx).Error("background index build failed", "mode", mode, "error", err)
			return
		}
		h.afterBuild(ctx, mode)
	})
	if err != nil {
		h.builds.Done()
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "mode": string(mode)})
}

func (h *Handler) afterBuild(ctx context.Context, mode indexer.Mode) {
	if h.cache == nil {
		return
	}
	if _, err := h.cache.Invalidate(ctx); err != nil {
		h.logger.Warn("cache invalidation after build failed", "mode", mode, "error", err)
	}
}

// Wait blocks until background builds started by this handler finish.
func (h *Handler) Wait() {
	h.builds.Wait()
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": apperrors.PublicMessage(err)})
}
