// Package handler serves the search API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trix/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/tracing"
)

// SearchExecutor runs searches. *executor.Executor satisfies it.
type SearchExecutor interface {
	Search(ctx context.Context, req proto.SearchRequest) (*proto.SearchResponse, error)
	Limit(requested int) int
}

// IndexSet lists and reloads indexes. *registry.Registry satisfies it.
type IndexSet interface {
	Infos() []proto.IndexInfo
	Reload(name string) error
}

// Tracker receives search events. *analytics.Collector satisfies it.
type Tracker interface {
	Track(event analytics.SearchEvent)
}

// Config holds the handler's dependencies. Cache, Tracker, Metrics and
// Tracer are optional.
type Config struct {
	Executor      SearchExecutor
	Indexes       IndexSet
	Cache         *cache.QueryCache
	Tracker       Tracker
	Metrics       *metrics.Metrics
	Tracer        *tracing.Tracer
	MaxQueryWords int
	// Admin, when set, wraps the routes that reload indexes or flush the
	// cache.
	Admin func(http.Handler) http.Handler
}

type Handler struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Handler {
	return &Handler{
		cfg:    cfg,
		logger: slog.Default().With("component", "search-handler"),
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/indexes", h.Indexes)
	mux.Handle("POST /api/v1/indexes/{name}/reload", h.admin(h.Reload))
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.Handle("POST /api/v1/cache/invalidate", h.admin(h.CacheInvalidate))
}

func (h *Handler) admin(fn http.HandlerFunc) http.Handler {
	if h.cfg.Admin == nil {
		return fn
	}
	return h.cfg.Admin(fn)
}

// Search serves GET /api/v1/search?q=&index=&mode=&limit=&snippets=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	params := r.URL.Query()

	req := proto.SearchRequest{
		Query: params.Get("q"),
		Index: params.Get("index"),
		Mode:  params.Get("mode"),
	}
	if req.Query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	if s := params.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		req.Limit = n
	}
	if s := params.Get("snippets"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "snippets must be a boolean")
			return
		}
		req.Snippets = b
	}

	ctx, span := tracing.StartSpan(r.Context(), "search", logger.RequestID(r.Context()))
	defer h.cfg.Tracer.Finish(span)
	span.SetAttr("query", req.Query)
	span.SetAttr("index", req.Index)

	resp, cacheHit, err := h.search(ctx, req)
	indexLabel := req.Index
	if indexLabel == "" {
		indexLabel = "all"
	}
	if err != nil {
		h.observe(indexLabel, "error", cacheHit, start, 0)
		status := apperrors.HTTPStatusCode(err)
		msg := err.Error()
		if status >= 500 {
			logger.FromContext(ctx).Error("search failed", "query", req.Query, "error", err)
			msg = "search failed"
		}
		span.SetAttr("error", err.Error())
		h.writeError(w, status, msg)
		return
	}

	resultType := "hit"
	if resp.Total == 0 {
		resultType = "zero_result"
	}
	h.observe(indexLabel, resultType, cacheHit, start, len(resp.Results))
	span.SetAttr("total", resp.Total)
	span.SetAttr("cache_hit", cacheHit)

	latency := time.Since(start).Milliseconds()
	if h.cfg.Tracker != nil {
		h.cfg.Tracker.Track(analytics.SearchEvent{
			Type:      analytics.EventSearch,
			Query:     req.Query,
			Words:     resp.Words,
			Index:     req.Index,
			Mode:      req.Mode,
			TotalHits: resp.Total,
			Returned:  len(resp.Results),
			LatencyMs: latency,
			CacheHit:  cacheHit,
			Partial:   resp.Warning != "",
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestID(ctx),
		})
	}
	logger.FromContext(ctx).Info("search completed",
		"query", req.Query,
		"index", indexLabel,
		"total", resp.Total,
		"returned", len(resp.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) search(ctx context.Context, req proto.SearchRequest) (*proto.SearchResponse, bool, error) {
	if h.cfg.Cache == nil {
		resp, err := h.cfg.Executor.Search(ctx, req)
		return resp, false, err
	}
	q, err := parser.Parse(req.Query, h.cfg.MaxQueryWords)
	if err != nil {
		return nil, false, err
	}
	key := cache.Key{
		Index:    req.Index,
		Mode:     req.Mode,
		Words:    q.Words,
		Limit:    h.cfg.Executor.Limit(req.Limit),
		Snippets: req.Snippets,
	}
	resp, hit, err := h.cfg.Cache.GetOrCompute(ctx, key, func() (*proto.SearchResponse, error) {
		return h.cfg.Executor.Search(ctx, req)
	})
	if err != nil {
		return nil, false, err
	}
	if hit {
		// Echo this request's text; the cached copy may come from a variant.
		resp.Query = req.Query
	}
	return resp, hit, nil
}

func (h *Handler) observe(index, resultType string, cacheHit bool, start time.Time, returned int) {
	m := h.cfg.Metrics
	if m == nil {
		return
	}
	status := "miss"
	if cacheHit {
		status = "hit"
	}
	m.SearchQueriesTotal.WithLabelValues(index, resultType).Inc()
	m.SearchLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if resultType != "error" {
		m.SearchResultsCount.WithLabelValues(index).Observe(float64(returned))
	}
}

// Indexes serves GET /api/v1/indexes.
func (h *Handler) Indexes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, proto.IndexesResponse{Indexes: h.cfg.Indexes.Infos()})
}

// Reload serves POST /api/v1/indexes/{name}/reload. The index is reopened
// from disk and its cached responses dropped.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.cfg.Indexes.Reload(name); err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= 500 {
			logger.FromContext(r.Context()).Error("index reload failed", "index", name, "error", err)
		}
		h.writeError(w, status, err.Error())
		return
	}
	var deleted int64
	if h.cfg.Cache != nil {
		n, err := h.cfg.Cache.InvalidateIndex(r.Context(), name)
		if err != nil {
			logger.FromContext(r.Context()).Warn("cache invalidation after reload failed", "index", name, "error", err)
		}
		deleted = n
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "index": name, "cache_keys_deleted": deleted})
}

// CacheStats serves GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cfg.Cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	body := map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	}
	if size, err := h.cfg.Cache.Size(r.Context()); err == nil {
		body["keys"] = size
	}
	h.writeJSON(w, http.StatusOK, body)
}

// CacheInvalidate serves POST /api/v1/cache/invalidate[?index=name].
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	index := r.URL.Query().Get("index")
	deleted, err := h.cfg.Cache.InvalidateIndex(r.Context(), index)
	if err != nil {
		h.logger.Error("cache invalidation failed", "index", index, "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
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

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
