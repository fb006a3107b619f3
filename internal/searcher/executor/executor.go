// Package executor runs parsed queries against one index or fans them out
// over every open index, then ranks, trims, snippets and describes the
// results.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/registry"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/tracing"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/trix"
)

// ItemDescriber looks up display text for item ids of one index.
type ItemDescriber interface {
	Describe(ctx context.Context, index string, ids []string) (map[string]string, error)
}

// Executor runs searches over a registry.
type Executor struct {
	reg    *registry.Registry
	items  ItemDescriber
	cfg    config.SearchConfig
	logger *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithItemDescriber decorates hits with item descriptions.
func WithItemDescriber(d ItemDescriber) Option {
	return func(e *Executor) { e.items = d }
}

func New(reg *registry.Registry, cfg config.SearchConfig, opts ...Option) *Executor {
	e := &Executor{
		reg:    reg,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// indexResult is what one index contributes to a search.
type indexResult struct {
	ranked  []merger.Ranked
	total   int
	warning string
}

// Search executes req. An empty req.Index searches every index.
func (e *Executor) Search(ctx context.Context, req proto.SearchRequest) (*proto.SearchResponse, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	q, err := parser.Parse(req.Query, e.cfg.MaxQueryWords)
	if err != nil {
		return nil, err
	}
	limit := e.Limit(req.Limit)
	var mode *trix.Mode
	if req.Mode != "" {
		m, err := trix.ParseMode(req.Mode)
		if err != nil {
			return nil, err
		}
		mode = &m
	}

	var handles []*registry.Handle
	if req.Index != "" {
		h, err := e.reg.Get(req.Index)
		if err != nil {
			return nil, err
		}
		handles = []*registry.Handle{h}
	} else {
		handles = e.reg.All()
		if len(handles) == 0 {
			return nil, apperrors.New(apperrors.ErrIndexNotFound, 404, "no indexes are configured")
		}
	}

	results := make([]indexResult, len(handles))
	errs := make([]error, len(handles))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range handles {
		g.Go(func() error {
			results[i], errs[i] = e.searchIndex(gctx, h, q.Words, mode, limit, req.Snippets)
			return nil
		})
	}
	g.Wait()

	resp := &proto.SearchResponse{Query: req.Query, Words: q.Words, Results: []proto.Hit{}}
	lists := make([][]merger.Ranked, 0, len(handles))
	var warnings []string
	failed := 0
	for i, h := range handles {
		if errs[i] != nil {
			failed++
			log.Error("index search failed", "index", h.Name, "error", errs[i])
			warnings = append(warnings, fmt.Sprintf("%s: %v", h.Name, errs[i]))
			continue
		}
		resp.Total += results[i].total
		lists = append(lists, results[i].ranked)
		if results[i].warning != "" {
			warnings = append(warnings, h.Name+": "+results[i].warning)
		}
	}
	if failed == len(handles) {
		return nil, errors.Join(errs...)
	}

	for _, r := range merger.Merge(lists, limit) {
		res := r.Result
		resp.Results = append(resp.Results, proto.Hit{
			Index:           r.Index,
			ItemID:          res.ItemID,
			UnorderedSpan:   res.UnorderedSpan,
			OrderedSpan:     res.OrderedSpan,
			LeftoverLetters: res.LeftoverLetters,
			WordPos:         res.WordPos,
			Snippet:         res.Snippet,
		})
	}
	if w := e.describe(ctx, resp.Results); w != "" {
		warnings = append(warnings, w)
	}
	if len(warnings) > 0 {
		resp.Warning = joinWarnings(warnings)
	}
	resp.LatencyMs = time.Since(start).Milliseconds()

	log.Info("query executed",
		"query", req.Query,
		"words", q.Words,
		"indexes", len(handles),
		"total", resp.Total,
		"returned", len(resp.Results),
		"duration", time.Since(start),
	)
	return resp, nil
}

// Limit clamps a requested result count to the configured bounds.
func (e *Executor) Limit(requested int) int {
	switch {
	case requested <= 0:
		return e.cfg.DefaultLimit
	case requested > e.cfg.MaxResults:
		return e.cfg.MaxResults
	default:
		return requested
	}
}

func (e *Executor) searchIndex(ctx context.Context, h *registry.Handle, words []string, mode *trix.Mode, limit int, snippets bool) (indexResult, error) {
	_, span := tracing.StartChildSpan(ctx, "index:"+h.Name)
	defer span.End()

	m := h.Mode
	if mode != nil {
		m = *mode
	}
	var out indexResult
	err := resilience.WithTimeout(ctx, e.cfg.Timeout, "search "+h.Name, func(context.Context) error {
		var res indexResult
		err := h.Do(func(tx *trix.Trix) error {
			results := tx.Search(words, m)
			res.total = len(results)
			if len(results) > limit {
				results = results[:limit]
			}
			if snippets && len(results) > 0 {
				if !h.Snippets {
					res.warning = "snippets are not available for this index"
				} else if err := tx.AddSnippets(results); err != nil {
					res.warning = err.Error()
				}
			}
			res.ranked = make([]merger.Ranked, len(results))
			for i, r := range results {
				res.ranked[i] = merger.Ranked{Index: h.Name, Result: r}
			}
			return nil
		})
		if err == nil {
			out = res
		}
		return err
	})
	span.SetAttr("mode", m.String())
	if err != nil {
		span.SetAttr("error", err.Error())
		return indexResult{}, err
	}
	span.SetAttr("total", out.total)
	return out, nil
}

// describe fills in item descriptions. Failures only produce a warning.
func (e *Executor) describe(ctx context.Context, hits []proto.Hit) string {
	if e.items == nil || len(hits) == 0 {
		return ""
	}
	byIndex := make(map[string][]string)
	for _, h := range hits {
		byIndex[h.Index] = append(byIndex[h.Index], h.ItemID)
	}
	var mu sync.Mutex
	descriptions := make(map[string]map[string]string, len(byIndex))
	var g errgroup.Group
	for index, ids := range byIndex {
		g.Go(func() error {
			d, err := e.items.Describe(ctx, index, ids)
			if err != nil {
				return fmt.Errorf("describing %s items: %w", index, err)
			}
			mu.Lock()
			descriptions[index] = d
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	for i := range hits {
		hits[i].Description = descriptions[hits[i].Index][hits[i].ItemID]
	}
	if err != nil {
		logger.FromContext(ctx).Warn("item descriptions unavailable", "error", err)
		return "item descriptions unavailable"
	}
	return ""
}

func joinWarnings(ws []string) string {
	out := ws[0]
	for _, w := range ws[1:] {
		out += "; " + w
	}
	return out
}
