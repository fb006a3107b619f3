package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trix/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/rpc"
)

// RPC method names.
const (
	MethodSearch  = "TrixService.Search"
	MethodIndexes = "TrixService.Indexes"
)

// RegisterRPC exposes search and index listing on s. Searches go through
// the same cache, metrics and analytics as HTTP ones.
func (h *Handler) RegisterRPC(s *rpc.Server) {
	s.Register(MethodSearch, h.rpcSearch)
	s.Register(MethodIndexes, func(context.Context, json.RawMessage) (any, error) {
		return proto.IndexesResponse{Indexes: h.cfg.Indexes.Infos()}, nil
	})
}

func (h *Handler) rpcSearch(ctx context.Context, raw json.RawMessage) (any, error) {
	start := time.Now()
	var req proto.SearchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "decoding search request: %v", err)
	}
	if req.Limit < 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "limit must not be negative")
	}
	indexLabel := req.Index
	if indexLabel == "" {
		indexLabel = "all"
	}
	resp, cacheHit, err := h.search(ctx, req)
	if err != nil {
		h.observe(indexLabel, "error", cacheHit, start, 0)
		return nil, fmt.Errorf("search %q: %w", req.Query, err)
	}
	resultType := "hit"
	if resp.Total == 0 {
		resultType = "zero_result"
	}
	h.observe(indexLabel, resultType, cacheHit, start, len(resp.Results))
	if h.cfg.Tracker != nil {
		h.cfg.Tracker.Track(analytics.SearchEvent{
			Type:      analytics.EventSearch,
			Query:     req.Query,
			Words:     resp.Words,
			Index:     req.Index,
			Mode:      req.Mode,
			TotalHits: resp.Total,
			Returned:  len(resp.Results),
			LatencyMs: time.Since(start).Milliseconds(),
			CacheHit:  cacheHit,
			Partial:   resp.Warning != "",
			RequestID: logger.RequestID(ctx),
		})
	}
	return resp, nil
}
