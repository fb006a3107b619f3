package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/trix/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/proto"
)

type fakeExecutor struct {
	calls int
	last  proto.SearchRequest
}

func (f *fakeExecutor) Search(_ context.Context, req proto.SearchRequest) (*proto.SearchResponse, error) {
	f.calls++
	f.last = req
	if req.Index == "missing" {
		return nil, apperrors.Newf(apperrors.ErrIndexNotFound, 404, "no index named %q", req.Index)
	}
	if req.Query == "boom" {
		return nil, apperrors.ErrCorruptIndex
	}
	words := strings.Fields(strings.ToLower(req.Query))
	resp := &proto.SearchResponse{Query: req.Query, Words: words, Results: []proto.Hit{}}
	if words[0] == "fox" {
		resp.Total = 1
		resp.Results = append(resp.Results, proto.Hit{Index: "genes", ItemID: "g1", WordPos: []int{0}})
	}
	return resp, nil
}

func (f *fakeExecutor) Limit(n int) int {
	if n <= 0 {
		return 10
	}
	return n
}

type fakeIndexes struct{ reloaded []string }

func (f *fakeIndexes) Infos() []proto.IndexInfo {
	return []proto.IndexInfo{{Name: "genes", Path: "/data/genes.ix", Mode: "expand"}}
}

func (f *fakeIndexes) Reload(name string) error {
	if name != "genes" {
		return apperrors.Newf(apperrors.ErrIndexNotFound, 404, "no index named %q", name)
	}
	f.reloaded = append(f.reloaded, name)
	return nil
}

type tracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (t *tracker) Track(e analytics.SearchEvent) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return nil, redis.Nil
}

func (s *mapStore) Set(_ context.Context, key string, v []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = v
	return nil
}

func (s *mapStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func (s *mapStore) CountKeys(_ context.Context, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.data)), nil
}

type fixture struct {
	mux     *http.ServeMux
	exec    *fakeExecutor
	indexes *fakeIndexes
	tracker *tracker
	metrics *metrics.Metrics
}

func newFixture(withCache bool) *fixture {
	f := &fixture{
		exec:    &fakeExecutor{},
		indexes: &fakeIndexes{},
		tracker: &tracker{},
		metrics: metrics.NewWithRegistry(prometheus.NewRegistry()),
	}
	cfg := Config{
		Executor:      f.exec,
		Indexes:       f.indexes,
		Tracker:       f.tracker,
		Metrics:       f.metrics,
		MaxQueryWords: 8,
	}
	if withCache {
		cfg.Cache = cache.New(&mapStore{data: map[string][]byte{}}, time.Minute)
	}
	f.mux = http.NewServeMux()
	New(cfg).Register(f.mux)
	return f
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSearch(t *testing.T) {
	f := newFixture(false)
	rec := f.do(http.MethodGet, "/api/v1/search?q=fox&index=genes&mode=exact&limit=5&snippets=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	resp := decode[proto.SearchResponse](t, rec)
	if resp.Total != 1 || resp.Results[0].ItemID != "g1" {
		t.Errorf("response = %+v", resp)
	}
	want := proto.SearchRequest{Query: "fox", Index: "genes", Mode: "exact", Limit: 5, Snippets: true}
	if f.exec.last.Query != want.Query || f.exec.last.Index != want.Index || f.exec.last.Mode != want.Mode ||
		f.exec.last.Limit != want.Limit || f.exec.last.Snippets != want.Snippets {
		t.Errorf("executor request = %+v", f.exec.last)
	}
	if len(f.tracker.events) != 1 || f.tracker.events[0].TotalHits != 1 || f.tracker.events[0].Index != "genes" {
		t.Errorf("tracked events = %+v", f.tracker.events)
	}
	if got := testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("genes", "hit")); got != 1 {
		t.Errorf("hit counter = %v", got)
	}
}

func TestSearchBadRequests(t *testing.T) {
	f := newFixture(false)
	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=fox&limit=0",
		"/api/v1/search?q=fox&limit=ten",
		"/api/v1/search?q=fox&snippets=maybe",
	} {
		if rec := f.do(http.MethodGet, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
	if f.exec.calls != 0 {
		t.Errorf("executor called %d times for bad requests", f.exec.calls)
	}
}

func TestSearchErrorStatus(t *testing.T) {
	f := newFixture(false)
	if rec := f.do(http.MethodGet, "/api/v1/search?q=fox&index=missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing index status = %d", rec.Code)
	}
	rec := f.do(http.MethodGet, "/api/v1/search?q=boom")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("corrupt index status = %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] != "search failed" {
		t.Errorf("internal error leaked: %v", body)
	}
	if got := testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("all", "error")); got != 1 {
		t.Errorf("error counter = %v", got)
	}
}

func TestSearchCached(t *testing.T) {
	f := newFixture(true)
	first := decode[proto.SearchResponse](t, f.do(http.MethodGet, "/api/v1/search?q=fox"))
	second := decode[proto.SearchResponse](t, f.do(http.MethodGet, "/api/v1/search?q=FOX"))
	if f.exec.calls != 1 {
		t.Errorf("executor called %d times, want 1", f.exec.calls)
	}
	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v, %v", first.Cached, second.Cached)
	}
	if second.Query != "FOX" {
		t.Errorf("cached response echoes %q", second.Query)
	}
	if !f.tracker.events[1].CacheHit {
		t.Error("second event not marked as a cache hit")
	}
	if rec := f.do(http.MethodGet, "/api/v1/search?q=%21%21"); rec.Code != http.StatusBadRequest {
		t.Errorf("wordless query status = %d", rec.Code)
	}

	stats := decode[map[string]any](t, f.do(http.MethodGet, "/api/v1/cache/stats"))
	if stats["hits"] != float64(1) || stats["misses"] != float64(1) {
		t.Errorf("cache stats = %v", stats)
	}

	f.do(http.MethodPost, "/api/v1/cache/invalidate")
	f.do(http.MethodGet, "/api/v1/search?q=fox")
	if f.exec.calls != 2 {
		t.Errorf("executor called %d times after invalidation, want 2", f.exec.calls)
	}
}

func TestIndexesAndReload(t *testing.T) {
	f := newFixture(true)
	infos := decode[proto.IndexesResponse](t, f.do(http.MethodGet, "/api/v1/indexes"))
	if len(infos.Indexes) != 1 || infos.Indexes[0].Name != "genes" {
		t.Errorf("indexes = %+v", infos)
	}
	f.do(http.MethodGet, "/api/v1/search?q=fox&index=genes")
	rec := f.do(http.MethodPost, "/api/v1/indexes/genes/reload")
	if rec.Code != http.StatusOK {
		t.Fatalf("reload status = %d: %s", rec.Code, rec.Body)
	}
	body := decode[map[string]any](t, rec)
	if body["cache_keys_deleted"] != float64(1) {
		t.Errorf("reload body = %v", body)
	}
	if len(f.indexes.reloaded) != 1 {
		t.Error("index not reloaded")
	}
	if rec := f.do(http.MethodPost, "/api/v1/indexes/nope/reload"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown index reload status = %d", rec.Code)
	}
}

func TestCacheDisabled(t *testing.T) {
	f := newFixture(false)
	if body := decode[map[string]string](t, f.do(http.MethodGet, "/api/v1/cache/stats")); body["status"] != "disabled" {
		t.Errorf("stats = %v", body)
	}
	if rec := f.do(http.MethodPost, "/api/v1/cache/invalidate"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d", rec.Code)
	}
}

func TestAdminRoutesGuarded(t *testing.T) {
	f := newFixture(true)
	guarded := 0
	cfg := Config{
		Executor: f.exec,
		Indexes:  f.indexes,
		Metrics:  f.metrics,
		Cache:    cache.New(&mapStore{data: map[string][]byte{}}, time.Minute),
		Admin: func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				guarded++
				w.WriteHeader(http.StatusUnauthorized)
			})
		},
	}
	mux := http.NewServeMux()
	New(cfg).Register(mux)
	for _, target := range []string{"/api/v1/indexes/genes/reload", "/api/v1/cache/invalidate"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", target, rec.Code)
		}
	}
	if guarded != 2 || len(f.indexes.reloaded) != 0 {
		t.Errorf("guarded = %d, reloaded = %v", guarded, f.indexes.reloaded)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/indexes", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("indexes status = %d", rec.Code)
	}
}
