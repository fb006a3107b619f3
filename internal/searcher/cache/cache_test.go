package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/trix/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/proto"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountKeys(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			n++
		}
	}
	return n, nil
}

func TestKeyString(t *testing.T) {
	a := Key{Index: "genes", Mode: "expand", Words: []string{"brown", "fox"}, Limit: 10}
	b := Key{Index: "genes", Mode: "expand", Words: []string{"fox", "brown"}, Limit: 10}
	if a.String() == b.String() {
		t.Error("word order does not change the key")
	}
	c := a
	c.Snippets = true
	if a.String() == c.String() {
		t.Error("snippets flag does not change the key")
	}
	all := Key{Words: []string{"fox"}}
	if ok, _ := path.Match(keyPrefix+allIndexes+":*", all.String()); !ok {
		t.Errorf("key %q is not scoped to all indexes", all.String())
	}
	if ok, _ := path.Match(keyPrefix+"genes:*", a.String()); !ok {
		t.Errorf("key %q is not scoped to genes", a.String())
	}
}

func TestGetOrCompute(t *testing.T) {
	store := newMemStore()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := New(store, time.Minute, WithMetrics(m))
	key := Key{Index: "genes", Words: []string{"fox"}, Limit: 10}
	calls := 0
	compute := func() (*proto.SearchResponse, error) {
		calls++
		return &proto.SearchResponse{Query: "fox", Words: []string{"fox"}, Total: 1,
			Results: []proto.Hit{{Index: "genes", ItemID: "g1", WordPos: []int{0}}}}, nil
	}

	resp, hit, err := c.GetOrCompute(context.Background(), key, compute)
	if err != nil || hit || resp.Cached {
		t.Fatalf("first call: hit=%v cached=%v err=%v", hit, resp.Cached, err)
	}
	resp, hit, err = c.GetOrCompute(context.Background(), key, compute)
	if err != nil || !hit || !resp.Cached {
		t.Fatalf("second call: hit=%v err=%v", hit, err)
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
	if resp.Results[0].ItemID != "g1" {
		t.Errorf("cached response = %+v", resp)
	}
	if store.ttls[key.String()] != time.Minute {
		t.Errorf("ttl = %v", store.ttls[key.String()])
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}
	if got := testutil.ToFloat64(m.CacheHitsTotal); got != 1 {
		t.Errorf("hit counter = %v", got)
	}
	if got := testutil.ToFloat64(m.CacheMissesTotal); got != 1 {
		t.Errorf("miss counter = %v", got)
	}
}

func TestGetOrComputeError(t *testing.T) {
	c := New(newMemStore(), time.Minute)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), Key{Words: []string{"x"}}, func() (*proto.SearchResponse, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
}

func TestPartialResponsesNotCached(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute)
	c.Set(context.Background(), Key{Words: []string{"x"}}, &proto.SearchResponse{Warning: "genes: timeout"})
	if len(store.data) != 0 {
		t.Error("a response with a warning was cached")
	}
}

func TestGetOrComputeSharesConcurrentMisses(t *testing.T) {
	c := New(newMemStore(), time.Minute)
	key := Key{Words: []string{"slow"}}
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*proto.SearchResponse, error) {
		calls.Add(1)
		<-release
		return &proto.SearchResponse{Query: "slow"}, nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.GetOrCompute(context.Background(), key, compute); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n > 2 {
		t.Errorf("compute ran %d times for one key", n)
	}
}

func TestInvalidateIndex(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute)
	ctx := context.Background()
	resp := &proto.SearchResponse{Query: "fox"}
	c.Set(ctx, Key{Index: "genes", Words: []string{"fox"}}, resp)
	c.Set(ctx, Key{Index: "songs", Words: []string{"fox"}}, resp)
	c.Set(ctx, Key{Words: []string{"fox"}}, resp)

	n, err := c.InvalidateIndex(ctx, "genes")
	if err != nil {
		t.Fatalf("InvalidateIndex: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d keys, want genes and merged", n)
	}
	if size, _ := c.Size(ctx); size != 1 {
		t.Errorf("size = %d, want 1", size)
	}
	if _, ok := c.Get(ctx, Key{Index: "songs", Words: []string{"fox"}}); !ok {
		t.Error("songs entry was dropped")
	}
	if n, _ := c.InvalidateIndex(ctx, ""); n != 1 {
		t.Errorf("full invalidation deleted %d keys, want 1", n)
	}
}
