package executor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trix/internal/ixbuild"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/registry"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/trix"
)

var searchCfg = config.SearchConfig{
	MaxResults:    5,
	DefaultLimit:  2,
	Timeout:       time.Second,
	MaxQueryWords: 8,
}

func newExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	dir := t.TempDir()
	build := func(name, input string) string {
		path := filepath.Join(dir, name+".ix")
		if _, err := ixbuild.Build(strings.NewReader(input), path, ixbuild.Options{Snippets: true}); err != nil {
			t.Fatalf("Build %s: %v", name, err)
		}
		return path
	}
	genes := build("genes", "g1 the quick brown fox\ng2 brown dogs and a fox\ng3 foxes walking\n")
	songs := build("songs", "s1 brown fox\ns2 a fox in brown\n")
	reg, err := registry.Open(context.Background(), []config.IndexConfig{
		{Name: "genes", Path: genes, Snippets: true},
		{Name: "songs", Path: songs, Mode: "exact"},
	}, registry.Options{DefaultMode: trix.ModeExpand})
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return New(reg, searchCfg, opts...)
}

func ids(resp *proto.SearchResponse) []string {
	out := make([]string, len(resp.Results))
	for i, h := range resp.Results {
		out[i] = h.Index + "/" + h.ItemID
	}
	return out
}

func TestSearchSingleIndex(t *testing.T) {
	e := newExecutor(t)
	resp, err := e.Search(context.Background(), proto.SearchRequest{Query: "Brown FOX", Index: "genes", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if strings.Join(resp.Words, " ") != "brown fox" {
		t.Errorf("Words = %v", resp.Words)
	}
	if resp.Total != 2 {
		t.Errorf("Total = %d, want 2", resp.Total)
	}
	if got := strings.Join(ids(resp), " "); got != "genes/g1 genes/g2" {
		t.Errorf("results = %s, want g1 then g2", got)
	}
	if resp.Results[0].Snippet != "" {
		t.Errorf("snippet added without being asked for: %q", resp.Results[0].Snippet)
	}
}

func TestSearchAllIndexesMerged(t *testing.T) {
	e := newExecutor(t)
	resp, err := e.Search(context.Background(), proto.SearchRequest{Query: "brown fox", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 4 {
		t.Errorf("Total = %d, want 4", resp.Total)
	}
	want := "songs/s1 genes/g1 songs/s2 genes/g2"
	if got := strings.Join(ids(resp), " "); got != want {
		t.Errorf("results = %s, want %s", got, want)
	}
}

func TestSearchLimitDefaultsAndClamps(t *testing.T) {
	e := newExecutor(t)
	resp, err := e.Search(context.Background(), proto.SearchRequest{Query: "fox"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("default limit returned %d results, want 2", len(resp.Results))
	}
	if resp.Total != 5 {
		t.Errorf("Total = %d, want 5", resp.Total)
	}
	if got := e.Limit(100); got != 5 {
		t.Errorf("Limit(100) = %d, want 5", got)
	}
}

func TestSearchModeOverride(t *testing.T) {
	e := newExecutor(t)
	resp, err := e.Search(context.Background(), proto.SearchRequest{Query: "fox", Index: "genes", Limit: 5, Mode: "exact"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("exact Total = %d, want 2", resp.Total)
	}
	resp, err = e.Search(context.Background(), proto.SearchRequest{Query: "fox", Index: "genes", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("expand Total = %d, want 3 with foxes", resp.Total)
	}
	if _, err := e.Search(context.Background(), proto.SearchRequest{Query: "fox", Mode: "fuzzy"}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("bad mode error = %v", err)
	}
}

func TestSearchSnippets(t *testing.T) {
	e := newExecutor(t)
	resp, err := e.Search(context.Background(), proto.SearchRequest{Query: "quick", Index: "genes", Snippets: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || !strings.Contains(resp.Results[0].Snippet, "<b>quick</b>") {
		t.Errorf("results = %+v, want a bolded snippet", resp.Results)
	}
	if resp.Warning != "" {
		t.Errorf("unexpected warning %q", resp.Warning)
	}

	resp, err = e.Search(context.Background(), proto.SearchRequest{Query: "brown", Index: "songs", Snippets: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Warning == "" {
		t.Error("no warning for an index without snippets")
	}
}

func TestSearchErrors(t *testing.T) {
	e := newExecutor(t)
	if _, err := e.Search(context.Background(), proto.SearchRequest{Query: "fox", Index: "nope"}); !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("unknown index error = %v", err)
	}
	if _, err := e.Search(context.Background(), proto.SearchRequest{Query: "  ,, "}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("empty query error = %v", err)
	}
}

type fakeDescriber struct {
	fail bool
}

func (f fakeDescriber) Describe(_ context.Context, index string, ids []string) (map[string]string, error) {
	if f.fail {
		return nil, errors.New("database down")
	}
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = index + " item " + id
	}
	return out, nil
}

func TestSearchDescribesItems(t *testing.T) {
	e := newExecutor(t, WithItemDescriber(fakeDescriber{}))
	resp, err := e.Search(context.Background(), proto.SearchRequest{Query: "brown fox", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range resp.Results {
		if h.Description != h.Index+" item "+h.ItemID {
			t.Errorf("%s/%s description = %q", h.Index, h.ItemID, h.Description)
		}
	}

	e = newExecutor(t, WithItemDescriber(fakeDescriber{fail: true}))
	resp, err = e.Search(context.Background(), proto.SearchRequest{Query: "brown fox", Limit: 5})
	if err != nil {
		t.Fatalf("Search with failing describer: %v", err)
	}
	if len(resp.Results) != 4 || !strings.Contains(resp.Warning, "descriptions") {
		t.Errorf("results = %d, warning = %q", len(resp.Results), resp.Warning)
	}
}
