package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/Adithya-Monish-Kumar-K/trix/internal/ixbuild"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/trix"
)

func init() {
	color.NoColor = true
}

func buildGenes(t *testing.T, snippets bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genes.ix")
	input := "g1 the quick brown fox\ng2 brown dogs and a fox\ng3 foxes walking\n"
	if _, err := ixbuild.Build(strings.NewReader(input), path, ixbuild.Options{Snippets: snippets}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return path
}

func TestSearchLocal(t *testing.T) {
	path := buildGenes(t, true)
	resp, err := searchLocal(path, "Brown FOX", options{limit: 10, snippets: true})
	if err != nil {
		t.Fatalf("searchLocal: %v", err)
	}
	if resp.Total != 2 || len(resp.Results) != 2 {
		t.Fatalf("got total %d, %d results", resp.Total, len(resp.Results))
	}
	if resp.Results[0].ItemID != "g1" || resp.Results[1].ItemID != "g2" {
		t.Errorf("order = %s, %s", resp.Results[0].ItemID, resp.Results[1].ItemID)
	}
	if !strings.Contains(resp.Results[0].Snippet, trix.BoldStart+"brown"+trix.BoldEnd) {
		t.Errorf("snippet %q does not mark brown", resp.Results[0].Snippet)
	}
	if resp.Warning != "" {
		t.Errorf("unexpected warning %q", resp.Warning)
	}
}

func TestSearchLocalLimitAndMode(t *testing.T) {
	path := buildGenes(t, false)
	resp, err := searchLocal(path, "fox", options{mode: "exact", limit: 1})
	if err != nil {
		t.Fatalf("searchLocal: %v", err)
	}
	if resp.Total != 2 || len(resp.Results) != 1 {
		t.Errorf("exact: total %d, %d results; want 2, 1", resp.Total, len(resp.Results))
	}
	resp, err = searchLocal(path, "fox", options{mode: "expand"})
	if err != nil {
		t.Fatalf("searchLocal: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("expand: total %d, want 3", resp.Total)
	}
	if _, err := searchLocal(path, "fox", options{mode: "fuzzy"}); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestSearchLocalSnippetsMissing(t *testing.T) {
	path := buildGenes(t, false)
	resp, err := searchLocal(path, "fox", options{limit: 5, snippets: true})
	if err != nil {
		t.Fatalf("searchLocal: %v", err)
	}
	if resp.Warning == "" {
		t.Error("expected a warning when snippet files are missing")
	}
}

func TestHighlight(t *testing.T) {
	cases := map[string]string{
		"plain text":            "plain text",
		"the <b>quick</b> fox":  "the quick fox",
		"<b>a</b> ... <b>b</b>": "a ... b",
		"unterminated <b>bold":  "unterminated <b>bold",
	}
	for in, want := range cases {
		if got := highlight(in); got != want {
			t.Errorf("highlight(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	render(&buf, &proto.SearchResponse{
		Words: []string{"brown", "fox"},
		Total: 3,
		Results: []proto.Hit{
			{Index: "genes", ItemID: "g1", Description: "quick fox", OrderedSpan: trix.NoOrderedSpan},
		},
		Warning: "item descriptions unavailable",
	}, options{verbose: true})
	out := buf.String()
	for _, want := range []string{"genes/g1", "quick fox", "ordered=-1", "warning: item descriptions unavailable", `1 of 3 items for "brown fox"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
