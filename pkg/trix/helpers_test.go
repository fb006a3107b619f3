package trix

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

type doc struct {
	id   string
	text string
}

// writeIndex indexes docs the way the index builder does and writes the
// word index, a sparse index with an entry on every new prefix, and the
// snippet side files. It returns the .ix path.
func writeIndex(t testing.TB, docs []doc) string {
	t.Helper()
	postings := make(map[string][]string)
	for _, d := range docs {
		for i, w := range Words(d.text) {
			w = strings.ToLower(w)
			postings[w] = append(postings[w], fmt.Sprintf("%s,%d", d.id, i+1))
		}
	}
	words := make([]string, 0, len(postings))
	for w := range postings {
		words = append(words, w)
	}
	sort.Strings(words)
	lines := make([]string, 0, len(words))
	for _, w := range words {
		lines = append(lines, w+" "+strings.Join(postings[w], " "))
	}
	path := filepath.Join(t.TempDir(), "test.ix")
	writeLinesWithIxx(t, path, path+"x", lines, PrefixSize)

	var text strings.Builder
	offsets := make(map[string]int)
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		offsets[d.id] = text.Len()
		ids = append(ids, d.id)
		text.WriteString(d.id + "\t" + d.text + "\n")
	}
	sort.Strings(ids)
	offLines := make([]string, 0, len(ids))
	for _, id := range ids {
		offLines = append(offLines, fmt.Sprintf("%s\t%d", id, offsets[id]))
	}
	offsetsPath, offsetsIxx, texts := SnippetPaths(path)
	writeFile(t, texts[0], text.String())
	writeLinesWithIxx(t, offsetsPath, offsetsIxx, offLines, SnippetPrefixSize)
	return path
}

// writeIndexLines writes raw .ix lines with a single sparse entry at 0.
func writeIndexLines(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.ix")
	writeFile(t, path, strings.Join(lines, "\n")+"\n")
	writeFile(t, path+"x", FormatSparseLine(" ", PrefixSize, 0)+"\n")
	return path
}

func writeLinesWithIxx(t testing.TB, path, ixxPath string, lines []string, width int) {
	t.Helper()
	var body, ixx strings.Builder
	last := ""
	for _, line := range lines {
		key, _ := splitFirstField(line)
		if prefix := PaddedPrefix(key, width); prefix > last {
			ixx.WriteString(FormatSparseLine(prefix, width, int64(body.Len())) + "\n")
			last = prefix
		}
		body.WriteString(line + "\n")
	}
	writeFile(t, path, body.String())
	writeFile(t, ixxPath, ixx.String())
}

func writeFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func openIndex(t *testing.T, path string, opts ...Option) *Trix {
	t.Helper()
	tx, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	t.Cleanup(func() { tx.Close() })
	return tx
}

func ids(results []*SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ItemID
	}
	return out
}
