// Package ixbuild writes trix index files from a text file of
// "itemId text..." lines: the word index (.ix) with its sparse index (.ixx)
// and, optionally, the snippet side files (.txt, .offsets, .offsets.ixx).
package ixbuild

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trix/pkg/trix"
)

// DefaultBinSize is the minimum number of index bytes between two sparse
// index entries.
const DefaultBinSize = 64 * 1024

type Options struct {
	BinSize        int64
	SnippetBinSize int64
	// Snippets also writes the files needed to build snippets.
	Snippets bool
	// OnItem, if set, is called with every item as it is read.
	OnItem func(itemID, text string)
}

type Stats struct {
	Items             int
	Words             int
	Postings          int
	IxxEntries        int
	OffsetsIxxEntries int
	Duration          time.Duration
}

type sourceLine struct {
	itemID string
	line   string
}

// Build reads items from in and writes ixPath, ixPath+"x" and, with
// Options.Snippets, the snippet files next to ixPath.
func Build(in io.Reader, ixPath string, opts Options) (Stats, error) {
	start := time.Now()
	logger := slog.Default().With("component", "ixbuild")
	if opts.BinSize <= 0 {
		opts.BinSize = DefaultBinSize
	}
	if opts.SnippetBinSize <= 0 {
		opts.SnippetBinSize = opts.BinSize
	}
	mem := newMemoryIndex()
	var sources []sourceLine
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		itemID, text := splitItem(line)
		if itemID == "" {
			continue
		}
		mem.addItem(itemID, text)
		if opts.OnItem != nil {
			opts.OnItem(itemID, text)
		}
		if opts.Snippets {
			sources = append(sources, sourceLine{itemID: itemID, line: line})
		}
	}
	if err := scanner.Err(); err != nil {
		return Stats{}, fmt.Errorf("reading input: %w", err)
	}
	stats := Stats{Items: mem.items, Postings: mem.postings}
	words, entries, err := writeWordIndex(ixPath, mem.snapshot(), opts.BinSize)
	if err != nil {
		return stats, err
	}
	stats.Words, stats.IxxEntries = words, entries
	if opts.Snippets {
		n, err := writeSnippetFiles(ixPath, sources, opts.SnippetBinSize)
		if err != nil {
			return stats, err
		}
		stats.OffsetsIxxEntries = n
	}
	stats.Duration = time.Since(start)
	logger.Info("index built",
		"path", ixPath,
		"items", stats.Items,
		"words", stats.Words,
		"postings", stats.Postings,
		"ixx_entries", stats.IxxEntries,
		"snippets", opts.Snippets,
		"duration", stats.Duration,
	)
	return stats, nil
}

func splitItem(line string) (itemID, text string) {
	line = strings.TrimLeft(line, " \t")
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return line, ""
	}
	return line[:i], line[i+1:]
}

func writeWordIndex(ixPath string, entries []termEntry, binSize int64) (int, int, error) {
	ix, err := createAtomic(ixPath)
	if err != nil {
		return 0, 0, err
	}
	sparse := newSparseWriter(trix.PrefixSize, binSize)
	var sb strings.Builder
	for _, entry := range entries {
		sb.Reset()
		sb.WriteString(entry.word)
		for _, p := range entry.postings {
			sb.WriteByte(' ')
			sb.WriteString(p.itemID)
			sb.WriteByte(',')
			sb.WriteString(strconv.Itoa(p.wordIx))
		}
		sparse.observe(entry.word, ix.offset)
		if err := ix.writeLine(sb.String()); err != nil {
			ix.abort()
			return 0, 0, err
		}
	}
	if err := ix.commit(); err != nil {
		return 0, 0, err
	}
	n, err := sparse.writeTo(ixPath + "x")
	if err != nil {
		return 0, 0, err
	}
	return len(entries), n, nil
}

func writeSnippetFiles(ixPath string, sources []sourceLine, binSize int64) (int, error) {
	offsetsPath, ixxPath, textPaths := trix.SnippetPaths(ixPath)
	text, err := createAtomic(textPaths[0])
	if err != nil {
		return 0, err
	}
	type itemOffset struct {
		itemID string
		offset int64
	}
	offsets := make([]itemOffset, 0, len(sources))
	for _, src := range sources {
		offsets = append(offsets, itemOffset{itemID: src.itemID, offset: text.offset})
		if err := text.writeLine(src.line); err != nil {
			text.abort()
			return 0, err
		}
	}
	if err := text.commit(); err != nil {
		return 0, err
	}
	sort.SliceStable(offsets, func(i, j int) bool {
		return offsets[i].itemID < offsets[j].itemID
	})
	out, err := createAtomic(offsetsPath)
	if err != nil {
		return 0, err
	}
	sparse := newSparseWriter(trix.SnippetPrefixSize, binSize)
	for _, o := range offsets {
		sparse.observe(o.itemID, out.offset)
		if err := out.writeLine(o.itemID + "\t" + strconv.FormatInt(o.offset, 10)); err != nil {
			out.abort()
			return 0, err
		}
	}
	if err := out.commit(); err != nil {
		return 0, err
	}
	return sparse.writeTo(ixxPath)
}
