// Package trix searches two-level text indexes: a sorted word index (.ix)
// with one line of itemId,position postings per word, and a sparse prefix
// index over it (.ixx). Multi-word queries are intersected per item and
// ranked by how tightly, in how close to query order, and how exactly the
// words occur. An optional side index reconstructs highlighted snippets from
// the original text.
//
// A Trix handle is not safe for concurrent use; it caches postings as it
// searches.
package trix

import (
	"errors"
	"fmt"
	"log/slog"
)

// Observer receives engine counters. The search service plugs Prometheus
// collectors in here.
type Observer interface {
	WordLookup(cached bool)
	LinesScanned(n int)
	SnippetFailure()
}

type nopObserver struct{}

func (nopObserver) WordLookup(bool) {}
func (nopObserver) LinesScanned(int) {}
func (nopObserver) SnippetFailure() {}

// Trix is an open index.
type Trix struct {
	path     string
	opener   Opener
	logger   *slog.Logger
	observer Observer
	lf       *lineReader
	ixx      *SparseIndex
	wordHits map[wordKey]*postingList
	snippets *snippetIndex
}

// Option configures a Trix at Open.
type Option func(*Trix)

// WithLogger sets the logger used by the handle.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trix) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithObserver sets the counter sink used by the handle.
func WithObserver(o Observer) Option {
	return func(t *Trix) {
		if o != nil {
			t.observer = o
		}
	}
}

// WithOpener replaces the filesystem used to open index files.
func WithOpener(o Opener) Option {
	return func(t *Trix) {
		if o != nil {
			t.opener = o
		}
	}
}

// Open opens the word index at path and loads its sparse index from
// path + "x".
func Open(path string, opts ...Option) (*Trix, error) {
	t := &Trix{
		path:     path,
		opener:   FileOpener,
		logger:   slog.Default().With("component", "trix"),
		observer: nopObserver{},
		wordHits: make(map[wordKey]*postingList),
	}
	for _, opt := range opts {
		opt(t)
	}
	ixx, err := t.loadSparse(path+"x", PrefixSize)
	if err != nil {
		return nil, err
	}
	s, err := t.opener.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}
	t.ixx = ixx
	t.lf = newLineReader(s)
	t.logger.Debug("index opened", "path", path, "ixx_entries", ixx.Len())
	return t, nil
}

func (t *Trix) loadSparse(path string, width int) (*SparseIndex, error) {
	s, err := t.opener.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sparse index %s: %w", path, err)
	}
	defer s.Close()
	ixx, err := LoadSparseIndex(s, width)
	if err != nil {
		return nil, fmt.Errorf("loading sparse index %s: %w", path, err)
	}
	return ixx, nil
}

// Path returns the path of the word index.
func (t *Trix) Path() string { return t.path }

// LinesRead returns the number of word index lines read so far.
func (t *Trix) LinesRead() int64 { return t.lf.lines }

// CachedWords returns how many distinct tokens have been looked up.
func (t *Trix) CachedWords() int { return len(t.wordHits) }

// Close releases the files and cached postings held by the handle.
func (t *Trix) Close() error {
	var errs []error
	if t.lf != nil {
		if err := t.lf.close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", t.path, err))
		}
		t.lf = nil
	}
	if t.snippets != nil {
		if err := t.snippets.close(); err != nil {
			errs = append(errs, err)
		}
		t.snippets = nil
	}
	t.wordHits = nil
	t.ixx = nil
	return errors.Join(errs...)
}
