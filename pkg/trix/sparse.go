package trix

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	// PrefixSize is the prefix width of the word index's .ixx file.
	PrefixSize = 5
	// SnippetPrefixSize is the prefix width of the .offsets.ixx file.
	SnippetPrefixSize = 15
	// offsetDigits is the number of hex digits closing every .ixx line.
	offsetDigits = 10
)

type sparseEntry struct {
	prefix string
	offset int64
}

// SparseIndex is the in-memory form of an .ixx file: fixed-width lower-cased
// prefixes paired with byte offsets into a sorted text file. A lookup gives
// the offset from which a forward scan will not miss any line for a word.
type SparseIndex struct {
	width   int
	entries []sparseEntry
}

// LoadSparseIndex reads an .ixx stream whose lines are a prefix of the given
// width immediately followed by a 10 digit hex offset.
func LoadSparseIndex(r io.Reader, width int) (*SparseIndex, error) {
	if width <= 0 {
		return nil, fmt.Errorf("sparse index width must be positive, got %d", width)
	}
	s := &SparseIndex{width: width, entries: make([]sparseEntry, 0, 64)}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if len(line) != width+offsetDigits {
			return nil, fmt.Errorf("line %d: expected %d characters, got %d",
				lineNo, width+offsetDigits, len(line))
		}
		offset, err := strconv.ParseUint(line[width:], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad offset %q: %w", lineNo, line[width:], err)
		}
		s.entries = append(s.entries, sparseEntry{prefix: line[:width], offset: int64(offset)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading sparse index: %w", err)
	}
	return s, nil
}

// Width returns the prefix width of the index.
func (s *SparseIndex) Width() int { return s.width }

// Len returns the number of block entries.
func (s *SparseIndex) Len() int { return len(s.entries) }

// Lookup returns the offset of the last entry whose prefix sorts at or before
// the prefix of word, or 0 when there is no such entry.
func (s *SparseIndex) Lookup(word string) int64 {
	target := PaddedPrefix(word, s.width)
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].prefix > target
	})
	if i == 0 {
		return 0
	}
	return s.entries[i-1].offset
}

// PaddedPrefix lower-cases the first width bytes of word and pads with
// spaces to exactly width bytes.
func PaddedPrefix(word string, width int) string {
	b := make([]byte, width)
	for i := 0; i < width; i++ {
		if i < len(word) {
			b[i] = toLower(word[i])
		} else {
			b[i] = ' '
		}
	}
	return string(b)
}

// FormatSparseLine renders one .ixx line.
func FormatSparseLine(prefix string, width int, offset int64) string {
	return fmt.Sprintf("%s%0*X", PaddedPrefix(prefix, width), offsetDigits, offset)
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
