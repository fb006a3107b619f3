package ixbuild

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/trix/pkg/trix"
)

type posting struct {
	itemID string
	wordIx int
}

// memoryIndex accumulates word postings before they are written out.
type memoryIndex struct {
	words    map[string][]posting
	items    int
	postings int
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{words: make(map[string][]posting)}
}

// addItem tokenises text with the trix word tables and records 1-based
// positions of the lower-cased words.
func (m *memoryIndex) addItem(itemID, text string) {
	for i, word := range trix.Words(text) {
		word = strings.ToLower(word)
		m.words[word] = append(m.words[word], posting{itemID: itemID, wordIx: i + 1})
		m.postings++
	}
	m.items++
}

type termEntry struct {
	word     string
	postings []posting
}

// snapshot returns the words sorted byte-wise with postings ordered by
// item and position.
func (m *memoryIndex) snapshot() []termEntry {
	entries := make([]termEntry, 0, len(m.words))
	for word, postings := range m.words {
		sort.Slice(postings, func(i, j int) bool {
			if postings[i].itemID != postings[j].itemID {
				return postings[i].itemID < postings[j].itemID
			}
			return postings[i].wordIx < postings[j].wordIx
		})
		entries = append(entries, termEntry{word: word, postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].word < entries[j].word
	})
	return entries
}
