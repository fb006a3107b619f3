package trix

import (
	"sort"
	"strconv"
	"strings"
)

// HitPos is one occurrence of an indexed word in an item.
type HitPos struct {
	ItemID string
	// WordIx is the 1-based position of the word within the item.
	WordIx int
	// LeftoverLetters counts letters of the indexed word beyond the search
	// token; zero for exact matches.
	LeftoverLetters int
}

// postingList is the memoised result of looking up one token. The same
// value is shared by every query that repeats the token.
type postingList struct {
	token string
	hits  []HitPos
}

type wordKey struct {
	token string
	mode  Mode
}

// postings returns the hits for token under mode, reading the index at most
// once per handle. It returns nil when no indexed word matches.
func (t *Trix) postings(token string, mode Mode) *postingList {
	key := wordKey{token: token, mode: mode}
	if pl, ok := t.wordHits[key]; ok {
		t.observer.WordLookup(true)
		return pl
	}
	t.observer.WordLookup(false)
	pl := t.scanPostings(token, mode)
	t.wordHits[key] = pl
	return pl
}

func (t *Trix) scanPostings(token string, mode Mode) *postingList {
	if token == "" {
		return nil
	}
	if err := t.lf.seek(t.ixx.Lookup(token)); err != nil {
		corrupt(t.path, "", "seek failed", err)
	}
	before := t.lf.lines
	var hits []HitPos
	matched := false
	for {
		line, ok, err := t.lf.next()
		if err != nil {
			corrupt(t.path, "", "read failed", err)
		}
		if !ok {
			break
		}
		word, rest := splitFirstField(line)
		if strings.HasPrefix(word, token) {
			leftover := reasonablePrefix(token, word, mode)
			if leftover < 0 {
				continue
			}
			matched = true
			hits = t.parseHits(hits, line, rest, leftover)
		} else if word > token {
			break
		}
	}
	scanned := int(t.lf.lines - before)
	t.observer.LinesScanned(scanned)
	if !matched {
		t.logger.Debug("word not in index", "token", token, "mode", mode.String(), "lines_scanned", scanned)
		return nil
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := &hits[i], &hits[j]
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		if a.WordIx != b.WordIx {
			return a.WordIx < b.WordIx
		}
		return a.LeftoverLetters < b.LeftoverLetters
	})
	t.logger.Debug("word postings loaded", "token", token, "mode", mode.String(),
		"hits", len(hits), "lines_scanned", scanned)
	return &postingList{token: token, hits: hits}
}

// parseHits appends the itemId,wordIx pairs of one index line.
func (t *Trix) parseHits(hits []HitPos, line, rest string, leftover int) []HitPos {
	for _, field := range strings.Fields(rest) {
		parts := strings.Split(field, ",")
		if len(parts) != 2 {
			corrupt(t.path, line, "posting "+strconv.Quote(field)+" is not itemId,wordIx", nil)
		}
		wordIx, err := strconv.Atoi(parts[1])
		if err != nil {
			corrupt(t.path, line, "posting "+strconv.Quote(field)+" has a bad word position", err)
		}
		hits = append(hits, HitPos{ItemID: parts[0], WordIx: wordIx, LeftoverLetters: leftover})
	}
	return hits
}
