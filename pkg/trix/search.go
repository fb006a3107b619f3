package trix

import (
	"sort"
)

// NoOrderedSpan is the ordered span of an item in which the query words
// never occur in query order.
const NoOrderedSpan = 0x3fffffff

// SearchResult is one ranked item.
type SearchResult struct {
	ItemID string `json:"item_id"`
	// UnorderedSpan is the smallest window, in words, holding every query
	// word in any order.
	UnorderedSpan int `json:"unordered_span"`
	// OrderedSpan is the smallest window holding the query words in order.
	OrderedSpan     int `json:"ordered_span"`
	LeftoverLetters int `json:"leftover_letters"`
	// WordPos holds the 0-based position of each query word in the best
	// window.
	WordPos []int  `json:"word_pos"`
	Snippet string `json:"snippet,omitempty"`
}

// wordResult is a roaming view over one query word's postings. hit marks
// the first posting of the item under consideration; iHit scans within it.
type wordResult struct {
	list *postingList
	hit  int
	iHit int
}

func (w *wordResult) done() bool { return w.hit >= len(w.list.hits) }

func (w *wordResult) itemID() string { return w.list.hits[w.hit].ItemID }

// seekTo advances to the first posting whose item is at or after id.
func (w *wordResult) seekTo(id string) {
	for !w.done() && w.itemID() < id {
		w.hit++
	}
}

// skipPast advances beyond every posting of items at or before id.
func (w *wordResult) skipPast(id string) {
	for !w.done() && w.itemID() <= id {
		w.hit++
	}
}

func (w *wordResult) inItem(i int, id string) bool {
	return i < len(w.list.hits) && w.list.hits[i].ItemID == id
}

// Search finds the items containing every word and returns them best
// first. Words must already be lower-cased. A query word absent from the
// index yields no results. Search panics with *CorruptIndexError if the
// index cannot be parsed.
func (t *Trix) Search(words []string, mode Mode) []*SearchResult {
	if len(words) == 0 {
		return nil
	}
	var results []*SearchResult
	if len(words) == 1 {
		results = t.searchOne(words[0], mode)
	} else {
		results = t.searchMany(words, mode)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return Compare(results[i], results[j]) < 0
	})
	return results
}

func (t *Trix) searchOne(word string, mode Mode) []*SearchResult {
	pl := t.postings(word, mode)
	if pl == nil {
		return nil
	}
	var results []*SearchResult
	lastID := ""
	for i, hit := range pl.hits {
		if i > 0 && hit.ItemID == lastID {
			continue
		}
		lastID = hit.ItemID
		results = append(results, &SearchResult{
			ItemID:          hit.ItemID,
			UnorderedSpan:   1,
			OrderedSpan:     1,
			LeftoverLetters: hit.LeftoverLetters,
			WordPos:         []int{hit.WordIx - 1},
		})
	}
	return results
}

func (t *Trix) searchMany(words []string, mode Mode) []*SearchResult {
	wrs := make([]*wordResult, len(words))
	for i, word := range words {
		pl := t.postings(word, mode)
		if pl == nil {
			return nil
		}
		wrs[i] = &wordResult{list: pl}
	}
	var results []*SearchResult
	for {
		id, ok := highestID(wrs)
		if !ok {
			break
		}
		all := true
		for _, wr := range wrs {
			wr.seekTo(id)
			if wr.done() {
				return results
			}
			if wr.itemID() != id {
				all = false
			}
		}
		if all {
			results = append(results, spanResult(wrs, id))
		}
		for _, wr := range wrs {
			wr.skipPast(id)
		}
	}
	return results
}

// highestID returns the largest item id under any cursor, or false once a
// cursor has run out.
func highestID(wrs []*wordResult) (string, bool) {
	highest := ""
	for _, wr := range wrs {
		if wr.done() {
			return "", false
		}
		if id := wr.itemID(); id > highest {
			highest = id
		}
	}
	return highest, true
}

func spanResult(wrs []*wordResult, id string) *SearchResult {
	res := &SearchResult{ItemID: id, WordPos: make([]int, len(wrs))}
	res.UnorderedSpan, res.LeftoverLetters = unorderedSpan(wrs, id, res.WordPos)
	res.OrderedSpan = orderedSpan(wrs, id, res.WordPos)
	return res
}

// unorderedSpan slides a window over the item's postings, always advancing
// the word with the lowest position, and records the tightest window seen.
func unorderedSpan(wrs []*wordResult, id string, wordPos []int) (minSpan, leftover int) {
	minSpan = NoOrderedSpan + 1
	for _, wr := range wrs {
		wr.iHit = wr.hit
	}
	for {
		var minWr *wordResult
		minIx, maxIx := NoOrderedSpan+1, 0
		for _, wr := range wrs {
			ix := wr.list.hits[wr.iHit].WordIx
			if ix < minIx {
				minIx = ix
				minWr = wr
			}
			if ix > maxIx {
				maxIx = ix
			}
		}
		if span := maxIx - minIx + 1; span < minSpan {
			minSpan = span
			leftover = 0
			for i, wr := range wrs {
				hit := wr.list.hits[wr.iHit]
				wordPos[i] = hit.WordIx - 1
				leftover += hit.LeftoverLetters
			}
			if minSpan <= len(wrs) {
				break
			}
		}
		if !minWr.inItem(minWr.iHit+1, id) {
			break
		}
		minWr.iHit++
	}
	return minSpan, leftover
}

// orderedSpan tries each occurrence of the first word as a window start and
// chains every later word to its next occurrence after the previous one.
// wordPos is overwritten only when an in-order window exists.
func orderedSpan(wrs []*wordResult, id string, wordPos []int) int {
	minSpan := NoOrderedSpan
	for _, wr := range wrs {
		wr.iHit = wr.hit
	}
	first := wrs[0]
	for {
		start := first.list.hits[first.iHit].WordIx
		end := start
		for _, wr := range wrs[1:] {
			for wr.inItem(wr.iHit, id) && wr.list.hits[wr.iHit].WordIx <= end {
				wr.iHit++
			}
			if !wr.inItem(wr.iHit, id) {
				return minSpan
			}
			end = wr.list.hits[wr.iHit].WordIx
		}
		if span := end - start + 1; span < minSpan {
			minSpan = span
			for i, wr := range wrs {
				wordPos[i] = wr.list.hits[wr.iHit].WordIx - 1
			}
			if minSpan <= len(wrs) {
				return minSpan
			}
		}
		if !first.inItem(first.iHit+1, id) {
			return minSpan
		}
		first.iHit++
	}
}

// Compare orders results best first: tighter unordered span, then tighter
// ordered span, then fewer leftover letters, then earlier word positions.
func Compare(a, b *SearchResult) int {
	if d := a.UnorderedSpan - b.UnorderedSpan; d != 0 {
		return d
	}
	if d := a.OrderedSpan - b.OrderedSpan; d != 0 {
		return d
	}
	if d := a.LeftoverLetters - b.LeftoverLetters; d != 0 {
		return d
	}
	n := len(a.WordPos)
	if len(b.WordPos) < n {
		n = len(b.WordPos)
	}
	for i := 0; i < n; i++ {
		if d := a.WordPos[i] - b.WordPos[i]; d != 0 {
			return d
		}
	}
	return 0
}
