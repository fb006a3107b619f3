// Package merger combines ranked results from several indexes into one
// list in trix ranking order.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/trix/pkg/trix"
)

// Ranked is a search result tagged with the index it came from.
type Ranked struct {
	Index  string
	Result *trix.SearchResult
}

// Merge keeps the best limit results across lists. Ties in trix order go to
// the index name, then the item id, so output is deterministic.
func Merge(lists [][]Ranked, limit int) []Ranked {
	if limit <= 0 {
		limit = 10
	}
	h := &rankedHeap{}
	for _, list := range lists {
		for _, r := range list {
			if h.Len() < limit {
				heap.Push(h, r)
				continue
			}
			if better(r, (*h)[0]) {
				(*h)[0] = r
				heap.Fix(h, 0)
			}
		}
	}
	result := make([]Ranked, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(Ranked)
	}
	return result
}

func better(a, b Ranked) bool {
	if c := trix.Compare(a.Result, b.Result); c != 0 {
		return c < 0
	}
	if a.Index != b.Index {
		return a.Index < b.Index
	}
	return a.Result.ItemID < b.Result.ItemID
}

// rankedHeap is a max-heap on rank: the root is the worst kept result.
type rankedHeap []Ranked

func (h rankedHeap) Len() int { return len(h) }

func (h rankedHeap) Less(i, j int) bool { return better(h[j], h[i]) }

func (h rankedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *rankedHeap) Push(x any) {
	*h = append(*h, x.(Ranked))
}

func (h *rankedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
