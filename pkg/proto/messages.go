// Package proto defines the message types exchanged by the trix search
// service over HTTP and the JSON-over-TCP RPC layer (see pkg/rpc).
package proto

// SearchRequest is the input to TrixService.Search and GET /api/v1/search.
type SearchRequest struct {
	Query string `json:"query"`
	// Index names one configured index; empty searches all of them.
	Index string `json:"index,omitempty"`
	// Mode is exact, expand or firstFive; empty uses the index default.
	Mode     string `json:"mode,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Snippets bool   `json:"snippets,omitempty"`
}

// SearchResponse is the output of a search.
type SearchResponse struct {
	Query string   `json:"query"`
	Words []string `json:"words"`
	// Total counts every matching item before the limit was applied.
	Total     int    `json:"total"`
	Results   []Hit  `json:"results"`
	LatencyMs int64  `json:"latency_ms"`
	Cached    bool   `json:"cached"`
	Warning   string `json:"warning,omitempty"`
}

// Hit is one ranked item.
type Hit struct {
	Index           string `json:"index"`
	ItemID          string `json:"item_id"`
	Description     string `json:"description,omitempty"`
	UnorderedSpan   int    `json:"unordered_span"`
	OrderedSpan     int    `json:"ordered_span"`
	LeftoverLetters int    `json:"leftover_letters"`
	WordPos         []int  `json:"word_pos"`
	Snippet         string `json:"snippet,omitempty"`
}

// IndexesRequest is the input to TrixService.Indexes.
type IndexesRequest struct{}

// IndexesResponse lists the indexes a server has open.
type IndexesResponse struct {
	Indexes []IndexInfo `json:"indexes"`
}

// IndexInfo describes one open index.
type IndexInfo struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Mode        string `json:"mode"`
	Snippets    bool   `json:"snippets"`
	CachedWords int    `json:"cached_words"`
	LinesRead   int64  `json:"lines_read"`
}
