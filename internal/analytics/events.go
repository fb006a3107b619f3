// Package analytics collects search events, ships them to Kafka in batches
// and aggregates them into query statistics.
package analytics

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventSearch       EventType = "search"
	EventIndexRebuilt EventType = "index_rebuilt"
)

// SearchEvent describes one answered search.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Words     []string  `json:"words"`
	Index     string    `json:"index,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Partial   bool      `json:"partial,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// IndexEvent announces that an index was rebuilt on disk. Servers reload
// the index and drop its cached responses when they see one.
type IndexEvent struct {
	Type      EventType `json:"type"`
	Index     string    `json:"index"`
	Path      string    `json:"path"`
	Items     int       `json:"items"`
	Words     int       `json:"words"`
	Postings  int       `json:"postings"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// eventType peeks at the type field of an encoded event.
func eventType(value []byte) (EventType, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return "", err
	}
	return head.Type, nil
}
