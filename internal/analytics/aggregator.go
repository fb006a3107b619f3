package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trix/pkg/kafka"
)

// maxLatencies bounds the latency sample used for percentiles.
const maxLatencies = 10000

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	IndexRebuilds     int64            `json:"index_rebuilds"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	PartialCount      int64            `json:"partial_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	TopWords          []QueryCount     `json:"top_words"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	SearchesByIndex   map[string]int64 `json:"searches_by_index"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	CapturedAt        time.Time        `json:"captured_at"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds search events into running statistics.
type Aggregator struct {
	mu                sync.Mutex
	stats             AggregatedStats
	latencies         []int64
	nextLatency       int
	queryCounts       map[string]int64
	wordCounts        map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	topN              int

	logger *slog.Logger
}

// NewAggregator keeps the topN most frequent queries and words.
func NewAggregator(topN int) *Aggregator {
	if topN <= 0 {
		topN = 10
	}
	return &Aggregator{
		stats:             AggregatedStats{SearchesByIndex: make(map[string]int64)},
		latencies:         make([]int64, 0, maxLatencies),
		queryCounts:       make(map[string]int64),
		wordCounts:        make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		topN:              topN,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent decodes Kafka messages for the aggregator. Undecodable
// messages are logged and skipped so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		typ, err := eventType(value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch typ {
		case EventIndexRebuilt:
			event, err := kafka.DecodeJSON[IndexEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode index event", "error", err)
				return nil
			}
			agg.RecordIndexEvent(event)
		case EventSearch, "":
			event, err := kafka.DecodeJSON[SearchEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode search event", "error", err)
				return nil
			}
			agg.Record(event)
		default:
			agg.logger.Warn("unknown analytics event type", "type", typ)
		}
		return nil
	}
}

// Record adds one search event.
func (a *Aggregator) Record(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalSearches++
	if event.CacheHit {
		a.stats.CacheHits++
	} else {
		a.stats.CacheMisses++
	}
	if event.Partial {
		a.stats.PartialCount++
	}
	index := event.Index
	if index == "" {
		index = "all"
	}
	a.stats.SearchesByIndex[index]++

	if len(a.latencies) < maxLatencies {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.nextLatency] = event.LatencyMs
		a.nextLatency = (a.nextLatency + 1) % maxLatencies
	}

	query := queryKey(event)
	a.queryCounts[query]++
	for _, w := range event.Words {
		a.wordCounts[w]++
	}
	if event.TotalHits == 0 {
		a.stats.ZeroResultCount++
		a.zeroResultQueries[query]++
	}
}

func (a *Aggregator) RecordIndexEvent(event IndexEvent) {
	a.mu.Lock()
	a.stats.IndexRebuilds++
	a.mu.Unlock()
	a.logger.Info("index rebuilt", "index", event.Index, "items", event.Items, "words", event.Words)
}

// Restore seeds counters from an earlier snapshot so totals survive a
// restart. Percentiles and frequency tables start over.
func (a *Aggregator) Restore(prev AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.TotalSearches += prev.TotalSearches
	a.stats.IndexRebuilds += prev.IndexRebuilds
	a.stats.CacheHits += prev.CacheHits
	a.stats.CacheMisses += prev.CacheMisses
	a.stats.ZeroResultCount += prev.ZeroResultCount
	a.stats.PartialCount += prev.PartialCount
	for index, n := range prev.SearchesByIndex {
		a.stats.SearchesByIndex[index] += n
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := a.stats
	stats.SearchesByIndex = make(map[string]int64, len(a.stats.SearchesByIndex))
	for k, v := range a.stats.SearchesByIndex {
		stats.SearchesByIndex[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, a.topN)
	stats.TopWords = topN(a.wordCounts, a.topN)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, a.topN)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	stats.CapturedAt = time.Now().UTC()
	return stats
}

// queryKey prefers the parsed words so that case and punctuation variants
// of one query count together.
func queryKey(event SearchEvent) string {
	if len(event.Words) == 0 {
		return event.Query
	}
	key := event.Words[0]
	for _, w := range event.Words[1:] {
		key += " " + w
	}
	return key
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
