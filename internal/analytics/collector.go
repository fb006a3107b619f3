package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/trix/pkg/kafka"
)

// Publisher ships a batch of events. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Recorder consumes events in process. *Aggregator satisfies it.
type Recorder interface {
	Record(event SearchEvent)
}

// CollectorConfig sizes the event buffer and batches.
type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	// Dropped counts events discarded because the buffer was full.
	Dropped prometheus.Counter
}

// Collector buffers search events without blocking the request path and
// flushes them to Kafka when a batch fills up or the flush interval passes.
type Collector struct {
	publisher Publisher
	recorder  Recorder
	cfg       CollectorConfig

	mu      sync.RWMutex
	closed  bool
	eventCh chan SearchEvent
	done    chan struct{}
	logger  *slog.Logger
}

// NewCollector creates a collector. Either publisher or recorder may be nil.
func NewCollector(publisher Publisher, recorder Recorder, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Collector{
		publisher: publisher,
		recorder:  recorder,
		cfg:       cfg,
		eventCh:   make(chan SearchEvent, cfg.BufferSize),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "analytics-collector"),
	}
}

// Start launches the flush loop. It ends when ctx is cancelled or Close is
// called, flushing what is buffered first.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", c.cfg.BufferSize,
		"batch_size", c.cfg.BatchSize,
		"flush_interval", c.cfg.FlushInterval,
	)
}

// Track queues an event, dropping it if the buffer is full.
func (c *Collector) Track(event SearchEvent) {
	if event.Type == "" {
		event.Type = EventSearch
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if c.cfg.Dropped != nil {
			c.cfg.Dropped.Inc()
		}
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the final flush.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.cfg.BatchSize)
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.finalFlush(batch)
				return
			}
			batch = c.add(ctx, batch, event)
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case event, ok := <-c.eventCh:
					if !ok {
						drained = true
						break
					}
					if c.recorder != nil {
						c.recorder.Record(event)
					}
					batch = append(batch, kafka.Event{Key: eventKey(event), Value: event})
				default:
					drained = true
				}
			}
			c.finalFlush(batch)
			return
		}
	}
}

func (c *Collector) add(ctx context.Context, batch []kafka.Event, event SearchEvent) []kafka.Event {
	if c.recorder != nil {
		c.recorder.Record(event)
	}
	if c.publisher == nil {
		return batch
	}
	batch = append(batch, kafka.Event{Key: eventKey(event), Value: event})
	if len(batch) >= c.cfg.BatchSize {
		batch = c.flush(ctx, batch)
	}
	return batch
}

// flush publishes batch and returns what is left to send. A failed batch
// is kept for the next flush, up to three batches' worth.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 || c.publisher == nil {
		return batch[:0]
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		if limit := c.cfg.BatchSize * 3; len(batch) > limit {
			dropped := len(batch) - limit
			batch = batch[dropped:]
			c.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
			if c.cfg.Dropped != nil {
				c.cfg.Dropped.Add(float64(dropped))
			}
		}
		return batch
	}
	c.logger.Debug("batch flushed", "events", len(batch))
	return batch[:0]
}

func (c *Collector) finalFlush(batch []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rest := c.flush(ctx, batch); len(rest) > 0 {
		c.logger.Error("analytics events lost on shutdown", "events", len(rest))
	}
}

func eventKey(event SearchEvent) string {
	if event.Index != "" {
		return event.Index
	}
	return "all"
}
