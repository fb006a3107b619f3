package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestProducerPublishBatch(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, "events")
	err := p.PublishBatch(context.Background(), []Event{
		{Key: "genes", Value: map[string]int{"results": 3}},
		{Key: "snps", Value: map[string]int{"results": 0}},
	})
	if err != nil {
		t.Fatalf("PublishBatch: %v", err)
	}
	if len(w.msgs) != 2 || string(w.msgs[0].Key) != "genes" || string(w.msgs[0].Value) != `{"results":3}` {
		t.Errorf("messages = %+v", w.msgs)
	}
	if err := p.PublishBatch(context.Background(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}

	w.err = errors.New("broker down")
	if err := p.Publish(context.Background(), Event{Key: "x", Value: 1}); err == nil {
		t.Error("Publish succeeded with a failing writer")
	}
}

// chanReader serves queued messages and blocks until cancelled afterwards.
type chanReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *chanReader) Close() error { return nil }

func TestConsumerCommitsHandledMessages(t *testing.T) {
	r := &chanReader{msgs: make(chan kafka.Message, 3)}
	r.msgs <- kafka.Message{Offset: 1, Value: []byte(`{"n":1}`)}
	r.msgs <- kafka.Message{Offset: 2, Value: []byte(`not json`)}
	r.msgs <- kafka.Message{Offset: 3, Value: []byte(`{"n":3}`)}

	ctx, cancel := context.WithCancel(context.Background())
	var seen []int
	c := NewConsumerWithReader(r, "events", func(_ context.Context, _, value []byte) error {
		v, err := DecodeJSON[struct{ N int }](value)
		if err != nil {
			return err
		}
		seen = append(seen, v.N)
		if len(seen) == 2 {
			cancel()
		}
		return nil
	})
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 3 {
		t.Errorf("handled %v, want [1 3]", seen)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.committed) != 2 || r.committed[0] != 1 || r.committed[1] != 3 {
		t.Errorf("committed %v, want [1 3]", r.committed)
	}
}
