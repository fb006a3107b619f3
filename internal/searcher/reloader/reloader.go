// Package reloader reacts to index rebuild announcements: the named index is
// reopened and its cached responses are dropped.
package reloader

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/trix/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/kafka"
)

// Reloader reopens an index by name. *registry.Registry satisfies it.
type Reloader interface {
	Reload(name string) error
}

// Invalidator drops cached responses. *cache.QueryCache satisfies it.
type Invalidator interface {
	InvalidateIndex(ctx context.Context, index string) (int64, error)
}

// Handler returns a Kafka message handler for IndexEvents. inv may be nil.
// Events for indexes this server does not serve are ignored; reload
// failures are logged and the message is still committed, since replaying
// it would fail the same way.
func Handler(reg Reloader, inv Invalidator) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-reloader")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[analytics.IndexEvent](value)
		if err != nil {
			logger.Error("failed to decode index event", "error", err)
			return nil
		}
		if event.Type != analytics.EventIndexRebuilt || event.Index == "" {
			return nil
		}
		if err := reg.Reload(event.Index); err != nil {
			if errors.Is(err, apperrors.ErrIndexNotFound) {
				logger.Debug("rebuild of unserved index ignored", "index", event.Index)
				return nil
			}
			logger.Error("index reload failed", "index", event.Index, "error", err)
			return nil
		}
		var deleted int64
		if inv != nil {
			if deleted, err = inv.InvalidateIndex(ctx, event.Index); err != nil {
				logger.Warn("cache invalidation failed", "index", event.Index, "error", err)
			}
		}
		logger.Info("index reloaded after rebuild",
			"index", event.Index,
			"items", event.Items,
			"cache_keys_deleted", deleted,
		)
		return nil
	}
}
