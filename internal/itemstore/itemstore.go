// Package itemstore looks up item descriptions in PostgreSQL. Index lines
// only carry item ids; callers join them with rows keyed by (index, id).
package itemstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/resilience"
)

// upsertBatch bounds the array size of one upsert statement.
const upsertBatch = 1000

// Schema returns the statements creating table.
func Schema(table string) []string {
	t := pq.QuoteIdentifier(table)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			index_name  TEXT NOT NULL,
			item_id     TEXT NOT NULL,
			description TEXT NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (index_name, item_id)
		)`, t),
	}
}

type Store struct {
	db      *sql.DB
	table   string
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// New returns a store over table. breaker may be nil.
func New(db *sql.DB, table string, breaker *resilience.CircuitBreaker) *Store {
	return &Store{
		db:      db,
		table:   pq.QuoteIdentifier(table),
		breaker: breaker,
		logger:  slog.Default().With("component", "item-store"),
	}
}

// BreakerConfig is a circuit breaker setup that does not count missing
// items or cancelled requests as database failures.
func BreakerConfig(onStateChange func(string, resilience.State)) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		OnStateChange:    onStateChange,
		IsFailure: func(err error) bool {
			return !errors.Is(err, apperrors.ErrItemNotFound) && !errors.Is(err, context.Canceled)
		},
	}
}

func (s *Store) guard(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(fn)
}

// Describe returns descriptions for the ids that have one.
func (s *Store) Describe(ctx context.Context, index string, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT item_id, description FROM %s WHERE index_name = $1 AND item_id = ANY($2)`, s.table)
	err := s.guard(func() error {
		rows, err := s.db.QueryContext(ctx, query, index, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("querying item descriptions: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id, desc string
			if err := rows.Scan(&id, &desc); err != nil {
				return fmt.Errorf("scanning item row: %w", err)
			}
			out[id] = desc
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("items described", "index", index, "requested", len(ids), "found", len(out))
	return out, nil
}

// Get returns one description or an error wrapping ErrItemNotFound.
func (s *Store) Get(ctx context.Context, index, id string) (string, error) {
	query := fmt.Sprintf(`SELECT description FROM %s WHERE index_name = $1 AND item_id = $2`, s.table)
	var desc string
	err := s.guard(func() error {
		err := s.db.QueryRowContext(ctx, query, index, id).Scan(&desc)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Newf(apperrors.ErrItemNotFound, 404, "no item %q in index %q", id, index)
		}
		if err != nil {
			return fmt.Errorf("querying item %s: %w", id, err)
		}
		return nil
	})
	return desc, err
}

// Upsert stores descriptions for index, replacing existing ones.
func (s *Store) Upsert(ctx context.Context, index string, items map[string]string) (int, error) {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	query := fmt.Sprintf(`INSERT INTO %s (index_name, item_id, description)
		SELECT $1, unnest($2::text[]), unnest($3::text[])
		ON CONFLICT (index_name, item_id)
		DO UPDATE SET description = EXCLUDED.description, updated_at = NOW()`, s.table)

	written := 0
	err := s.guard(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()
		for start := 0; start < len(ids); start += upsertBatch {
			end := min(start+upsertBatch, len(ids))
			batch := ids[start:end]
			descs := make([]string, len(batch))
			for i, id := range batch {
				descs[i] = items[id]
			}
			if _, err := tx.ExecContext(ctx, query, index, pq.Array(batch), pq.Array(descs)); err != nil {
				return fmt.Errorf("upserting items %d-%d: %w", start, end, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing items: %w", err)
		}
		written = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("items upserted", "index", index, "items", written)
	return written, nil
}
