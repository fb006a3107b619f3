// Package registry keeps the named set of open trix indexes. A trix handle
// caches postings as it searches and is not safe for concurrent use, so
// every handle sits behind its own mutex and is only reached through Do.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/trix/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/trix"
)

// Handle is one open index.
type Handle struct {
	Name     string
	Path     string
	Mode     trix.Mode
	// Snippets is read and written under mu; use it inside Do.
	Snippets bool

	mu           sync.Mutex
	tx           *trix.Trix
	wantSnippets bool
	opts   []trix.Option
	logger *slog.Logger
}

// Do runs fn with exclusive use of the index. A corrupt index panic raised
// inside fn is returned as an error wrapping apperrors.ErrCorruptIndex.
func (h *Handle) Do(fn func(tx *trix.Trix) error) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tx == nil {
		return fmt.Errorf("index %q is closed: %w", h.Name, apperrors.ErrIndexNotFound)
	}
	defer func() {
		if r := recover(); r != nil {
			cie, ok := r.(*trix.CorruptIndexError)
			if !ok {
				panic(r)
			}
			h.logger.Error("corrupt index", "error", cie)
			err = cie
		}
	}()
	return fn(h.tx)
}

// Info describes the handle for listings.
func (h *Handle) Info() proto.IndexInfo {
	info := proto.IndexInfo{
		Name: h.Name,
		Path: h.Path,
		Mode: h.Mode.String(),
	}
	h.Do(func(tx *trix.Trix) error {
		info.Snippets = h.Snippets
		info.CachedWords = tx.CachedWords()
		info.LinesRead = tx.LinesRead()
		return nil
	})
	return info
}

// reopen swaps in a fresh handle, dropping cached postings.
func (h *Handle) reopen() error {
	tx, err := trix.Open(h.Path, h.opts...)
	if err != nil {
		return fmt.Errorf("reopening index %q: %w", h.Name, err)
	}
	snippets := h.wantSnippets
	if snippets {
		if err := tx.InitSnippets(); err != nil {
			h.logger.Warn("snippets disabled", "error", err)
			snippets = false
		}
	}
	h.mu.Lock()
	old := h.tx
	h.tx = tx
	h.Snippets = snippets
	h.mu.Unlock()
	if old != nil {
		return old.Close()
	}
	return nil
}

func (h *Handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tx == nil {
		return nil
	}
	err := h.tx.Close()
	h.tx = nil
	return err
}

// Options configures how indexes are opened.
type Options struct {
	// DefaultMode applies to indexes without a mode of their own.
	DefaultMode trix.Mode
	// Observer, if set, returns the engine observer for an index.
	Observer func(name string) trix.Observer
	// Opener replaces the filesystem used by every handle.
	Opener trix.Opener
	// OpenRetry controls retries while index files are being replaced.
	OpenRetry resilience.RetryConfig
}

// Registry maps index names to open handles.
type Registry struct {
	handles map[string]*Handle
	names   []string
	mu      sync.RWMutex
	logger  *slog.Logger
}

// Open opens every configured index concurrently. If any index fails to
// open, the ones already open are closed again.
func Open(ctx context.Context, indexes []config.IndexConfig, opts Options) (*Registry, error) {
	r := &Registry{
		handles: make(map[string]*Handle, len(indexes)),
		logger:  slog.Default().With("component", "index-registry"),
	}
	handles := make([]*Handle, len(indexes))
	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range indexes {
		g.Go(func() error {
			h, err := openHandle(gctx, cfg, opts)
			if err != nil {
				return err
			}
			handles[i] = h
			return nil
		})
	}
	err := g.Wait()
	for _, h := range handles {
		if h != nil {
			r.handles[h.Name] = h
			r.names = append(r.names, h.Name)
		}
	}
	if err != nil {
		r.Close()
		return nil, err
	}
	sort.Strings(r.names)
	r.logger.Info("index registry ready", "indexes", len(r.names))
	return r, nil
}

func openHandle(ctx context.Context, cfg config.IndexConfig, opts Options) (*Handle, error) {
	mode := opts.DefaultMode
	if cfg.Mode != "" {
		m, err := trix.ParseMode(cfg.Mode)
		if err != nil {
			return nil, fmt.Errorf("index %q: %w", cfg.Name, err)
		}
		mode = m
	}
	log := logger.WithIndex("trix", cfg.Name)
	topts := []trix.Option{trix.WithLogger(log)}
	if opts.Observer != nil {
		topts = append(topts, trix.WithObserver(opts.Observer(cfg.Name)))
	}
	if opts.Opener != nil {
		topts = append(topts, trix.WithOpener(opts.Opener))
	}
	retry := opts.OpenRetry
	if retry.Retryable == nil {
		retry.Retryable = func(err error) bool { return !errors.Is(err, fs.ErrNotExist) }
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 200 * time.Millisecond
	}

	h := &Handle{
		Name:         cfg.Name,
		Path:         cfg.Path,
		Mode:         mode,
		Snippets:     cfg.Snippets,
		wantSnippets: cfg.Snippets,
		opts:         topts,
		logger:       log,
	}
	err := resilience.Retry(ctx, "open index "+cfg.Name, retry, func() error {
		tx, err := trix.Open(cfg.Path, topts...)
		if err != nil {
			return err
		}
		h.tx = tx
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("opening index %q: %w", cfg.Name, err)
	}
	if cfg.Snippets {
		h.Do(func(tx *trix.Trix) error {
			if err := tx.InitSnippets(); err != nil {
				log.Warn("snippets disabled", "error", err)
				h.Snippets = false
			}
			return nil
		})
	}
	log.Info("index opened", "path", cfg.Path, "mode", mode.String(), "snippets", h.Info().Snippets)
	return h, nil
}

// Get returns the named handle.
func (r *Registry) Get(name string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrIndexNotFound, 404, "no index named %q", name)
	}
	return h, nil
}

// All returns every handle ordered by name.
func (r *Registry) All() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.handles[name])
	}
	return out
}

// Len returns the number of open indexes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Infos lists every index.
func (r *Registry) Infos() []proto.IndexInfo {
	handles := r.All()
	out := make([]proto.IndexInfo, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.Info())
	}
	return out
}

// Reload reopens the named index from disk, typically after a rebuild.
func (r *Registry) Reload(name string) error {
	h, err := r.Get(name)
	if err != nil {
		return err
	}
	if err := h.reopen(); err != nil {
		return err
	}
	h.logger.Info("index reloaded", "path", h.Path)
	return nil
}

// Ping fails if any index has been closed.
func (r *Registry) Ping(context.Context) error {
	for _, h := range r.All() {
		if err := h.Do(func(*trix.Trix) error { return nil }); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every index.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, h := range r.handles {
		if err := h.close(); err != nil {
			r.logger.Error("close failed", "index", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
