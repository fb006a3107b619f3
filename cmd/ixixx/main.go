// Command ixixx builds a trix index from a text file with one item per
// line: an item id, whitespace, then the item's text.
//
// Usage:
//
//	ixixx [flags] input.txt[.gz|-] output.ix
//
// It writes output.ix and output.ixx, and with -snippets the .txt,
// .offsets and .offsets.ixx files snippets are cut from. With -notify the
// rebuild is announced on Kafka so running servers reload the index; with
// -describe item descriptions are loaded into PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trix/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/itemstore"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/ixbuild"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "config file, needed for -notify and -describe")
	binSize := flag.Int64("binSize", ixbuild.DefaultBinSize, "minimum bytes between .ixx entries")
	snippets := flag.Bool("snippets", false, "also write the snippet files")
	snippetBinSize := flag.Int64("snippetBinSize", 0, "minimum bytes between .offsets.ixx entries (default binSize)")
	name := flag.String("name", "", "index name used by -notify and -describe (default output base name)")
	notify := flag.Bool("notify", false, "announce the rebuild on the cache-invalidate topic")
	describe := flag.Int("describe", 0, "store the first N characters of each item as its description")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: ixixx [flags] input.txt[.gz|-] output.ix\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	logger.Setup(*logLevel, "text")
	input, output := flag.Arg(0), flag.Arg(1)
	if *name == "" {
		*name = strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	in, err := ixbuild.OpenInput(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ixixx: %v\n", err)
		os.Exit(1)
	}
	defer in.Close()

	opts := ixbuild.Options{
		BinSize:        *binSize,
		SnippetBinSize: *snippetBinSize,
		Snippets:       *snippets,
	}
	var descriptions map[string]string
	if *describe > 0 {
		descriptions = make(map[string]string)
		opts.OnItem = func(id, text string) {
			descriptions[id] = truncate(strings.TrimSpace(text), *describe)
		}
	}

	stats, err := ixbuild.Build(in, output, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ixixx: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d items, %d words, %d postings, %d sparse entries in %v\n",
		output, stats.Items, stats.Words, stats.Postings, stats.IxxEntries, stats.Duration.Round(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if descriptions != nil {
		if err := storeDescriptions(ctx, cfg, *name, descriptions); err != nil {
			fmt.Fprintf(os.Stderr, "ixixx: storing descriptions: %v\n", err)
			os.Exit(1)
		}
	}
	if *notify {
		abs, _ := filepath.Abs(output)
		event := analytics.IndexEvent{
			Type:      analytics.EventIndexRebuilt,
			Index:     *name,
			Path:      abs,
			Items:     stats.Items,
			Words:     stats.Words,
			Postings:  stats.Postings,
			LatencyMs: stats.Duration.Milliseconds(),
			Timestamp: time.Now().UTC(),
		}
		if err := announce(ctx, cfg, event); err != nil {
			fmt.Fprintf(os.Stderr, "ixixx: announcing rebuild: %v\n", err)
			os.Exit(1)
		}
	}
}

func storeDescriptions(ctx context.Context, cfg *config.Config, index string, descriptions map[string]string) error {
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.Migrate(ctx, itemstore.Schema(cfg.Postgres.ItemsTable)...); err != nil {
		return err
	}
	n, err := itemstore.New(pg.DB, cfg.Postgres.ItemsTable, nil).Upsert(ctx, index, descriptions)
	if err != nil {
		return err
	}
	slog.Info("descriptions stored", "index", index, "items", n, "table", cfg.Postgres.ItemsTable)
	return nil
}

func announce(ctx context.Context, cfg *config.Config, event analytics.IndexEvent) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
	defer producer.Close()
	err := resilience.Retry(ctx, "announce rebuild", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		return producer.Publish(ctx, kafka.Event{Key: event.Index, Value: event})
	})
	if err != nil {
		return err
	}
	slog.Info("rebuild announced", "index", event.Index, "topic", cfg.Kafka.Topics.CacheInvalidate)
	return nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
