// Command trixsearch queries a trix index, either directly from its files
// or through a running trixserver's RPC port.
//
// Usage:
//
//	trixsearch [flags] index.ix word...
//	trixsearch -rpc host:9000 [-index name] [flags] word...
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/trix/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/rpc"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/trix"
)

type options struct {
	mode     string
	limit    int
	snippets bool
	index    string
	verbose  bool
}

func main() {
	var opts options
	rpcAddr := flag.String("rpc", "", "address of a trixserver RPC port; search it instead of local files")
	flag.StringVar(&opts.mode, "mode", "", "search mode: exact, expand or firstFive (default expand)")
	flag.IntVar(&opts.limit, "limit", 20, "maximum results to print")
	flag.BoolVar(&opts.snippets, "snippets", false, "print a snippet under each result")
	flag.StringVar(&opts.index, "index", "", "index name for -rpc (default all)")
	flag.BoolVar(&opts.verbose, "v", false, "print spans and word positions")
	timeout := flag.Duration("timeout", 10*time.Second, "RPC timeout")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: trixsearch [flags] index.ix word...\n")
		fmt.Fprintf(os.Stderr, "       trixsearch -rpc host:port [flags] word...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	logger.SetupWriter(os.Stderr, *logLevel, "text")

	var (
		resp *proto.SearchResponse
		err  error
	)
	if *rpcAddr != "" {
		if flag.NArg() < 1 {
			flag.Usage()
			os.Exit(2)
		}
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		resp, err = searchRemote(ctx, *rpcAddr, strings.Join(flag.Args(), " "), opts)
		cancel()
	} else {
		if flag.NArg() < 2 {
			flag.Usage()
			os.Exit(2)
		}
		resp, err = searchLocal(flag.Arg(0), strings.Join(flag.Args()[1:], " "), opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "trixsearch: %v\n", err)
		os.Exit(1)
	}
	render(os.Stdout, resp, opts)
	if resp.Total == 0 {
		os.Exit(1)
	}
}

func searchLocal(path, query string, opts options) (*proto.SearchResponse, error) {
	start := time.Now()
	mode, err := trix.ParseMode(opts.mode)
	if err != nil {
		return nil, err
	}
	q, err := parser.Parse(query, 0)
	if err != nil {
		return nil, err
	}
	t, err := trix.Open(path)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	var results []*trix.SearchResult
	if err := catchCorrupt(func() { results = t.Search(q.Words, mode) }); err != nil {
		return nil, err
	}
	resp := &proto.SearchResponse{Query: query, Words: q.Words, Total: len(results)}
	if opts.limit > 0 && len(results) > opts.limit {
		results = results[:opts.limit]
	}
	if opts.snippets && len(results) > 0 {
		if err := t.InitSnippets(); err != nil {
			resp.Warning = fmt.Sprintf("snippets unavailable: %v", err)
		} else if err := t.AddSnippets(results); err != nil {
			resp.Warning = err.Error()
		}
	}
	for _, r := range results {
		resp.Results = append(resp.Results, proto.Hit{
			ItemID:          r.ItemID,
			UnorderedSpan:   r.UnorderedSpan,
			OrderedSpan:     r.OrderedSpan,
			LeftoverLetters: r.LeftoverLetters,
			WordPos:         r.WordPos,
			Snippet:         r.Snippet,
		})
	}
	resp.LatencyMs = time.Since(start).Milliseconds()
	return resp, nil
}

// catchCorrupt turns a corrupt-index panic from fn into an error.
func catchCorrupt(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ce, ok := r.(*trix.CorruptIndexError)
			if !ok {
				panic(r)
			}
			err = ce
		}
	}()
	fn()
	return nil
}

func searchRemote(ctx context.Context, addr, query string, opts options) (*proto.SearchResponse, error) {
	c, err := rpc.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	req := proto.SearchRequest{
		Query:    query,
		Index:    opts.index,
		Mode:     opts.mode,
		Limit:    opts.limit,
		Snippets: opts.snippets,
	}
	var resp proto.SearchResponse
	if err := c.Call(ctx, handler.MethodSearch, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

var (
	idColor   = color.New(color.FgCyan, color.Bold)
	bold      = color.New(color.Bold)
	faint     = color.New(color.Faint)
	warnColor = color.New(color.FgYellow)
)

func render(w io.Writer, resp *proto.SearchResponse, opts options) {
	for _, h := range resp.Results {
		id := h.ItemID
		if h.Index != "" {
			id = h.Index + "/" + id
		}
		idColor.Fprint(w, id)
		if h.Description != "" {
			fmt.Fprintf(w, "  %s", h.Description)
		}
		if opts.verbose {
			faint.Fprintf(w, "  span=%d ordered=%d leftover=%d pos=%v",
				h.UnorderedSpan, displaySpan(h.OrderedSpan), h.LeftoverLetters, h.WordPos)
		}
		fmt.Fprintln(w)
		if h.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", highlight(h.Snippet))
		}
	}
	if resp.Warning != "" {
		warnColor.Fprintf(w, "warning: %s\n", resp.Warning)
	}
	cached := ""
	if resp.Cached {
		cached = ", cached"
	}
	faint.Fprintf(w, "%d of %d items for %q (%dms%s)\n",
		len(resp.Results), resp.Total, strings.Join(resp.Words, " "), resp.LatencyMs, cached)
}

// displaySpan shows items whose words never appear in query order as -1.
func displaySpan(span int) int {
	if span >= trix.NoOrderedSpan {
		return -1
	}
	return span
}

// highlight replaces the bold markers in a snippet with terminal bold.
func highlight(snippet string) string {
	var sb strings.Builder
	for {
		open := strings.Index(snippet, trix.BoldStart)
		if open < 0 {
			break
		}
		rest := snippet[open+len(trix.BoldStart):]
		end := strings.Index(rest, trix.BoldEnd)
		if end < 0 {
			break
		}
		sb.WriteString(snippet[:open])
		sb.WriteString(bold.Sprint(rest[:end]))
		snippet = rest[end+len(trix.BoldEnd):]
	}
	sb.WriteString(snippet)
	return sb.String()
}
