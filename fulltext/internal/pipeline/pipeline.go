// CLAUDE:SUMMARY Feed build loop: sanitise permalinks, prefetch the batch, then extract and assemble each item.
// Package pipeline turns source feed items into full-text output items.
//
// For one feed build it validates every permalink, prefetches the batch
// through the fetch agent, persists the fetched pages, and then runs each
// item through the Orchestrator and the Assembler. Per-item failures never
// abort the build.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/fulltext/fulltext/internal/feed"
	"github.com/hazyhaar/fulltext/fulltext/internal/fetch"
)

// Fetcher is the page source used by a build.
type Fetcher interface {
	FetchAll(ctx context.Context, urls []string) (fetch.BatchReport, error)
	Get(ctx context.Context, url string) (*fetch.Result, error)
	CacheAll(ctx context.Context) int
}

// Pipeline runs feed builds.
type Pipeline struct {
	fetcher  Fetcher
	orch     *Orchestrator
	asm      *Assembler
	opts     Options
	sanitize func(string) (string, error)
	logger   *slog.Logger
}

// New creates a Pipeline. sanitize validates permalinks (see
// horosafe.SanitizeURL).
func New(fetcher Fetcher, orch *Orchestrator, asm *Assembler, opts Options, sanitize func(string) (string, error), logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{fetcher: fetcher, orch: orch, asm: asm, opts: opts, sanitize: sanitize, logger: logger}
}

// Build returns the output items for items, in source order.
func (p *Pipeline) Build(ctx context.Context, items []feed.SourceItem) []feed.Item {
	permalinks := make([]string, len(items))
	batch := make([]string, 0, len(items))
	for i, it := range items {
		u, err := p.sanitize(it.Permalink)
		if err != nil {
			p.logger.Debug("pipeline: invalid permalink", "permalink", it.Permalink, "error", err)
			continue
		}
		permalinks[i] = u
		batch = append(batch, u)
	}

	if report, err := p.fetcher.FetchAll(ctx, batch); err != nil {
		// Remaining URLs are fetched one by one below.
		p.logger.Warn("pipeline: prefetch aborted", "windows", len(report.Windows), "error", err)
	}
	if n := p.fetcher.CacheAll(ctx); n > 0 {
		p.logger.Debug("pipeline: cached pages", "count", n)
	}

	out := make([]feed.Item, 0, len(items))
	for i, it := range items {
		outcome := p.itemOutcome(ctx, permalinks[i])
		item, ok := p.asm.Item(it, permalinks[i], outcome)
		if !ok {
			p.logger.Debug("pipeline: item excluded", "permalink", it.Permalink, "reason", outcome.Err)
			continue
		}
		out = append(out, item)
	}
	return out
}

func (p *Pipeline) itemOutcome(ctx context.Context, permalink string) Outcome {
	if permalink == "" {
		return Outcome{Err: errors.New("pipeline: invalid permalink")}
	}
	res, err := p.fetcher.Get(ctx, permalink)
	if err != nil {
		return Outcome{Err: err}
	}
	return p.orch.Extract(res, p.opts)
}

// Page extracts a single page for page mode. The fetch error, if any, is
// returned separately from extraction failures.
func (p *Pipeline) Page(ctx context.Context, pageURL string) (*fetch.Result, Outcome, error) {
	res, err := p.fetcher.Get(ctx, pageURL)
	if err != nil {
		return nil, Outcome{}, err
	}
	return res, p.orch.Extract(res, p.opts), nil
}
