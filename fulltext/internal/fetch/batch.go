package fetch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// WindowResult describes one window of a FetchAll call.
type WindowResult struct {
	// Dispatched are the URLs requested in this window, in input order.
	Dispatched []string
	// Skipped counts URLs already held in memory or in the store.
	Skipped int
	Fetched int
	// Failed lists URLs whose request failed, including those cut short
	// by an abort.
	Failed []string
	// Aborted is set when a fatal transport error stopped the window.
	Aborted bool
	Err     error
}

// BatchReport summarises a FetchAll call.
type BatchReport struct {
	Windows []WindowResult
}

// Aborted reports whether any window was aborted.
func (b BatchReport) Aborted() bool {
	for _, w := range b.Windows {
		if w.Aborted {
			return true
		}
	}
	return false
}

// Fetched is the number of URLs fetched over the network.
func (b BatchReport) Fetched() int {
	n := 0
	for _, w := range b.Windows {
		n += w.Fetched
	}
	return n
}

// FetchAll prefetches urls. Duplicates are dropped, the rest split into
// windows of MaxParallel URLs dispatched concurrently; the next window
// starts only once the previous one has completed. Dispatch is sequential
// when the agent is configured so, MaxParallel is 1, or there is only one
// URL to fetch.
//
// A fatal transport error aborts the current window and FetchAll returns
// it with the report so far. Per-URL failures are only recorded.
func (a *Agent) FetchAll(ctx context.Context, urls []string) (BatchReport, error) {
	var report BatchReport
	unique := dedup(urls)
	size := a.config.MaxParallel
	sequential := a.config.Sequential || size <= 1 || len(unique) <= 1

	for start := 0; start < len(unique); start += size {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("fetch: batch cancelled: %w", err)
		}
		end := min(start+size, len(unique))
		w := a.runWindow(ctx, unique[start:end], sequential)
		report.Windows = append(report.Windows, w)
		if w.Aborted {
			a.logger.Warn("fetch: window aborted", "window", len(report.Windows), "failed", len(w.Failed), "error", w.Err)
			return report, fmt.Errorf("fetch: window %d aborted: %w", len(report.Windows), w.Err)
		}
	}
	a.logger.Debug("fetch: batch done", "urls", len(unique), "windows", len(report.Windows), "fetched", report.Fetched())
	return report, nil
}

func dedup(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// pending drops URLs already resolved. Outside memory-conserving mode,
// stored results are pulled into memory now.
func (a *Agent) pending(ctx context.Context, window []string) (todo []string, skipped int) {
	for _, u := range window {
		if _, ok := a.results[u]; ok {
			skipped++
			continue
		}
		if a.minimising() {
			if a.inCache(ctx, u) {
				skipped++
				continue
			}
		} else if r, ok := a.load(ctx, u); ok {
			a.results[u] = r
			skipped++
			continue
		}
		todo = append(todo, u)
	}
	return todo, skipped
}

type outcome struct {
	res *Result
	err error
}

func (a *Agent) runWindow(ctx context.Context, window []string, sequential bool) WindowResult {
	todo, skipped := a.pending(ctx, window)
	w := WindowResult{Dispatched: todo, Skipped: skipped}
	if len(todo) == 0 {
		return w
	}

	outcomes := make([]outcome, len(todo))
	if sequential {
		for i, u := range todo {
			res, err := a.Fetch(ctx, u)
			outcomes[i] = outcome{res, err}
			if a.fatal(ctx, err) {
				w.Aborted, w.Err = true, err
				break
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(len(todo))
		for i, u := range todo {
			g.Go(func() error {
				res, err := a.Fetch(gctx, u)
				outcomes[i] = outcome{res, err}
				if a.fatal(ctx, err) {
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			w.Aborted, w.Err = true, err
		}
	}

	for i, u := range todo {
		o := outcomes[i]
		switch {
		case o.res != nil:
			a.keep(ctx, o.res)
			w.Fetched++
		default:
			err := o.err
			if err == nil {
				err = fmt.Errorf("%w: window aborted", ErrFetch)
			}
			a.failed[u] = err
			w.Failed = append(w.Failed, u)
		}
	}
	return w
}

// fatal reports whether err must abort the window: the transport is gone
// or the caller gave up.
func (a *Agent) fatal(parent context.Context, err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransport) || parent.Err() != nil
}
