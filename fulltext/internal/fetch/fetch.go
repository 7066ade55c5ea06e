// CLAUDE:SUMMARY FetchAgent: windowed concurrent HTTP fetching with URL dedup, memory/cache/fresh precedence, and best-effort persistence.
// Package fetch retrieves the pages behind feed items.
//
// An Agent fetches a batch of URLs in fixed-size windows, at most one
// request per distinct URL, and keeps the results in memory for the
// lifetime of one feed build. Results can be persisted to a
// cache.PersistentCache so later builds reuse them.
//
// A transport-level fatal error (ErrTransport, or cancellation of the
// caller's context) aborts the window in flight and stops FetchAll; results
// from earlier windows stay valid and the remaining URLs are fetched on
// demand by Get. Ordinary per-URL failures, timeouts included, never
// affect sibling requests.
package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/hazyhaar/fulltext/fulltext/internal/cache"
	"github.com/hazyhaar/fulltext/horosafe"
)

// ErrFetch marks a per-URL failure: network error, HTTP error status or
// empty body.
var ErrFetch = errors.New("fetch: request failed")

// ErrTransport marks a fatal transport error. A RoundTripper returns an
// error wrapping it when it can no longer serve any request.
var ErrTransport = errors.New("fetch: transport unavailable")

// Result is one fetched page.
type Result struct {
	URL          string      `json:"url"`
	EffectiveURL string      `json:"effective_url"`
	StatusCode   int         `json:"status"`
	Header       http.Header `json:"header"`
	Body         []byte      `json:"body"`
	FromCache    bool        `json:"-"`
}

// ContentType returns the Content-Type response header.
func (r *Result) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Config configures an Agent.
type Config struct {
	Timeout      time.Duration // per request. Default: 10s.
	MaxRedirects int           // Default: 5.
	MaxParallel  int           // window size. Default: 5.
	// Sequential disables concurrent dispatch.
	Sequential bool
	// MinimiseMemory writes each result to Store as soon as it is fetched
	// and drops the in-memory copy. Ignored without a Store.
	MinimiseMemory bool
	MaxBytes       int64 // Default: horosafe.MaxResponseBody.
	UserAgent      string
	// URLValidator vets every request and redirect target.
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error
	// Transport overrides http.DefaultTransport.
	Transport http.RoundTripper
	// Store persists results across feed builds. Optional.
	Store  cache.PersistentCache
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 5
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = horosafe.MaxResponseBody
	}
	if c.UserAgent == "" {
		c.UserAgent = "fulltext/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Agent fetches pages for one feed build. It is not safe for concurrent
// use; FetchAll parallelises internally.
type Agent struct {
	client  *http.Client
	config  Config
	logger  *slog.Logger
	results map[string]*Result
	failed  map[string]error
	saved   map[string]bool
}

// New creates an Agent with SSRF protection on redirects.
func New(cfg Config) *Agent {
	cfg.defaults()
	validate := cfg.URLValidator
	maxRedirects := cfg.MaxRedirects
	return &Agent{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked (SSRF): %w", err)
				}
				return nil
			},
		},
		config:  cfg,
		logger:  cfg.Logger,
		results: make(map[string]*Result),
		failed:  make(map[string]error),
		saved:   make(map[string]bool),
	}
}

// Fetch issues one request for url, bypassing memory and cache. The
// effective URL is where the redirect chain ended.
func (a *Agent) Fetch(ctx context.Context, url string) (*Result, error) {
	if err := a.config.URLValidator(url); err != nil {
		return nil, fmt.Errorf("%w: URL blocked: %w", ErrFetch, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %w", ErrFetch, err)
	}
	req.Header.Set("User-Agent", a.config.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrTransport) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	effective := url
	if resp.Request != nil && resp.Request.URL != nil {
		effective = resp.Request.URL.String()
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: http %d", ErrFetch, resp.StatusCode)
	}

	body, err := a.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrFetch)
	}

	header := resp.Header.Clone()
	header.Del("Content-Encoding")
	header.Del("Content-Length")
	return &Result{
		URL:          url,
		EffectiveURL: effective,
		StatusCode:   resp.StatusCode,
		Header:       header,
		Body:         body,
	}, nil
}

func (a *Agent) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return horosafe.LimitedReadAll(reader, a.config.MaxBytes)
}

// Get returns the result for url from memory, then the persistent cache,
// then a fresh request. A URL that already failed in FetchAll is not
// retried.
func (a *Agent) Get(ctx context.Context, url string) (*Result, error) {
	if r, ok := a.results[url]; ok {
		return r, nil
	}
	if err, ok := a.failed[url]; ok {
		return nil, err
	}
	if r, ok := a.load(ctx, url); ok {
		if !a.minimising() {
			a.results[url] = r
		}
		return r, nil
	}
	r, err := a.Fetch(ctx, url)
	if err != nil {
		a.logger.Debug("fetch: get failed", "url", url, "error", err)
		return nil, err
	}
	a.keep(ctx, r)
	return r, nil
}

// keep records a fresh result; in memory-conserving mode it is written
// through to the store and not held.
func (a *Agent) keep(ctx context.Context, r *Result) {
	a.results[r.URL] = r
	if a.minimising() {
		a.Cache(ctx, r.URL)
	}
}

func (a *Agent) minimising() bool {
	return a.config.MinimiseMemory && a.config.Store != nil
}

func (a *Agent) load(ctx context.Context, url string) (*Result, bool) {
	if a.config.Store == nil {
		return nil, false
	}
	blob, err := a.config.Store.Load(ctx, cache.Key(url))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			a.logger.Warn("fetch: cache load failed", "url", url, "error", err)
		}
		return nil, false
	}
	var r Result
	if err := json.Unmarshal(blob, &r); err != nil || len(r.Body) == 0 {
		a.logger.Warn("fetch: cache entry unreadable", "url", url, "error", err)
		return nil, false
	}
	r.FromCache = true
	return &r, true
}

func (a *Agent) inCache(ctx context.Context, url string) bool {
	return a.config.Store != nil && a.config.Store.Test(ctx, cache.Key(url))
}

// Cache persists the in-memory result for url. Results that came from the
// cache, or were already written, are skipped. In memory-conserving mode
// the in-memory copy is dropped after a successful write. Failures are
// logged and returned; callers treat them as non-fatal.
func (a *Agent) Cache(ctx context.Context, url string) error {
	r, ok := a.results[url]
	if !ok || a.config.Store == nil || r.FromCache || len(r.Body) == 0 || a.saved[url] {
		return nil
	}
	blob, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("fetch: encode %s: %w", url, err)
	}
	if err := a.config.Store.Save(ctx, cache.Key(url), blob); err != nil {
		a.logger.Warn("fetch: cache save failed", "url", url, "error", err)
		return err
	}
	a.saved[url] = true
	if a.config.MinimiseMemory {
		delete(a.results, url)
	}
	return nil
}

// CacheAll persists every in-memory result and returns how many were
// written.
func (a *Agent) CacheAll(ctx context.Context) int {
	n := 0
	for url := range a.results {
		if a.saved[url] {
			continue
		}
		if a.Cache(ctx, url) == nil && a.saved[url] {
			n++
		}
	}
	return n
}
