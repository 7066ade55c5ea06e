// CLAUDE:SUMMARY Service: wires caches, fetch agents, extraction and assembly into one feed build per request.
// Package fulltext turns summary feeds, or single web pages, into RSS feeds
// whose items carry the full article text.
//
// A request is planned first (tier, item cap, link and failure policy,
// extraction pattern), then served from the response cache or built: the
// source feed is fetched and parsed, every item page is fetched in bounded
// windows, extracted, and assembled into the output feed.
package fulltext

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"path/filepath"
	"time"

	"github.com/hazyhaar/fulltext/dbopen"
	"github.com/hazyhaar/fulltext/extract"
	"github.com/hazyhaar/fulltext/fulltext/internal/cache"
	"github.com/hazyhaar/fulltext/fulltext/internal/feed"
	"github.com/hazyhaar/fulltext/fulltext/internal/fetch"
	"github.com/hazyhaar/fulltext/fulltext/internal/pipeline"
	"github.com/hazyhaar/fulltext/horosafe"
	"github.com/hazyhaar/fulltext/kit"
	"github.com/hazyhaar/fulltext/observability"
)

// Cache tiers. Each tier is a separate sub-tree (file backend) or tier
// column value (sqlite backend).
const (
	tierKeyed   = "rss-with-key"
	tierUnkeyed = "rss"
	tierHTTP    = "http-responses"
)

// Service builds full-text feeds.
type Service struct {
	config       *Config
	logger       *slog.Logger
	responses    *cache.ResponseCache    // nil when caching is off
	metrics      *observability.Recorder // nil when metrics are off
	pages        cache.PersistentCache
	identifier   pipeline.Identifier
	translator   extract.SelectorTranslator
	transport    http.RoundTripper
	urlValidator func(string) error
	coin         func() bool
	now          func() time.Time
	closers      []io.Closer
}

// Option configures a Service.
type Option func(*Service)

// WithTransport sets the RoundTripper used for every outbound request.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Service) { s.transport = rt }
}

// WithIdentifier replaces the main-content identifier.
func WithIdentifier(id pipeline.Identifier) Option {
	return func(s *Service) { s.identifier = id }
}

// WithURLValidator replaces the SSRF check used when
// block_private_addresses is on.
func WithURLValidator(fn func(string) error) Option {
	return func(s *Service) { s.urlValidator = fn }
}

// New creates a Service. The caches named by cfg are opened here and
// released by Close.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fulltext: config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		config:       cfg,
		logger:       logger,
		translator:   extract.CSSTranslator{},
		urlValidator: horosafe.ValidateURL,
		coin:         func() bool { return rand.IntN(101) > 50 },
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.identifier == nil {
		s.identifier = &extract.Extractor{Logger: logger}
	}
	if cfg.Caching || cfg.Cache.HTTPResponses {
		if err := s.openCaches(); err != nil {
			s.Close()
			return nil, err
		}
	}
	if cfg.Metrics.Enabled {
		if err := s.openMetrics(); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) openMetrics() error {
	m := s.config.Metrics
	db, err := dbopen.Open(m.DBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
	if err != nil {
		return fmt.Errorf("fulltext: metrics db: %w", err)
	}
	s.closers = append(s.closers, db)
	s.metrics = observability.NewRecorder(db,
		observability.WithFlushInterval(m.FlushInterval),
		observability.WithLogger(s.logger))
	s.closers = append(s.closers, s.metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if n, err := s.metrics.Cleanup(ctx, m.Retention); err != nil {
		s.logger.Warn("fulltext: metrics cleanup failed", "error", err)
	} else if n > 0 {
		s.logger.Info("fulltext: dropped old metrics", "count", n)
	}
	return nil
}

func (s *Service) openCaches() error {
	c := s.config.Cache
	var open func(tier string, ttl time.Duration) (cache.PersistentCache, error)
	switch c.Backend {
	case "file":
		open = func(tier string, ttl time.Duration) (cache.PersistentCache, error) {
			return cache.NewFile(filepath.Join(c.Dir, tier), c.DirectoryLevel, ttl), nil
		}
	case "sqlite":
		db, err := dbopen.Open(c.DBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(cache.Schema))
		if err != nil {
			return fmt.Errorf("fulltext: cache db: %w", err)
		}
		s.closers = append(s.closers, db)
		open = func(tier string, ttl time.Duration) (cache.PersistentCache, error) {
			return cache.NewSQLite(db, tier, ttl), nil
		}
		s.purgeExpired(db)
	case "memory":
		open = func(_ string, ttl time.Duration) (cache.PersistentCache, error) {
			m, err := cache.NewMemory(context.Background(), ttl, c.MemoryMB, s.config.Fetch.MaxBytes)
			if err != nil {
				return nil, fmt.Errorf("fulltext: memory cache: %w", err)
			}
			s.closers = append(s.closers, m)
			return m, nil
		}
	}

	if s.config.Caching {
		keyed, err := open(tierKeyed, c.TTLWithKey)
		if err != nil {
			return err
		}
		unkeyed, err := open(tierUnkeyed, s.config.unkeyedTTL())
		if err != nil {
			return err
		}
		s.responses = cache.NewResponseCache(keyed, unkeyed, s.logger)
	}
	if c.HTTPResponses {
		pages, err := open(tierHTTP, c.HTTPTTL)
		if err != nil {
			return err
		}
		s.pages = pages
	}
	return nil
}

func (s *Service) purgeExpired(db *sql.DB) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := cache.NewSQLite(db, tierHTTP, s.config.Cache.HTTPTTL).Purge(ctx)
	if err != nil {
		s.logger.Warn("fulltext: cache purge failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("fulltext: purged expired cache entries", "count", n)
	}
}

// Close releases the caches and flushes pending metrics.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Output is a rendered feed document.
type Output struct {
	Body      []byte
	Expires   time.Time
	FromCache bool
}

// ContentType is the media type of every feed document.
const ContentType = "text/xml; charset=UTF-8"

// MakeFeed builds the feed for p, or returns the cached copy. Requests
// that cannot produce a feed fail with an *InputError; per-item failures
// are absorbed by the assembler.
func (s *Service) MakeFeed(ctx context.Context, p Plan) (*Output, error) {
	b := observability.Build{Keyed: p.Keyed, PageMode: p.PageMode, Outcome: observability.OutcomeFailed}
	start := s.now()
	defer func() {
		if s.metrics != nil {
			b.Duration = s.now().Sub(start)
			s.metrics.ObserveBuild(b)
		}
	}()

	out := &Output{Expires: start.Add(s.expiry(p.Keyed))}
	fp := p.Fingerprint()
	log := s.logger.With(append(kit.LogAttrs(ctx), "url", p.URL, "keyed", p.Keyed)...)

	if s.responses != nil {
		if doc, ok := s.responses.Get(ctx, fp, p.Keyed); ok {
			log.Debug("fulltext: response cache hit")
			b.Outcome = observability.OutcomeCached
			out.Body, out.FromCache = doc, true
			return out, nil
		}
	}

	var doc []byte
	src, err := s.sourceFeed(ctx, p)
	switch {
	case errors.Is(err, feed.ErrNoItems):
		return nil, inputError(ErrNoItems, "Sorry, no feed items found")
	case err != nil:
		log.Debug("fulltext: not a feed, extracting page", "error", err)
		b.PageMode = true
		doc, err = s.pageFeed(ctx, p)
		b.Items = 1
	default:
		b.SourceItems = len(src.Items)
		doc, b.Items, err = s.itemFeed(ctx, p, src)
	}
	if err != nil {
		return nil, err
	}
	b.Outcome = observability.OutcomeBuilt

	if s.responses != nil {
		s.responses.Put(ctx, fp, p.Keyed, doc)
	}
	out.Body = doc
	return out, nil
}

func (s *Service) expiry(keyed bool) time.Duration {
	if keyed {
		return 10 * time.Minute
	}
	return 20 * time.Minute
}

// sourceFeed fetches and parses the source feed. Page mode, fetch errors
// and non-feed documents all return an error wrapping feed.ErrNotFeed.
func (s *Service) sourceFeed(ctx context.Context, p Plan) (*feed.Source, error) {
	if p.PageMode {
		return nil, fmt.Errorf("%w: page mode requested", feed.ErrNotFeed)
	}
	agent := fetch.New(fetch.Config{
		Timeout:      s.config.Feed.Timeout,
		MaxRedirects: s.config.Fetch.MaxRedirects,
		UserAgent:    s.config.Fetch.UserAgent,
		MaxBytes:     s.config.Fetch.MaxBytes,
		URLValidator: s.fetchValidator(),
		Transport:    s.transport,
		Logger:       s.logger,
	})
	res, err := agent.Fetch(ctx, p.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", feed.ErrNotFeed, err)
	}
	return feed.Parse(res.Body)
}

func (s *Service) fetchValidator() func(string) error {
	if s.config.BlockPrivateAddresses {
		return s.urlValidator
	}
	return func(string) error { return nil }
}

func (s *Service) newPipeline(p Plan) (*pipeline.Pipeline, *pipeline.Assembler) {
	fc := s.config.Fetch
	agent := fetch.New(fetch.Config{
		Timeout:        fc.Timeout,
		MaxRedirects:   fc.MaxRedirects,
		MaxParallel:    fc.MaxParallel,
		Sequential:     !fc.Parallel,
		MinimiseMemory: fc.MinimiseMemory,
		MaxBytes:       fc.MaxBytes,
		UserAgent:      fc.UserAgent,
		URLValidator:   s.fetchValidator(),
		Transport:      s.transport,
		Store:          s.pages,
		Logger:         s.logger,
	})
	asm := &pipeline.Assembler{
		Tier:    s.tier(p.Keyed),
		Links:   p.Links,
		Exclude: p.Exclude,
	}
	if p.Keyed && p.PubSub {
		asm.PubSubRedirect = s.config.PubSub.RedirectURL
	}
	opts := pipeline.Options{
		Pattern:         p.Pattern,
		Exclude:         p.Exclude,
		Links:           p.Links,
		RewriteRelative: s.config.RewriteRelativeURLs,
	}
	orch := pipeline.NewOrchestrator(s.identifier, s.logger)
	return pipeline.New(agent, orch, asm, opts, horosafe.SanitizeURL, s.logger), asm
}

func (s *Service) tier(keyed bool) pipeline.Tier {
	if keyed {
		return pipeline.Tier{
			Prepend:      s.config.MessageToPrependWithKey,
			Append:       s.config.MessageToAppendWithKey,
			ErrorMessage: s.config.ErrorMessageWithKey,
		}
	}
	return pipeline.Tier{
		Prepend:      s.config.MessageToPrepend,
		Append:       s.config.MessageToAppend,
		ErrorMessage: s.config.ErrorMessage,
	}
}

func (s *Service) itemFeed(ctx context.Context, p Plan, src *feed.Source) ([]byte, int, error) {
	items := src.Items
	if len(items) > p.Max {
		items = items[:p.Max]
	}
	pipe, _ := s.newPipeline(p)
	built := pipe.Build(ctx, items)

	ch := feed.Channel{
		Title:       src.Title,
		Link:        src.Link,
		Description: src.Description,
		Image:       src.Image,
		XSL:         s.config.Feed.XSL,
	}
	if p.Keyed && p.PubSub {
		ch.Hubs = s.config.PubSub.Hubs
		ch.Self = p.Self
	}
	s.logger.Info("fulltext: feed built", "url", p.URL, "source_items", len(src.Items), "items", len(built))
	doc, err := render(ch, built)
	return doc, len(built), err
}

func (s *Service) pageFeed(ctx context.Context, p Plan) ([]byte, error) {
	pipe, asm := s.newPipeline(p)
	_, outcome, err := pipe.Page(ctx, p.URL)
	if err != nil {
		s.logger.Info("fulltext: page retrieval failed", "url", p.URL, "error", err)
		return nil, inputError(ErrRetrieve, "Error retrieving "+p.URL)
	}
	// A page has no source description to fall back on.
	body, ok := asm.Body(outcome, "<p>"+pipeline.PlaceholderText+"</p>")
	if !ok {
		return nil, inputError(ErrExtract, pipeline.PlaceholderText)
	}
	title := outcome.Title
	if title == "" {
		title = p.URL
	}
	ch := feed.Channel{
		Title:       title,
		Link:        p.URL,
		Description: "Content extracted from " + p.URL,
		XSL:         s.config.Feed.XSL,
	}
	item := feed.Item{
		Title:           title,
		Link:            p.URL,
		GUID:            p.URL,
		GUIDIsPermaLink: true,
		Description:     body,
	}
	return render(ch, []feed.Item{item})
}

func render(ch feed.Channel, items []feed.Item) ([]byte, error) {
	var buf bytes.Buffer
	if err := feed.Write(&buf, ch, items); err != nil {
		return nil, fmt.Errorf("fulltext: write feed: %w", err)
	}
	return buf.Bytes(), nil
}
