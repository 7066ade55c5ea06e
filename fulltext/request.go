// CLAUDE:SUMMARY Request parsing and planning: URL normalisation, access tier, item cap, link/exclude/pattern policy, fingerprint.
package fulltext

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/hazyhaar/fulltext/extract"
	"github.com/hazyhaar/fulltext/fulltext/internal/cache"
	"github.com/hazyhaar/fulltext/fulltext/internal/pipeline"
	"github.com/hazyhaar/fulltext/horosafe"
)

// Request carries the raw caller parameters.
type Request struct {
	URL     string
	HTML    bool // force page mode
	Key     string
	Hash    string
	Max     int
	HasMax  bool
	Links   string
	Exclude bool // exc=1
	What    string
	HasWhat bool
	PubSub  bool
	Redir   bool

	// Endpoint is the path the request arrived on. Redirects are only
	// issued when it is set; other callers get the resolved plan directly.
	Endpoint string
	// Self is the absolute request URL, advertised as the feed's self link.
	Self string

	forward url.Values
}

// forwarded are the parameters carried over on redirects.
var forwarded = []string{"html", "key", "max", "links", "exc", "what"}

// ParseRequest reads the request parameters from q.
func ParseRequest(q url.Values) Request {
	r := Request{
		URL:     strings.TrimSpace(q.Get("url")),
		Key:     q.Get("key"),
		Hash:    q.Get("hash"),
		Links:   q.Get("links"),
		Exclude: q.Get("exc") == "1",
		What:    q.Get("what"),
		HasWhat: q.Has("what"),
		PubSub:  q.Has("pubsub"),
		Redir:   q.Has("redir"),
		forward: url.Values{},
	}
	switch q.Get("html") {
	case "1", "true":
		r.HTML = true
	}
	if q.Has("max") {
		r.HasMax = true
		r.Max, _ = strconv.Atoi(strings.TrimSpace(q.Get("max")))
	}
	for _, k := range forwarded {
		if q.Has(k) {
			r.forward.Set(k, q.Get(k))
		}
	}
	return r
}

// Plan is a validated request: everything one feed build needs.
type Plan struct {
	URL      string
	PageMode bool
	Keyed    bool
	Max      int
	Links    pipeline.LinkMode
	Exclude  bool
	Pattern  extract.Pattern
	PubSub   bool
	Self     string
}

// Fingerprint is the response cache key for the plan.
func (p Plan) Fingerprint() string {
	return cache.Key(
		strconv.Itoa(p.Max),
		p.URL,
		strconv.FormatBool(p.Keyed),
		string(p.Links),
		strconv.FormatBool(p.Exclude),
		strconv.FormatBool(p.Pattern.Auto),
		p.Pattern.Source,
		strconv.FormatBool(p.PubSub),
		strconv.FormatBool(p.PageMode),
	)
}

// Plan validates req. A non-empty redirect means the caller must be sent
// there instead of receiving a feed.
func (s *Service) Plan(req Request) (plan Plan, redirect string, err error) {
	cfg := s.config
	if !cfg.Enabled {
		return Plan{}, "", inputError(ErrDisabled, "The full-text RSS service is currently disabled")
	}
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return Plan{}, "", inputError(ErrNoURL, "No URL supplied")
	}
	if !hasHTTPScheme(raw) {
		raw = "http://" + raw
	}
	u, err := horosafe.SanitizeURL(raw)
	if err != nil {
		return Plan{}, "", inputError(ErrInvalidURL, "Invalid URL supplied")
	}

	rawKey := req.Key != "" && slices.Contains(cfg.APIKeys, req.Key)
	if req.Endpoint != "" {
		if cfg.AlternativeURL != "" && !req.Redir && s.coin() {
			return Plan{}, s.alternativeRedirect(req, u), nil
		}
		if rawKey {
			return Plan{}, s.keyRedirect(req, u), nil
		}
	}

	keyed := rawKey || s.validHash(req.Key, req.Hash, u)

	if len(cfg.AllowedURLs) > 0 {
		if !containsAny(u, cfg.AllowedURLs) {
			return Plan{}, "", inputError(ErrNotAllowed, "URL not allowed")
		}
	} else if containsAny(u, cfg.BlockedURLs) {
		return Plan{}, "", inputError(ErrBlockedURL, "URL blocked")
	}
	if cfg.BlockPrivateAddresses {
		if verr := s.urlValidator(u); verr != nil {
			s.logger.Info("fulltext: requested URL refused", "url", u, "error", verr)
			return Plan{}, "", inputError(ErrBlockedURL, "URL blocked")
		}
	}

	plan = Plan{
		URL:      u,
		PageMode: req.HTML,
		Keyed:    keyed,
		Max:      s.maxItems(req, keyed),
		Links:    pipeline.LinksPreserve,
		PubSub:   req.PubSub,
		Self:     req.Self,
	}
	if keyed || !cfg.Restrict {
		if mode, ok := pipeline.ParseLinkMode(req.Links); ok {
			plan.Links = mode
		}
	}
	switch cfg.ExcludeItemsOnFail {
	case "user":
		plan.Exclude = req.Exclude
	default:
		plan.Exclude = cfg.ExcludeItemsOnFail == "true"
	}

	pattern := strings.TrimSpace(cfg.ExtractionPattern)
	if pattern == "user" {
		pattern = "auto"
		if req.HasWhat {
			pattern = strings.TrimSpace(req.What)
		}
	}
	if plan.Pattern, err = extract.CompilePattern(pattern, s.translator); err != nil {
		return Plan{}, "", &InputError{Status: statusFor(ErrBadPattern), Message: "Invalid extraction pattern", Err: err}
	}
	return plan, "", nil
}

// maxItems applies the tier's default and ceiling. Non-positive values get
// the default.
func (s *Service) maxItems(req Request, keyed bool) int {
	def, ceiling := s.config.DefaultEntries, s.config.MaxEntries
	if keyed {
		def, ceiling = s.config.DefaultEntriesWithKey, s.config.MaxEntriesWithKey
	}
	if !req.HasMax || req.Max <= 0 {
		return def
	}
	return min(req.Max, ceiling)
}

// Sign returns the token hash for key and feed URL u.
func Sign(key, u string) string {
	sum := sha1.Sum([]byte(key + u))
	return hex.EncodeToString(sum[:])
}

func (s *Service) validHash(index, hash, u string) bool {
	if index == "" || hash == "" {
		return false
	}
	i, err := strconv.Atoi(index)
	if err != nil || i < 0 || i >= len(s.config.APIKeys) {
		return false
	}
	want := Sign(s.config.APIKeys[i], u)
	return subtle.ConstantTimeCompare([]byte(want), []byte(hash)) == 1
}

// keyRedirect swaps a raw key for its index and hash so the key never
// shows up in feed readers.
func (s *Service) keyRedirect(req Request, u string) string {
	v := url.Values{}
	for k, vals := range req.forward {
		v[k] = vals
	}
	v.Set("url", u)
	v.Set("key", strconv.Itoa(slices.Index(s.config.APIKeys, req.Key)))
	v.Set("hash", Sign(req.Key, u))
	return req.Endpoint + "?" + v.Encode()
}

func (s *Service) alternativeRedirect(req Request, u string) string {
	v := url.Values{}
	for k, vals := range req.forward {
		v[k] = vals
	}
	v.Set("redir", "true")
	v.Set("url", u)
	return s.config.AlternativeURL + "?" + v.Encode()
}

func hasHTTPScheme(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
