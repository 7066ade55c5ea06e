// CLAUDE:SUMMARY ExtractionOrchestrator: per-page auto/pattern extraction, cleanup, link rewriting and failure policy.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/fulltext/extract"
	"github.com/hazyhaar/fulltext/fulltext/internal/fetch"
)

// ErrExtract is the failure reason when no usable content was found.
var ErrExtract = errors.New("pipeline: could not extract content")

// PlaceholderText replaces content when a pattern matches nothing and
// failed items are kept.
const PlaceholderText = "Sorry, could not extract content"

// LinkMode selects what happens to hyperlinks in extracted content.
type LinkMode string

const (
	LinksPreserve  LinkMode = "preserve"
	LinksFootnotes LinkMode = "footnotes"
	LinksRemove    LinkMode = "remove"
)

// ParseLinkMode maps a request value to a LinkMode; ok is false for
// unknown values.
func ParseLinkMode(s string) (LinkMode, bool) {
	switch m := LinkMode(strings.ToLower(strings.TrimSpace(s))); m {
	case LinksPreserve, LinksFootnotes, LinksRemove:
		return m, true
	}
	return LinksPreserve, false
}

// Identifier finds the main content of a page.
type Identifier interface {
	Identify(doc *extract.Document) (extract.Article, bool)
}

// Options are resolved once per request and apply to every item.
type Options struct {
	Pattern extract.Pattern
	// Exclude drops failed items instead of substituting an error body.
	Exclude         bool
	Links           LinkMode
	RewriteRelative bool
}

// Outcome is the result of extracting one page. Err is non-nil when
// extraction failed.
type Outcome struct {
	HTML  string
	Title string
	Err   error
}

// Failed reports whether extraction failed.
func (o Outcome) Failed() bool { return o.Err != nil }

func failed(format string, args ...any) Outcome {
	return Outcome{Err: fmt.Errorf("%w: %s", ErrExtract, fmt.Sprintf(format, args...))}
}

// Orchestrator turns fetched pages into content fragments.
type Orchestrator struct {
	identifier Identifier
	logger     *slog.Logger
}

// NewOrchestrator returns an Orchestrator using id for heuristic
// extraction.
func NewOrchestrator(id Identifier, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{identifier: id, logger: logger}
}

// Extract runs one page through identification or the pattern override,
// cleanup, link rewriting and rendering.
//
// With a pattern, the first matching node becomes the content root. A
// pattern that matches nothing falls back to the heuristic result when
// the pattern was scoped ("auto <pattern>"); otherwise the item fails
// under Exclude or gets a placeholder paragraph.
func (o *Orchestrator) Extract(res *fetch.Result, opts Options) Outcome {
	log := o.logger.With("url", res.URL)
	doc, err := extract.NewDocument(res.Body, res.ContentType(), res.EffectiveURL)
	if err != nil {
		return failed("%v", err)
	}

	title := doc.Title()
	var (
		content    *html.Node
		fromQuery  bool
		art        extract.Article
		identified bool
	)

	if opts.Pattern.Auto {
		art, identified = o.identifier.Identify(doc)
		if art.Title != "" {
			title = art.Title
		}
	}

	if q := opts.Pattern.Query; q != nil {
		scope := doc.Root
		if opts.Pattern.Scoped {
			scope = art.Node
		}
		var nodes []*html.Node
		if scope != nil {
			nodes, err = q.QueryAll(scope)
			if err != nil {
				log.Warn("pipeline: pattern query failed", "pattern", q.String(), "error", err)
			}
		}
		switch {
		case len(nodes) > 0:
			if content, err = extract.Prepare(nodes[0]); err != nil {
				return failed("prepare: %v", err)
			}
			fromQuery = true
		case opts.Pattern.Scoped && identified && art.Node != nil:
			content = art.Node
		case opts.Exclude:
			return failed("pattern %q matched nothing", q.String())
		default:
			log.Debug("pipeline: pattern matched nothing, using placeholder", "pattern", q.String())
			content = extract.Placeholder(PlaceholderText)
			fromQuery = true
		}
	} else {
		if !identified && (opts.Exclude || art.Node == nil) {
			return failed("no main content identified")
		}
		content = art.Node
	}

	extract.Clean(content)
	if opts.RewriteRelative {
		if base, perr := url.Parse(res.EffectiveURL); perr == nil {
			extract.MakeAbsolute(base, content)
		}
	}
	if opts.Links == LinksFootnotes {
		extract.Footnotes(content)
	}

	var body string
	if fromQuery || content.DataAtom != atom.Div {
		body = extract.OuterHTML(content)
	} else {
		body = extract.InnerHTML(content)
	}
	return Outcome{HTML: body, Title: title}
}
