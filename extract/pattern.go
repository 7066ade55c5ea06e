// CLAUDE:SUMMARY Extraction-pattern grammar: tag, tag#id and tag.class compile to XPath; anything else goes to a CSS translator.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Query selects nodes below a root, in document order.
type Query interface {
	QueryAll(root *html.Node) ([]*html.Node, error)
	String() string
}

// SelectorTranslator turns a CSS-subset pattern the literal shortcuts do
// not cover into a Query.
type SelectorTranslator interface {
	Translate(pattern string) (Query, error)
}

// Pattern is a compiled extraction pattern.
type Pattern struct {
	// Auto runs heuristic identification first.
	Auto bool
	// Scoped evaluates Query inside the auto-identified content instead of
	// the whole page. Only set together with Auto.
	Scoped bool
	// Query is nil for pure auto extraction.
	Query Query
	// Source is the pattern as written.
	Source string
}

var (
	tagOnly  = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9]*)$`)
	tagID    = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9]*)?#([A-Za-z0-9_-]+)$`)
	tagClass = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9]*)?\.([A-Za-z0-9_-]+)$`)
)

// CompilePattern parses an extraction pattern:
//
//	"" or "auto"      heuristic extraction only
//	"auto <pattern>"  heuristic extraction, pattern evaluated inside it
//	"tag"             //tag
//	"tag#id"          //tag[@id='id']   (tag optional)
//	"tag.class"       //tag[class contains 'class'] (tag optional)
//	anything else     delegated to tr
func CompilePattern(pattern string, tr SelectorTranslator) (Pattern, error) {
	src := strings.TrimSpace(pattern)
	if src == "" || strings.EqualFold(src, "auto") {
		return Pattern{Auto: true, Source: src}, nil
	}
	p := Pattern{Source: src}
	if rest, ok := cutPrefixFold(src, "auto "); ok {
		p.Auto, p.Scoped = true, true
		src = strings.TrimSpace(rest)
	}
	q, err := compileQuery(src, tr)
	if err != nil {
		return Pattern{}, err
	}
	p.Query = q
	return p, nil
}

func compileQuery(src string, tr SelectorTranslator) (Query, error) {
	var expr string
	switch {
	case tagOnly.MatchString(src):
		expr = "//" + strings.ToLower(src)
	case tagID.MatchString(src):
		m := tagID.FindStringSubmatch(src)
		expr = fmt.Sprintf("//%s[@id='%s']", tagOrAny(m[1]), m[2])
	case tagClass.MatchString(src):
		m := tagClass.FindStringSubmatch(src)
		expr = fmt.Sprintf("//%s[contains(concat(' ', normalize-space(@class), ' '), ' %s ')]", tagOrAny(m[1]), m[2])
	default:
		if tr == nil {
			tr = CSSTranslator{}
		}
		q, err := tr.Translate(src)
		if err != nil {
			return nil, fmt.Errorf("extract: pattern %q: %w", src, err)
		}
		return q, nil
	}
	return XPath(expr)
}

func tagOrAny(tag string) string {
	if tag == "" {
		return "*"
	}
	return strings.ToLower(tag)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// XPath compiles expr into a Query evaluated with htmlquery. Absolute
// paths ("//x") are rooted at the node passed to QueryAll.
func XPath(expr string) (Query, error) {
	if _, err := htmlquery.QueryAll(&html.Node{Type: html.DocumentNode}, expr); err != nil {
		return nil, fmt.Errorf("extract: xpath %q: %w", expr, err)
	}
	return xpathQuery(expr), nil
}

type xpathQuery string

func (q xpathQuery) QueryAll(root *html.Node) ([]*html.Node, error) {
	return htmlquery.QueryAll(root, string(q))
}

func (q xpathQuery) String() string { return string(q) }

// CSSTranslator compiles patterns as CSS selector groups with cascadia.
type CSSTranslator struct{}

func (CSSTranslator) Translate(pattern string) (Query, error) {
	sel, err := cascadia.ParseGroup(pattern)
	if err != nil {
		return nil, err
	}
	return cssQuery{src: pattern, sel: sel}, nil
}

type cssQuery struct {
	src string
	sel cascadia.SelectorGroup
}

func (q cssQuery) QueryAll(root *html.Node) ([]*html.Node, error) {
	return cascadia.QueryAll(root, q.sel), nil
}

func (q cssQuery) String() string { return q.src }
