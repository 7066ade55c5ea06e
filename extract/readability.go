// CLAUDE:SUMMARY Main-content identification: go-readability first, text-density fallback second.
package extract

import (
	"log/slog"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Article is the outcome of content identification.
type Article struct {
	// Node is a detached content root, or nil when nothing was found.
	Node  *html.Node
	Title string
}

// Extractor identifies the main content of a page.
type Extractor struct {
	// MinTextLen is the shortest text the density fallback accepts. Default 200.
	MinTextLen int
	Logger     *slog.Logger
}

func (e *Extractor) minLen() int {
	if e.MinTextLen > 0 {
		return e.MinTextLen
	}
	return 200
}

func (e *Extractor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Identify returns the main content of doc. The document tree is left
// untouched so a pattern query can still run against it. The density
// scorer only runs when readability yields no text; ok is false when
// neither found content.
func (e *Extractor) Identify(doc *Document) (Article, bool) {
	title := doc.Title()

	art, err := readability.FromDocument(doc.Root, doc.URL)
	if err == nil && strings.TrimSpace(art.TextContent) != "" {
		if art.Title != "" {
			title = art.Title
		}
		if node, perr := parseFragment(art.Content); perr == nil {
			return Article{Node: unwrapSingle(node), Title: title}, true
		}
	}
	if err != nil {
		e.logger().Debug("extract: readability failed", "url", doc.URL.String(), "error", err)
	}

	if n := densestContent(doc, e.minLen()); n != nil {
		frag, perr := parseFragment(OuterHTML(n))
		if perr == nil {
			return Article{Node: unwrapSingle(frag), Title: title}, true
		}
	}
	return Article{Title: title}, false
}
