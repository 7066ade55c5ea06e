// CLAUDE:SUMMARY Parsed page model for extraction: charset-normalised DOM with its base URL and title.
// Package extract turns fetched HTML into article fragments.
//
// It bundles the pieces the feed pipeline delegates to: main-content
// identification (readability with a text-density fallback), extraction
// patterns (three literal shortcuts plus a CSS fallback), cleanup of
// scripts and boilerplate, footnote link mode, and rewriting of relative
// links against the page's effective URL.
//
// All operations work on *html.Node trees from golang.org/x/net/html and
// mutate them in place.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoContent is returned when no usable content node could be identified.
var ErrNoContent = errors.New("extract: no content found")

// Document is a parsed HTML page.
type Document struct {
	Root *html.Node
	URL  *url.URL
}

// NewDocument decodes body to UTF-8 according to contentType and the
// in-document declarations, then parses it. pageURL is the URL the page
// was actually served from and becomes the base for relative links.
func NewDocument(body []byte, contentType, pageURL string) (*Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("extract: page url: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(ToUTF8(body, contentType)))
	if err != nil {
		return nil, fmt.Errorf("extract: parse: %w", err)
	}
	return &Document{Root: root, URL: u}, nil
}

// Title returns the trimmed text of the first <title> element.
func (d *Document) Title() string {
	if t := findFirst(d.Root, atom.Title); t != nil {
		return strings.Join(strings.Fields(collectText(t)), " ")
	}
	return ""
}

// Body returns the <body> element, or the document root if there is none.
func (d *Document) Body() *html.Node {
	if b := findFirst(d.Root, atom.Body); b != nil {
		return b
	}
	return d.Root
}

func findFirst(root *html.Node, tag atom.Atom) *html.Node {
	if root.Type == html.ElementNode && root.DataAtom == tag {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := findFirst(c, tag); n != nil {
			return n
		}
	}
	return nil
}
