package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// densestContent picks the content node when readability finds nothing:
// semantic landmarks first, then the subtree with the best text density.
// Returns nil when nothing reaches minLen characters of text.
func densestContent(doc *Document, minLen int) *html.Node {
	for _, tag := range []atom.Atom{atom.Article, atom.Main} {
		for _, n := range findAllByTag(doc.Root, tag) {
			if !isBoilerplate(n) && len(collectText(n)) >= minLen {
				return n
			}
		}
	}
	return findDensestNode(doc.Body(), minLen)
}

// nodeScore holds density analysis for a DOM subtree.
type nodeScore struct {
	node     *html.Node
	textLen  int
	density  float64
	linkDens float64 // fraction of text inside <a> tags
}

// findDensestNode walks the DOM and finds the node with highest content density.
func findDensestNode(root *html.Node, minLen int) *html.Node {
	var candidates []nodeScore

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type != html.ElementNode || isBoilerplate(n) {
			return
		}
		if isContentTag(n.DataAtom) {
			text := collectText(n)
			if len(text) >= minLen {
				markupLen := len(OuterHTML(n))
				if markupLen == 0 {
					markupLen = 1
				}
				candidates = append(candidates, nodeScore{
					node:     n,
					textLen:  len(text),
					density:  float64(len(text)) / float64(markupLen),
					linkDens: float64(len(collectLinkText(n))) / float64(len(text)),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	var best *nodeScore
	var bestScore float64
	for i := range candidates {
		c := &candidates[i]
		if c.linkDens > 0.5 {
			continue // mostly links, probably navigation
		}
		score := c.density * logScale(c.textLen) * (1 - c.linkDens)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return best.node
}

// logScale returns a log2-ish scale factor for text length.
func logScale(n int) float64 {
	if n <= 0 {
		return 0
	}
	scale := 1.0
	for v := n; v > 100; v /= 2 {
		scale++
	}
	return scale
}

func isContentTag(a atom.Atom) bool {
	switch a {
	case atom.Article, atom.Main, atom.Section, atom.Div, atom.Td, atom.Body:
		return true
	}
	return false
}

var boilerplateTags = map[atom.Atom]bool{
	atom.Nav: true, atom.Footer: true, atom.Aside: true, atom.Header: true,
	atom.Form: true, atom.Script: true, atom.Style: true, atom.Noscript: true,
	atom.Iframe: true, atom.Button: true, atom.Select: true,
}

// boilerplateHints match whole words of a class or id, where words are
// separated by whitespace, '-' or '_'. "share-buttons" matches, "commentary"
// does not.
var boilerplateHints = map[string]bool{
	"nav": true, "navbar": true, "navigation": true, "menu": true,
	"footer": true, "sidebar": true, "comment": true, "comments": true,
	"share": true, "sharing": true, "social": true, "advert": true,
	"ad": true, "ads": true, "promo": true, "related": true,
	"breadcrumb": true, "breadcrumbs": true, "cookie": true,
	"cookies": true, "newsletter": true, "banner": true,
}

// isBoilerplate reports whether n looks like navigation or page chrome,
// by tag or by class/id hints.
func isBoilerplate(n *html.Node) bool {
	return boilerplateNode(n, true)
}

// boilerplateNode is isBoilerplate with the <header> tag rule optional.
// Inside an already chosen content root a header usually holds the
// article's own title and byline.
func boilerplateNode(n *html.Node, headers bool) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if n.DataAtom == atom.Header {
		return headers
	}
	if boilerplateTags[n.DataAtom] {
		return true
	}
	if getAttr(n, "role") == "navigation" {
		return true
	}
	marker := strings.ToLower(getAttr(n, "class") + " " + getAttr(n, "id"))
	words := strings.FieldsFunc(marker, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'
	})
	for _, w := range words {
		if boilerplateHints[w] {
			return true
		}
	}
	return false
}

// collectLinkText extracts text only from <a> elements.
func collectLinkText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node, bool)
	f = func(n *html.Node, inLink bool) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			inLink = true
		}
		if n.Type == html.TextNode && inLink {
			sb.WriteString(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c, inLink)
		}
	}
	f(n, false)
	return sb.String()
}

// findAllByTag finds all elements with a specific tag.
func findAllByTag(root *html.Node, tag atom.Atom) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == tag {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}
