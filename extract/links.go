// CLAUDE:SUMMARY LinkRewriter: absolutises anchor href and image src attributes against the page's effective URL.
package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var rewriteAttrs = map[atom.Atom]string{
	atom.A:   "href",
	atom.Img: "src",
}

// MakeAbsolute rewrites the href of every anchor and the src of every image
// in the subtree rooted at root (root included) to an absolute URL against
// base. Values already carrying an http or https scheme are left alone.
// Other values are trimmed, have inner spaces escaped and are resolved;
// values that fail to resolve are left unmodified. Returns the number of
// attributes rewritten.
func MakeAbsolute(base *url.URL, root *html.Node) int {
	if base == nil || root == nil {
		return 0
	}
	rewritten := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if key, ok := rewriteAttrs[n.DataAtom]; ok && hasAttr(n, key) {
				if abs, changed := absolutize(base, getAttr(n, key)); changed {
					setAttr(n, key, abs)
					rewritten++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return rewritten
}

func absolutize(base *url.URL, raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if hasHTTPScheme(v) {
		return raw, false
	}
	ref, err := url.Parse(strings.ReplaceAll(v, " ", "%20"))
	if err != nil {
		return raw, false
	}
	abs := base.ResolveReference(ref).String()
	return abs, abs != raw
}

func hasHTTPScheme(v string) bool {
	lower := strings.ToLower(v)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
