// CLAUDE:SUMMARY Fragment cleanup: bluemonday sanitising for pattern matches, goquery removal of scripts and boilerplate.
package extract

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var sanitizer = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(false)
	p.AllowAttrs("class", "id").Globally()
	return p
}()

// Prepare strips scripts, event handlers and unsafe attributes from n and
// returns the sanitised copy as a new detached node. n is not modified.
func Prepare(n *html.Node) (*html.Node, error) {
	clean := sanitizer.Sanitize(OuterHTML(n))
	frag, err := parseFragment(clean)
	if err != nil {
		return nil, err
	}
	return unwrapSingle(frag), nil
}

const alwaysRemove = "script, style, noscript, iframe, object, embed, form, button, input, select, textarea, link, meta"

// Clean removes scripts and boilerplate descendants of root in place.
// root itself is never removed, and neither are <header> elements below it.
func Clean(root *html.Node) {
	doc := goquery.NewDocumentFromNode(root)
	doc.Find(alwaysRemove).Remove()
	doc.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return boilerplateNode(s.Get(0), false)
	}).Remove()
}
