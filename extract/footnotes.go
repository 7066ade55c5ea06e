package extract

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	nethtml "golang.org/x/net/html"
)

// Footnotes replaces every anchor below root with its text followed by a
// numbered reference, and appends an ordered list of the link targets.
// Anchors without an href or pointing at a fragment keep only their text.
func Footnotes(root *nethtml.Node) int {
	doc := goquery.NewDocumentFromNode(root)
	var notes []string
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		text := html.EscapeString(s.Text())
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			s.ReplaceWithHtml(text)
			return
		}
		notes = append(notes, href)
		s.ReplaceWithHtml(fmt.Sprintf("%s<sup>[%d]</sup>", text, len(notes)))
	})
	if len(notes) == 0 {
		return 0
	}
	var b strings.Builder
	b.WriteString(`<ol class="footnotes">`)
	for _, href := range notes {
		esc := html.EscapeString(href)
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, esc, esc)
	}
	b.WriteString(`</ol>`)
	doc.AppendHtml(b.String())
	return len(notes)
}
