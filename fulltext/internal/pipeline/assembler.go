// CLAUDE:SUMMARY FeedAssembler: link-mode post-processing, tier wrapping and failure policy for output items.
package pipeline

import (
	"net/url"
	"regexp"

	"github.com/hazyhaar/fulltext/fulltext/internal/feed"
)

// Tier holds the presentation strings of one access tier.
type Tier struct {
	Prepend      string
	Append       string
	ErrorMessage string
}

// Assembler builds output items.
type Assembler struct {
	Tier    Tier
	Links   LinkMode
	Exclude bool
	// PubSubRedirect, when set, wraps item links and guids as
	// PubSubRedirect + url.QueryEscape(permalink).
	PubSubRedirect string
}

var (
	emptyParagraph = regexp.MustCompile(`(?i)<p>[\s\x{00A0}]*</p>`)
	anchorTag      = regexp.MustCompile(`(?i)</?a(\s[^>]*)?>`)
)

// Body renders the item body for out. ok is false when the item must be
// omitted. description is the source item's own description, used after
// the tier error message when extraction failed.
func (a *Assembler) Body(out Outcome, description string) (body string, ok bool) {
	if out.Failed() {
		if a.Exclude {
			return "", false
		}
		return a.Tier.ErrorMessage + a.stripLinks(description), true
	}
	body = a.stripLinks(emptyParagraph.ReplaceAllString(out.HTML, ""))
	return a.Tier.Prepend + body + a.Tier.Append, true
}

// stripLinks removes anchor tags under LinksRemove. The text they wrap
// stays.
func (a *Assembler) stripLinks(s string) string {
	if a.Links != LinksRemove {
		return s
	}
	return anchorTag.ReplaceAllString(s, "")
}

// Item assembles the output item for src. permalink is the sanitised
// permalink, or "" when it failed validation; the source permalink is used
// for the link then.
func (a *Assembler) Item(src feed.SourceItem, permalink string, out Outcome) (feed.Item, bool) {
	body, ok := a.Body(out, src.Description)
	if !ok {
		return feed.Item{}, false
	}
	link := permalink
	if link == "" {
		link = src.Permalink
	}
	item := feed.Item{
		Title:           src.Title,
		Link:            link,
		GUID:            src.Permalink,
		GUIDIsPermaLink: true,
		Description:     body,
		Author:          src.Author,
	}
	if src.Published.Unix() > 0 {
		item.Published = src.Published
	}
	if a.PubSubRedirect != "" {
		item.Link = a.PubSubRedirect + url.QueryEscape(link)
		item.GUID = a.PubSubRedirect + url.QueryEscape(src.Permalink)
		item.GUIDIsPermaLink = false
	}
	return item, true
}
