package feed

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// Channel describes the output feed.
type Channel struct {
	Title       string
	Link        string
	Description string
	Image       *Image
	// Hubs are advertised as rel="hub" links; Self is the rel="self" link.
	Hubs []string
	Self string
	// XSL is emitted as an xml-stylesheet processing instruction.
	XSL string
}

// Item is one output item.
type Item struct {
	Title           string
	Link            string
	GUID            string
	GUIDIsPermaLink bool
	Description     string
	Published       time.Time
	Author          string
}

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	DC      string     `xml:"xmlns:dc,attr"`
	Atom    string     `xml:"xmlns:atom,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string     `xml:"title"`
	Link        string     `xml:"link"`
	Description string     `xml:"description"`
	AtomLinks   []atomLink `xml:"atom:link"`
	Image       *rssImage  `xml:"image,omitempty"`
	Generator   string     `xml:"generator"`
	Items       []rssItem  `xml:"item"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type rssImage struct {
	URL   string `xml:"url"`
	Title string `xml:"title"`
	Link  string `xml:"link"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type cdata struct {
	Text string `xml:",cdata"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        *rssGUID `xml:"guid,omitempty"`
	Description cdata    `xml:"description"`
	PubDate     string   `xml:"pubDate,omitempty"`
	Creator     string   `xml:"dc:creator,omitempty"`
}

// Write serialises ch and items as an RSS 2.0 document.
func Write(w io.Writer, ch Channel, items []Item) error {
	doc := rssDoc{
		Version: "2.0",
		DC:      "http://purl.org/dc/elements/1.1/",
		Atom:    "http://www.w3.org/2005/Atom",
		Channel: rssChannel{
			Title:       xmlSafe(ch.Title),
			Link:        xmlSafe(ch.Link),
			Description: xmlSafe(ch.Description),
			Generator:   "fulltext",
			Items:       make([]rssItem, 0, len(items)),
		},
	}
	for _, h := range ch.Hubs {
		doc.Channel.AtomLinks = append(doc.Channel.AtomLinks, atomLink{Rel: "hub", Href: h})
	}
	if ch.Self != "" {
		doc.Channel.AtomLinks = append(doc.Channel.AtomLinks, atomLink{Rel: "self", Href: ch.Self})
	}
	if ch.Image != nil && ch.Image.URL != "" {
		doc.Channel.Image = &rssImage{URL: xmlSafe(ch.Image.URL), Title: xmlSafe(ch.Image.Title), Link: xmlSafe(ch.Image.Link)}
	}
	for _, it := range items {
		ri := rssItem{
			Title:       xmlSafe(it.Title),
			Link:        xmlSafe(it.Link),
			Description: cdata{xmlSafe(it.Description)},
			Creator:     xmlSafe(it.Author),
		}
		if it.GUID != "" {
			ri.GUID = &rssGUID{IsPermaLink: it.GUIDIsPermaLink, Value: xmlSafe(it.GUID)}
		}
		if !it.Published.IsZero() {
			ri.PubDate = it.Published.UTC().Format(time.RFC1123Z)
		}
		doc.Channel.Items = append(doc.Channel.Items, ri)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("feed: write: %w", err)
	}
	if ch.XSL != "" {
		if _, err := fmt.Fprintf(w, "<?xml-stylesheet type=\"text/xsl\" href=\"%s\"?>\n", escape(ch.XSL)); err != nil {
			return fmt.Errorf("feed: write: %w", err)
		}
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("feed: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("feed: encode: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// xmlSafe drops every rune outside the XML 1.0 Char production. CDATA
// sections are written verbatim, so page text must be filtered first.
func xmlSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t', r == '\n', r == '\r',
			r >= 0x20 && r <= 0xD7FF,
			r >= 0xE000 && r <= 0xFFFD,
			r >= 0x10000 && r <= 0x10FFFF:
			return r
		}
		return -1
	}, s)
}

func escape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
