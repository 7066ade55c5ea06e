// CLAUDE:SUMMARY Source feed parsing (RSS, Atom, JSON Feed via gofeed) into the items the pipeline rewrites.
// Package feed reads source feeds and writes the full-text RSS 2.0 output.
package feed

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// ErrNotFeed is returned when the document is not a recognisable feed.
var ErrNotFeed = errors.New("feed: not a feed")

// ErrNoItems is returned when a feed parses but carries no items.
var ErrNoItems = errors.New("feed: no items")

// Image is the channel logo.
type Image struct {
	URL   string
	Title string
	Link  string
}

// SourceItem is one item of the source feed.
type SourceItem struct {
	Permalink   string
	Title       string
	Description string
	Published   time.Time // zero when absent
	Author      string
	GUID        string
}

// Source is a parsed source feed.
type Source struct {
	Title       string
	Description string
	Link        string
	Image       *Image
	Items       []SourceItem
}

// Parse decodes an RSS, Atom or JSON feed.
func Parse(data []byte) (*Source, error) {
	f, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
			return nil, ErrNotFeed
		}
		return nil, fmt.Errorf("%w: %v", ErrNotFeed, err)
	}

	src := &Source{
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		Link:        strings.TrimSpace(f.Link),
		Items:       make([]SourceItem, 0, len(f.Items)),
	}
	if f.Image != nil && f.Image.URL != "" {
		src.Image = &Image{URL: f.Image.URL, Title: f.Image.Title, Link: src.Link}
	}

	for _, it := range f.Items {
		if it == nil {
			continue
		}
		item := SourceItem{
			Permalink:   permalink(it),
			Title:       strings.TrimSpace(it.Title),
			Description: it.Description,
			GUID:        strings.TrimSpace(it.GUID),
		}
		if item.Description == "" {
			item.Description = it.Content
		}
		if it.PublishedParsed != nil {
			item.Published = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			item.Published = *it.UpdatedParsed
		}
		if it.Author != nil {
			item.Author = strings.TrimSpace(it.Author.Name)
		} else if len(it.Authors) > 0 && it.Authors[0] != nil {
			item.Author = strings.TrimSpace(it.Authors[0].Name)
		}
		src.Items = append(src.Items, item)
	}
	if len(src.Items) == 0 {
		return src, ErrNoItems
	}
	return src, nil
}

func permalink(it *gofeed.Item) string {
	if l := strings.TrimSpace(it.Link); l != "" {
		return l
	}
	for _, l := range it.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	if g := strings.TrimSpace(it.GUID); strings.HasPrefix(g, "http://") || strings.HasPrefix(g, "https://") {
		return g
	}
	return ""
}
