package source

import (
	"bytes"
	"time"

	"github.com/mmcdole/gofeed"
)

// parseFeed turns an RSS/Atom document written by the news collector into
// article items with the same keys a JSON article carries.
func parseFeed(data []byte) ([]Item, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}

		id := entry.GUID
		if id == "" {
			id = link
		}

		item := Item{
			"id":          id,
			"title":       entry.Title,
			"description": entry.Description,
			"content":     entry.Content,
			"url":         link,
			"source":      parsed.Title,
		}
		if entry.Author != nil {
			item["author"] = entry.Author.Name
		}
		if len(entry.Categories) > 0 {
			cats := make([]any, len(entry.Categories))
			for i, c := range entry.Categories {
				cats[i] = c
			}
			item["categories"] = cats
		}
		switch {
		case entry.PublishedParsed != nil:
			item["published_at"] = entry.PublishedParsed.UTC().Format(time.RFC3339)
		case entry.UpdatedParsed != nil:
			item["published_at"] = entry.UpdatedParsed.UTC().Format(time.RFC3339)
		}

		items = append(items, item)
	}
	return items, nil
}
