package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUndecodable is returned when a document is neither JSON nor, for news,
// an RSS/Atom feed.
var ErrUndecodable = errors.New("undecodable document")

// Shape describes how the item list was located inside a document.
type Shape int

const (
	ShapeUnrecognized Shape = iota
	ShapeEmpty
	ShapeArray
	ShapeKeyed
	ShapeData
	ShapeSingle
	ShapeFeed
)

func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeArray:
		return "array"
	case ShapeKeyed:
		return "keyed"
	case ShapeData:
		return "data"
	case ShapeSingle:
		return "single"
	case ShapeFeed:
		return "feed"
	}
	return "unrecognized"
}

// Extraction is the result of locating records in one document. Items is
// never nil.
type Extraction struct {
	Shape Shape
	Keys  []string
	Items []Item
}

// listKeys are the top-level keys each collector writes its records under.
// dexscreener documents carry several lists at once and are unioned; every
// other source takes the first non-empty key.
var listKeys = map[SourceType][]string{
	SourceReddit:      {"posts"},
	SourceTwitter:     {"tweets"},
	SourceNews:        {"articles"},
	SourceCrypto:      {"gainers", "tokens"},
	SourceDexPaprika:  {"token_data"},
	SourceDexScreener: {"token_pairs", "pairs", "token_profiles", "latest_boosted_tokens", "top_boosted_tokens"},
}

// identityKeys mark a bare object as a single record of the source.
var identityKeys = map[SourceType][]string{
	SourceReddit:      {"id", "post_id"},
	SourceTwitter:     {"id", "tweet_id", "id_str"},
	SourceNews:        {"url", "link", "id"},
	SourceCrypto:      {"symbol"},
	SourceDexPaprika:  {"id", "token_id"},
	SourceDexScreener: {"pairAddress", "pair_address", "pair_id", "tokenAddress"},
}

// ListKeys returns the known list keys for src.
func ListKeys(src SourceType) []string {
	return append([]string(nil), listKeys[src]...)
}

// Extract decodes one document and locates its records.
func Extract(src SourceType, data []byte) (Extraction, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Extraction{Shape: ShapeEmpty, Items: []Item{}}, nil
	}

	if src == SourceNews && trimmed[0] == '<' {
		items, err := parseFeed(trimmed)
		if err != nil {
			return Extraction{Items: []Item{}}, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		return Extraction{Shape: ShapeFeed, Items: items}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Extraction{Items: []Item{}}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return ExtractValue(src, v), nil
}

// ExtractValue locates records in an already-decoded document. It never
// fails; a document it cannot place yields ShapeUnrecognized and no items.
func ExtractValue(src SourceType, v any) Extraction {
	switch doc := v.(type) {
	case []any:
		return Extraction{Shape: ShapeArray, Items: objects(doc)}
	case map[string]any:
		return extractObject(src, doc)
	}
	return Extraction{Shape: ShapeUnrecognized, Items: []Item{}}
}

func extractObject(src SourceType, doc map[string]any) Extraction {
	if len(doc) == 0 {
		return Extraction{Shape: ShapeEmpty, Items: []Item{}}
	}

	var (
		items []Item
		keys  []string
	)
	for _, key := range listKeys[src] {
		list, ok := doc[key].([]any)
		if !ok || len(list) == 0 {
			continue
		}
		found := objects(list)
		if len(found) == 0 {
			continue
		}
		items = append(items, found...)
		keys = append(keys, key)
		if src != SourceDexScreener {
			break
		}
	}
	if len(items) > 0 {
		return Extraction{Shape: ShapeKeyed, Keys: keys, Items: items}
	}

	if list, ok := doc["data"].([]any); ok {
		if found := objects(list); len(found) > 0 {
			return Extraction{Shape: ShapeData, Keys: []string{"data"}, Items: found}
		}
	}

	for _, key := range identityKeys[src] {
		if val, ok := doc[key]; ok && val != nil {
			if _, nested := val.(map[string]any); nested {
				continue
			}
			if _, nested := val.([]any); nested {
				continue
			}
			return Extraction{Shape: ShapeSingle, Items: []Item{doc}}
		}
	}

	// A collector run that found nothing still writes its list key.
	var present []string
	for _, key := range listKeys[src] {
		if _, ok := doc[key].([]any); ok {
			present = append(present, key)
		}
	}
	if _, ok := doc["data"].([]any); ok {
		present = append(present, "data")
	}
	if len(present) > 0 {
		return Extraction{Shape: ShapeEmpty, Keys: present, Items: []Item{}}
	}

	return Extraction{Shape: ShapeUnrecognized, Items: []Item{}}
}

// objects keeps the object elements of list.
func objects(list []any) []Item {
	out := make([]Item, 0, len(list))
	for _, el := range list {
		if m, ok := el.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
