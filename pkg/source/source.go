package source

import (
	"fmt"
	"strings"
)

// SourceType identifies which collector produced a document.
type SourceType string

const (
	SourceTwitter     SourceType = "twitter"
	SourceReddit      SourceType = "reddit"
	SourceNews        SourceType = "news"
	SourceCrypto      SourceType = "crypto"
	SourceDexScreener SourceType = "dexscreener"
	SourceDexPaprika  SourceType = "dexpaprika"
)

// Item is one raw record as decoded from a collector document.
type Item = map[string]any

// AllSourceTypes returns all known source types.
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceTwitter,
		SourceReddit,
		SourceNews,
		SourceCrypto,
		SourceDexScreener,
		SourceDexPaprika,
	}
}

// ParseSourceType resolves a source name, case-insensitively.
func ParseSourceType(name string) (SourceType, error) {
	n := SourceType(strings.ToLower(strings.TrimSpace(name)))
	for _, st := range AllSourceTypes() {
		if st == n {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", name)
}

// DataPrefix is the per-source blob prefix, e.g. "reddit_data/".
func (s SourceType) DataPrefix() string {
	return string(s) + "_data/"
}

// LatestPath is the "most recent" pointer blob for the source.
func (s SourceType) LatestPath() string {
	return fmt.Sprintf("%s_data/%s_latest.json", s, s)
}

// ConsolidatedPath is the single aggregated blob for the source.
func (s SourceType) ConsolidatedPath() string {
	return fmt.Sprintf("consolidated/%s_consolidated.json", s)
}
