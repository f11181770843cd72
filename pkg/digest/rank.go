package digest

import (
	"sort"
	"strings"
	"unicode"

	"github.com/elonfeng/degendigest/internal/store"
)

// Metric names a raw value NormalizeScore understands.
type Metric string

const (
	MetricEngagement  Metric = "engagement"   // tweet likes + retweets + replies
	MetricRedditScore Metric = "reddit_score" // upvotes
	MetricPriceChange Metric = "price_change" // 24h percent
	MetricVolume      Metric = "volume"       // 24h USD
	MetricMentions    Metric = "mentions"     // items mentioning a ticker
)

// Different metrics live on very different scales; each threshold is the
// value considered "high" for a degen feed.
var thresholds = map[Metric]float64{
	MetricEngagement:  1000,
	MetricRedditScore: 1000,
	MetricPriceChange: 100,
	MetricVolume:      1_000_000,
	MetricMentions:    10,
}

// NormalizeScore maps a raw metric onto 0-100. Negative values score 0.
func NormalizeScore(value float64, metric Metric) float64 {
	threshold, ok := thresholds[metric]
	if !ok || threshold == 0 || value <= 0 {
		return 0
	}
	ratio := value / threshold
	if ratio > 1 {
		return 100
	}
	return ratio * 100
}

func tweetEngagement(t store.TweetRow) int64 {
	return t.LikeCount + t.RetweetCount + t.ReplyCount
}

func rankTweets(rows []store.TweetRow, n int) []store.TweetRow {
	sort.SliceStable(rows, func(i, j int) bool {
		return tweetEngagement(rows[i]) > tweetEngagement(rows[j])
	})
	return head(rows, n)
}

func rankRedditPosts(rows []store.RedditPostRow, n int) []store.RedditPostRow {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].NumComments > rows[j].NumComments
	})
	return head(rows, n)
}

// rankGainers keeps tokens that actually gained, best first.
func rankGainers(rows []store.CryptoTokenRow, n int) []store.CryptoTokenRow {
	out := rows[:0:0]
	for _, r := range rows {
		if r.PriceChange24h > 0 {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriceChange24h > out[j].PriceChange24h })
	return head(out, n)
}

// pairHeat weights volume over momentum: a pair pumping on no volume is noise.
func pairHeat(p store.DexPairRow) float64 {
	return NormalizeScore(p.Volume24h, MetricVolume)*0.7 +
		NormalizeScore(p.PriceChange24h, MetricPriceChange)*0.3
}

func rankPairs(rows []store.DexPairRow, n int) []store.DexPairRow {
	sort.SliceStable(rows, func(i, j int) bool { return pairHeat(rows[i]) > pairHeat(rows[j]) })
	return head(rows, n)
}

func head[T any](rows []T, n int) []T {
	if n > 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}

// HotTicker is a symbol talked about across feeds.
type HotTicker struct {
	Symbol   string
	Sources  []string
	Mentions int
	Change   float64
	Score    float64
}

// mention is one piece of text from a social or news feed.
type mention struct {
	source string
	text   string
}

// hotTickers scores every known symbol by how many feeds mention it, how
// often, and how hard it is moving.
func hotTickers(symbols map[string]float64, mentions []mention, n int) []HotTicker {
	type tally struct {
		sources map[string]bool
		count   int
	}
	tallies := make(map[string]*tally)
	for _, m := range mentions {
		seen := make(map[string]bool)
		for _, tok := range significantTokens(m.text) {
			sym := strings.ToUpper(tok)
			if _, ok := symbols[sym]; !ok || seen[sym] {
				continue
			}
			seen[sym] = true
			t := tallies[sym]
			if t == nil {
				t = &tally{sources: make(map[string]bool)}
				tallies[sym] = t
			}
			t.sources[m.source] = true
			t.count++
		}
	}

	var out []HotTicker
	for sym, t := range tallies {
		// Cross-source score: every feed is worth 20, capped at 100.
		cross := float64(len(t.sources)) * 20
		if cross > 100 {
			cross = 100
		}
		change := symbols[sym]
		srcs := make([]string, 0, len(t.sources))
		for s := range t.sources {
			srcs = append(srcs, s)
		}
		sort.Strings(srcs)
		out = append(out, HotTicker{
			Symbol:   sym,
			Sources:  srcs,
			Mentions: t.count,
			Change:   change,
			Score: cross*0.5 +
				NormalizeScore(float64(t.count), MetricMentions)*0.3 +
				NormalizeScore(change, MetricPriceChange)*0.2,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Symbol < out[j].Symbol
	})
	return head(out, n)
}

// Common words that collide with ticker symbols.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"have": true, "has": true, "had": true, "do": true, "will": true,
	"this": true, "that": true, "it": true, "its": true, "i": true,
	"we": true, "you": true, "my": true, "your": true, "how": true,
	"what": true, "when": true, "why": true, "not": true, "no": true,
	"new": true, "just": true, "up": true, "out": true, "if": true,
	"so": true, "can": true, "all": true, "more": true, "now": true,
	"one": true, "me": true, "go": true, "usd": true,
}

// significantTokens splits text into lowercase words, dropping stopwords and
// single letters. "$SOL" yields "sol".
func significantTokens(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var tokens []string
	for _, w := range words {
		if len(w) >= 2 && !stopwords[w] {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// dedupeHeadlines drops articles whose title is a near-duplicate of an
// earlier one, so one story syndicated by several outlets is listed once.
func dedupeHeadlines(rows []store.ArticleRow, n int) []store.ArticleRow {
	var (
		out  []store.ArticleRow
		kept [][]string
	)
	for _, r := range rows {
		toks := significantTokens(r.Title)
		dup := false
		for _, k := range kept {
			if jaccardSimilarity(toks, k) >= 0.5 {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		out = append(out, r)
		kept = append(kept, toks)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// jaccardSimilarity returns the Jaccard index of two token sets.
func jaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}
