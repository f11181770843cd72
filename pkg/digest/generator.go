package digest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/degendigest/internal/store"
	"github.com/elonfeng/degendigest/pkg/source"
	"go.uber.org/zap"
)

// Section headings, in document order.
const (
	HeadingSummary = "Executive Summary"
	HeadingTwitter = "Twitter"
	HeadingReddit  = "Reddit"
	HeadingNews    = "News"
	HeadingGainers = "Crypto Gainers"
	HeadingPairs   = "DEX Pairs"
)

// candidates is how many recent rows per table are considered for ranking.
const candidates = 500

// Source is the read side of the store the generator ranks.
type Source interface {
	ListTweetsIn(ctx context.Context, tr store.TimeRange, sort string, limit int) ([]store.TweetRow, error)
	ListRedditPostsIn(ctx context.Context, tr store.TimeRange, sort string, limit int) ([]store.RedditPostRow, error)
	ListArticlesIn(ctx context.Context, tr store.TimeRange, limit int) ([]store.ArticleRow, error)
	ListCryptoTokens(ctx context.Context, limit int) ([]store.CryptoTokenRow, error)
	ListDexPairs(ctx context.Context, src source.SourceType, limit int) ([]store.DexPairRow, error)
}

// Generator builds daily digests from stored rows.
type Generator struct {
	src        Source
	files      *Store
	perSection int
	window     time.Duration
	now        func() time.Time
	log        *zap.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithItemsPerSection caps each section's list.
func WithItemsPerSection(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.perSection = n
		}
	}
}

// WithWindow sets how far back social and news items are considered.
// Zero disables the filter.
func WithWindow(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.window = d }
}

// WithGeneratorClock overrides the clock.
func WithGeneratorClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a Generator reading from src and writing to files.
func NewGenerator(src Source, files *Store, log *zap.Logger, opts ...GeneratorOption) *Generator {
	g := &Generator{
		src:        src,
		files:      files,
		perSection: 5,
		window:     48 * time.Hour,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log.Named("digest"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate builds the digest for date and writes it.
func (g *Generator) Generate(ctx context.Context, date time.Time) (*Digest, error) {
	content, err := g.Build(ctx, date)
	if err != nil {
		return nil, err
	}
	d, err := g.files.Write(date.Format(DateLayout), content)
	if err != nil {
		return nil, err
	}
	g.log.Info("digest written", zap.String("date", d.Date), zap.Int("bytes", len(content)))
	return d, nil
}

type snapshot struct {
	tweets   []store.TweetRow
	posts    []store.RedditPostRow
	articles []store.ArticleRow
	tokens   []store.CryptoTokenRow
	pairs    []store.DexPairRow
}

// Build renders the digest markdown for date without writing it.
func (g *Generator) Build(ctx context.Context, date time.Time) (string, error) {
	snap, err := g.load(ctx, date)
	if err != nil {
		return "", err
	}

	n := g.perSection
	tweets := rankTweets(snap.tweets, n)
	posts := rankRedditPosts(snap.posts, n)
	articles := dedupeHeadlines(snap.articles, n)
	gainers := rankGainers(snap.tokens, n)
	pairs := rankPairs(snap.pairs, n)

	var b strings.Builder
	fmt.Fprintf(&b, "# Degen Digest - %s\n\n", date.Format(DateLayout))
	fmt.Fprintf(&b, "_Generated %s from %d tweets, %d reddit posts, %d articles, %d tokens and %d pairs._\n\n",
		g.now().Format("2006-01-02 15:04 MST"),
		len(snap.tweets), len(snap.posts), len(snap.articles), len(snap.tokens), len(snap.pairs))

	section(&b, HeadingSummary, g.highlights(snap, tweets, posts, gainers, pairs))
	section(&b, HeadingTwitter, mapLines(tweets, tweetLine))
	section(&b, HeadingReddit, mapLines(posts, redditLine))
	section(&b, HeadingNews, mapLines(articles, articleLine))
	section(&b, HeadingGainers, mapLines(gainers, gainerLine))
	section(&b, HeadingPairs, mapLines(pairs, pairLine))
	return b.String(), nil
}

// load reads the rows a digest for date is built from. Social and news rows
// are bounded in the query to the window ending with date's UTC day.
func (g *Generator) load(ctx context.Context, date time.Time) (snapshot, error) {
	var (
		snap snapshot
		tr   store.TimeRange
		err  error
	)
	if g.window > 0 {
		tr.End = date.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		tr.Start = tr.End.Add(-g.window)
	}
	if snap.tweets, err = g.src.ListTweetsIn(ctx, tr, "recent", candidates); err != nil {
		return snap, fmt.Errorf("load tweets: %w", err)
	}
	if snap.posts, err = g.src.ListRedditPostsIn(ctx, tr, "recent", candidates); err != nil {
		return snap, fmt.Errorf("load reddit posts: %w", err)
	}
	if snap.articles, err = g.src.ListArticlesIn(ctx, tr, candidates); err != nil {
		return snap, fmt.Errorf("load articles: %w", err)
	}
	if snap.tokens, err = g.src.ListCryptoTokens(ctx, candidates); err != nil {
		return snap, fmt.Errorf("load crypto tokens: %w", err)
	}
	if snap.pairs, err = g.src.ListDexPairs(ctx, source.SourceDexScreener, candidates); err != nil {
		return snap, fmt.Errorf("load dex pairs: %w", err)
	}
	return snap, nil
}

func (g *Generator) highlights(snap snapshot, tweets []store.TweetRow, posts []store.RedditPostRow,
	gainers []store.CryptoTokenRow, pairs []store.DexPairRow) []string {

	symbols := make(map[string]float64)
	for _, t := range snap.tokens {
		symbols[t.Symbol] = t.PriceChange24h
	}
	for _, p := range snap.pairs {
		sym := strings.ToUpper(strings.TrimSpace(p.BaseTokenSymbol))
		if _, ok := symbols[sym]; sym != "" && !ok {
			symbols[sym] = p.PriceChange24h
		}
	}
	var mentions []mention
	for _, t := range snap.tweets {
		mentions = append(mentions, mention{source: "twitter", text: t.Text})
	}
	for _, p := range snap.posts {
		mentions = append(mentions, mention{source: "reddit", text: p.Title + " " + p.Content})
	}
	for _, a := range snap.articles {
		mentions = append(mentions, mention{source: "news", text: a.Title})
	}

	var lines []string
	if hot := hotTickers(symbols, mentions, g.perSection); len(hot) > 0 {
		parts := make([]string, len(hot))
		for i, h := range hot {
			parts[i] = fmt.Sprintf("$%s (%d mentions on %s)", h.Symbol, h.Mentions, strings.Join(h.Sources, ", "))
		}
		lines = append(lines, "**Hot tickers:** "+strings.Join(parts, "; "))
	}
	if len(gainers) > 0 {
		t := gainers[0]
		lines = append(lines, fmt.Sprintf("**Top gainer:** %s %s (%s)", t.Symbol, pct(t.PriceChange24h), usd(t.PriceUSD)))
	}
	if len(pairs) > 0 {
		p := pairs[0]
		lines = append(lines, fmt.Sprintf("**Hottest pair:** %s on %s (%s 24h volume)", pairName(p), orDash(p.DexID), usd(p.Volume24h)))
	}
	if len(tweets) > 0 {
		t := tweets[0]
		lines = append(lines, fmt.Sprintf("**Top tweet:** @%s with %d interactions", orDash(t.Author), tweetEngagement(t)))
	}
	if len(posts) > 0 {
		p := posts[0]
		lines = append(lines, fmt.Sprintf("**Top reddit post:** %s (%d points)", oneLine(p.Title, 80), p.Score))
	}
	return lines
}

func section(b *strings.Builder, heading string, lines []string) {
	fmt.Fprintf(b, "## %s\n\n", heading)
	if len(lines) == 0 {
		b.WriteString("_Nothing new._\n\n")
		return
	}
	for _, l := range lines {
		fmt.Fprintf(b, "- %s\n", l)
	}
	b.WriteString("\n")
}

func tweetLine(t store.TweetRow) string {
	text := oneLine(t.Text, 200)
	if t.URL != "" {
		text = link(text, t.URL)
	}
	return fmt.Sprintf("@%s: %s (%d likes, %d retweets, %d replies)",
		orDash(t.Author), text, t.LikeCount, t.RetweetCount, t.ReplyCount)
}

func redditLine(p store.RedditPostRow) string {
	title := link(oneLine(p.Title, 150), p.URL)
	return fmt.Sprintf("%s in r/%s (%d points, %d comments)", title, orDash(p.Subreddit), p.Score, p.NumComments)
}

func articleLine(a store.ArticleRow) string {
	title := link(oneLine(a.Title, 150), a.URL)
	if a.Source != "" {
		return fmt.Sprintf("%s (%s)", title, a.Source)
	}
	return title
}

func gainerLine(t store.CryptoTokenRow) string {
	name := t.Symbol
	if t.Name != "" {
		name = fmt.Sprintf("%s (%s)", t.Symbol, t.Name)
	}
	return fmt.Sprintf("%s %s at %s, market cap %s", name, pct(t.PriceChange24h), usd(t.PriceUSD), usd(t.MarketCap))
}

func pairLine(p store.DexPairRow) string {
	name := link(pairName(p), p.URL)
	return fmt.Sprintf("%s on %s/%s: %s volume, %s liquidity, %s",
		name, orDash(p.ChainID), orDash(p.DexID), usd(p.Volume24h), usd(p.LiquidityUSD), pct(p.PriceChange24h))
}

func pairName(p store.DexPairRow) string {
	base := orDash(p.BaseTokenSymbol)
	if p.QuoteTokenSymbol == "" {
		return base
	}
	return base + "/" + p.QuoteTokenSymbol
}

func link(text, url string) string {
	if url == "" {
		return text
	}
	return fmt.Sprintf("[%s](%s)", strings.NewReplacer("[", "(", "]", ")").Replace(text), url)
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func pct(v float64) string {
	return fmt.Sprintf("%+.1f%%", v)
}

func usd(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	case v >= 1:
		return fmt.Sprintf("$%.2f", v)
	default:
		return "$" + strconv.FormatFloat(v, 'f', -1, 64)
	}
}

func mapLines[T any](rows []T, f func(T) string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = f(r)
	}
	return out
}
