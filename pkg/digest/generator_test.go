package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elonfeng/degendigest/internal/store"
	"github.com/elonfeng/degendigest/pkg/mapping"
	"github.com/elonfeng/degendigest/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var genNow = time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC)

type fakeSource struct {
	tweets   []store.TweetRow
	posts    []store.RedditPostRow
	articles []store.ArticleRow
	tokens   []store.CryptoTokenRow
	pairs    []store.DexPairRow
	err      error
	ranges   []store.TimeRange
}

func within(tr store.TimeRange, t time.Time) bool {
	return (tr.Start.IsZero() || !t.Before(tr.Start)) && (tr.End.IsZero() || t.Before(tr.End))
}

func (f *fakeSource) ListTweetsIn(_ context.Context, tr store.TimeRange, _ string, _ int) ([]store.TweetRow, error) {
	f.ranges = append(f.ranges, tr)
	var out []store.TweetRow
	for _, r := range f.tweets {
		if within(tr, r.CreatedAt) {
			out = append(out, r)
		}
	}
	return out, f.err
}

func (f *fakeSource) ListRedditPostsIn(_ context.Context, tr store.TimeRange, _ string, _ int) ([]store.RedditPostRow, error) {
	f.ranges = append(f.ranges, tr)
	var out []store.RedditPostRow
	for _, r := range f.posts {
		if within(tr, r.CreatedAt) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) ListArticlesIn(_ context.Context, tr store.TimeRange, _ int) ([]store.ArticleRow, error) {
	f.ranges = append(f.ranges, tr)
	var out []store.ArticleRow
	for _, r := range f.articles {
		if within(tr, r.PublishedAt) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) ListCryptoTokens(context.Context, int) ([]store.CryptoTokenRow, error) {
	return f.tokens, nil
}

func (f *fakeSource) ListDexPairs(_ context.Context, src source.SourceType, _ int) ([]store.DexPairRow, error) {
	if src != source.SourceDexScreener {
		return nil, errors.New("unexpected source")
	}
	return f.pairs, nil
}

func tweet(id, author, text string, likes int64, at time.Time) store.TweetRow {
	return store.TweetRow{Tweet: mapping.Tweet{TweetID: id, Author: author, Text: text, LikeCount: likes, CreatedAt: at}}
}

func populated() *fakeSource {
	hour := genNow.Add(-time.Hour)
	return &fakeSource{
		tweets: []store.TweetRow{
			tweet("1", "alice", "gm, $SOL looking strong", 10, hour),
			tweet("2", "bob", "PEPE to the moon", 900, hour),
			tweet("3", "carol", "ancient SOL take", 99999, genNow.Add(-10*24*time.Hour)),
		},
		posts: []store.RedditPostRow{
			{RedditPost: mapping.RedditPost{PostID: "p1", Title: "Why SOL keeps pumping", Subreddit: "solana", Score: 50, CreatedAt: hour}},
			{RedditPost: mapping.RedditPost{PostID: "p2", Title: "Daily thread", Subreddit: "CryptoCurrency", Score: 500, NumComments: 80, CreatedAt: hour}},
		},
		articles: []store.ArticleRow{
			{Article: mapping.Article{ArticleID: "a1", Title: "SOL ETF approved by regulators", Source: "CoinDesk", URL: "https://x/a1", PublishedAt: hour}},
			{Article: mapping.Article{ArticleID: "a2", Title: "Regulators approved SOL ETF", Source: "Decrypt", URL: "https://x/a2", PublishedAt: hour}},
			{Article: mapping.Article{ArticleID: "a3", Title: "Bitcoin hashrate record", Source: "The Block", PublishedAt: hour}},
		},
		tokens: []store.CryptoTokenRow{
			{CryptoToken: mapping.CryptoToken{Symbol: "SOL", Name: "Solana", PriceUSD: 170, PriceChange24h: 12}},
			{CryptoToken: mapping.CryptoToken{Symbol: "PEPE", Name: "Pepe", PriceUSD: 0.0000123, PriceChange24h: 45}},
			{CryptoToken: mapping.CryptoToken{Symbol: "DOGE", PriceUSD: 0.2, PriceChange24h: -3}},
		},
		pairs: []store.DexPairRow{
			{DexPair: mapping.DexPair{PairID: "0x1", BaseTokenSymbol: "WIF", QuoteTokenSymbol: "SOL", DexID: "raydium", ChainID: "solana", Volume24h: 2_500_000, PriceChange24h: 5}},
			{DexPair: mapping.DexPair{PairID: "0x2", BaseTokenSymbol: "TINY", QuoteTokenSymbol: "WETH", DexID: "uniswap", ChainID: "ethereum", Volume24h: 100, PriceChange24h: 900}},
		},
	}
}

func newGenerator(t *testing.T, src Source) (*Generator, *Store) {
	t.Helper()
	files := NewStore(t.TempDir())
	g := NewGenerator(src, files, zap.NewNop(),
		WithItemsPerSection(3),
		WithGeneratorClock(func() time.Time { return genNow }))
	return g, files
}

func TestGenerateStructure(t *testing.T) {
	g, files := newGenerator(t, populated())

	d, err := g.Generate(context.Background(), genNow)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02", d.Date)

	cur, err := files.Current()
	require.NoError(t, err)
	assert.Equal(t, d.Content, cur.Content)

	sum := Summarize(d.Content)
	assert.Equal(t, "Degen Digest - 2025-06-02", sum.Title)
	var headings []string
	for _, s := range sum.Sections {
		headings = append(headings, s.Heading)
	}
	assert.Equal(t, []string{HeadingSummary, HeadingTwitter, HeadingReddit, HeadingNews, HeadingGainers, HeadingPairs}, headings)

	tw := sum.Section(HeadingTwitter).Bullets
	require.Len(t, tw, 2, "tweets outside the window are dropped")
	assert.Contains(t, tw[0], "@bob")

	rd := sum.Section(HeadingReddit).Bullets
	require.Len(t, rd, 2)
	assert.Contains(t, rd[0], "Daily thread")

	news := sum.Section(HeadingNews).Bullets
	require.Len(t, news, 2, "syndicated headline collapses")
	assert.Contains(t, news[0], "CoinDesk")

	gainers := sum.Section(HeadingGainers).Bullets
	require.Len(t, gainers, 2, "losers are not gainers")
	assert.Contains(t, gainers[0], "PEPE (Pepe) +45.0%")

	pairs := sum.Section(HeadingPairs).Bullets
	require.Len(t, pairs, 2)
	assert.Contains(t, pairs[0], "WIF/SOL", "volume outweighs a pump on no liquidity")
	assert.Contains(t, pairs[0], "$2.50M volume")
}

func TestGenerateExecutiveSummary(t *testing.T) {
	g, _ := newGenerator(t, populated())

	content, err := g.Build(context.Background(), genNow)
	require.NoError(t, err)

	exec := Summarize(content).Section(HeadingSummary)
	require.NotNil(t, exec)
	require.NotEmpty(t, exec.Bullets)
	assert.Contains(t, exec.Bullets[0], "Hot tickers: $SOL (4 mentions on news, reddit, twitter)")
	assert.Contains(t, exec.Bullets[0], "$PEPE (1 mentions on twitter)")
	assert.Contains(t, content, "**Top gainer:** PEPE +45.0%")
	assert.Contains(t, content, "**Hottest pair:** WIF/SOL on raydium")
}

func TestGenerateQueriesTheDateWindow(t *testing.T) {
	src := populated()
	g, _ := newGenerator(t, src)

	_, err := g.Build(context.Background(), time.Date(2025, 5, 10, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	want := store.TimeRange{
		Start: time.Date(2025, 5, 9, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 5, 11, 0, 0, 0, 0, time.UTC),
	}
	require.Len(t, src.ranges, 3)
	for _, tr := range src.ranges {
		assert.Equal(t, want, tr)
	}
}

func TestGenerateEmpty(t *testing.T) {
	g, _ := newGenerator(t, &fakeSource{})

	content, err := g.Build(context.Background(), genNow)
	require.NoError(t, err)

	sum := Summarize(content)
	require.Len(t, sum.Sections, 6)
	for _, s := range sum.Sections {
		assert.Empty(t, s.Bullets, s.Heading)
	}
	assert.Contains(t, content, "_Nothing new._")
}

func TestGenerateStoreError(t *testing.T) {
	g, files := newGenerator(t, &fakeSource{err: errors.New("db down")})

	_, err := g.Generate(context.Background(), genNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load tweets")

	entries, err := files.List()
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing written on failure")
}

func TestNormalizeScore(t *testing.T) {
	assert.Equal(t, 50.0, NormalizeScore(500, MetricEngagement))
	assert.Equal(t, 100.0, NormalizeScore(5_000_000, MetricVolume))
	assert.Zero(t, NormalizeScore(-20, MetricPriceChange))
	assert.Zero(t, NormalizeScore(10, "unknown"))
}

func TestSignificantTokens(t *testing.T) {
	assert.Equal(t, []string{"sol", "pumping", "pepe"}, significantTokens("$SOL is pumping and $PEPE? a"))
	assert.Equal(t, 1.0, jaccardSimilarity([]string{"sol", "etf"}, []string{"etf", "sol"}))
	assert.Zero(t, jaccardSimilarity(nil, []string{"x"}))
}
