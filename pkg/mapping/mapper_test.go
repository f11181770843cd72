package mapping

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/elonfeng/degendigest/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func newTestMapper() *Mapper {
	return New(zap.NewNop()).WithClock(func() time.Time { return fixedNow })
}

func decode(t *testing.T, doc string) source.Item {
	t.Helper()
	var item source.Item
	require.NoError(t, json.Unmarshal([]byte(doc), &item))
	return item
}

func TestDexScreenerPriceChangeShapes(t *testing.T) {
	m := newTestMapper()
	docs := []string{
		`{"pairAddress": "0xabc", "priceChange": {"h24": 8.5}}`,
		`{"pairAddress": "0xabc", "priceChange24h": 8.5}`,
		`{"pairAddress": "0xabc", "priceChange": "8.5"}`,
		`{"pairAddress": "0xabc", "priceChange": {"h1": 1}, "priceChange24h": "8.5%"}`,
	}
	for _, doc := range docs {
		t.Run(doc, func(t *testing.T) {
			p, ok := m.DexScreenerPair(decode(t, doc))
			require.True(t, ok)
			assert.Equal(t, 8.5, p.PriceChange24h)
		})
	}
}

func TestDexScreenerPairFields(t *testing.T) {
	m := newTestMapper()
	p, ok := m.DexScreenerPair(decode(t, `{
		"chainId": "solana",
		"dexId": "raydium",
		"url": "https://dexscreener.com/solana/pair1",
		"pairAddress": "pair1",
		"baseToken": {"address": "base1", "name": "Bonk", "symbol": "BONK"},
		"quoteToken": {"address": "sol1", "name": "Wrapped SOL", "symbol": "SOL"},
		"priceUsd": "0.00002",
		"txns": {"h24": {"buys": 120, "sells": 80}},
		"volume": {"h24": 150000.5},
		"liquidity": {"usd": 99000},
		"fdv": 1500000,
		"marketCap": 1400000,
		"pairCreatedAt": 1717200000000
	}`))
	require.True(t, ok)

	assert.Equal(t, "pair1", p.PairID)
	assert.Equal(t, "solana", p.ChainID)
	assert.Equal(t, "raydium", p.DexID)
	assert.Equal(t, "BONK", p.BaseTokenSymbol)
	assert.Equal(t, "SOL", p.QuoteTokenSymbol)
	assert.Equal(t, 0.00002, p.PriceUSD)
	assert.Equal(t, int64(120), p.Txns24hBuys)
	assert.Equal(t, int64(80), p.Txns24hSells)
	assert.Equal(t, 150000.5, p.Volume24h)
	assert.Equal(t, 99000.0, p.LiquidityUSD)
	require.NotNil(t, p.PairCreatedAt)
	assert.Equal(t, time.UnixMilli(1717200000000).UTC(), *p.PairCreatedAt)
	assert.NotEmpty(t, p.RawData)
}

func TestDexScreenerProfileFallsBackToTokenAddress(t *testing.T) {
	m := newTestMapper()
	p, ok := m.DexScreenerPair(decode(t, `{"chainId": "base", "tokenAddress": "0xtok", "url": "https://dexscreener.com/base/0xtok"}`))
	require.True(t, ok)
	assert.Equal(t, "0xtok", p.PairID)
	assert.Equal(t, "0xtok", p.BaseTokenAddress)
	assert.Nil(t, p.PairCreatedAt)
}

func TestMissingNaturalKeySkips(t *testing.T) {
	m := newTestMapper()

	_, ok := m.RedditPost(decode(t, `{"title": "no id here", "score": 10}`))
	assert.False(t, ok)

	_, ok = m.Tweet(decode(t, `{"text": "gm"}`))
	assert.False(t, ok)

	_, ok = m.Article(decode(t, `{"title": "untitled"}`))
	assert.False(t, ok)

	_, ok = m.CryptoToken(decode(t, `{"name": "Ether", "symbol": "   "}`))
	assert.False(t, ok)

	_, ok = m.DexScreenerPair(decode(t, `{"baseToken": {"symbol": "X"}}`))
	assert.False(t, ok)

	_, ok = m.DexPaprikaPair(decode(t, `{"name": "nameless"}`))
	assert.False(t, ok)

	_, ok = m.ContentItem(source.SourceReddit, decode(t, `{"title": "no id"}`))
	assert.False(t, ok)
}

func TestMalformedValuesFallBackToDefaults(t *testing.T) {
	m := newTestMapper()
	docs := []string{
		`{"pairAddress": "x", "priceChange": {"h24": {"deep": true}}, "volume": [1, 2], "liquidity": "lots", "txns": {"h24": "many"}, "pairCreatedAt": "yesterday"}`,
		`{"pairAddress": "x", "baseToken": "not-an-object", "quoteToken": 12, "priceUsd": null}`,
		`{"pairAddress": "x", "priceChange": {"h24": "NaN"}, "fdv": "Infinity"}`,
	}
	for _, doc := range docs {
		t.Run(doc, func(t *testing.T) {
			var p DexPair
			var ok bool
			require.NotPanics(t, func() { p, ok = m.DexScreenerPair(decode(t, doc)) })
			require.True(t, ok)
			assert.Zero(t, p.PriceChange24h)
			assert.Zero(t, p.Volume24h)
			assert.Zero(t, p.LiquidityUSD)
			assert.Zero(t, p.FDV)
			assert.Empty(t, p.BaseTokenSymbol)
			assert.Nil(t, p.PairCreatedAt)
		})
	}
}

func TestMapperNeverPanics(t *testing.T) {
	m := newTestMapper()
	items := []source.Item{
		nil,
		{},
		{"id": map[string]any{"nested": true}},
		{"id": []any{"a"}},
		{"id": "ok", "engagement": "loud", "created_at": []any{}},
		{"symbol": 42, "price_usd": map[string]any{}},
		{"summary": "flat", "id": "tok"},
	}
	for _, src := range source.AllSourceTypes() {
		for _, item := range items {
			assert.NotPanics(t, func() { m.ContentItem(src, item) })
		}
	}
	assert.NotPanics(t, func() {
		for _, item := range items {
			m.Tweet(item)
			m.RedditPost(item)
			m.Article(item)
			m.CryptoToken(item)
			m.DexScreenerPair(item)
			m.DexPaprikaPair(item)
		}
	})
}

func TestTweetEngagementShapes(t *testing.T) {
	m := newTestMapper()
	tests := []struct {
		name string
		doc  string
	}{
		{name: "flat", doc: `{"id": "1", "like_count": 10, "retweet_count": 3, "reply_count": 2, "view_count": 500}`},
		{name: "engagement object", doc: `{"id": "1", "engagement": {"likes": 10, "retweets": 3, "replies": 2, "views": 500}}`},
		{name: "public metrics", doc: `{"id": "1", "public_metrics": {"like_count": 10, "retweet_count": 3, "reply_count": 2, "impression_count": 500}}`},
		{name: "string counts", doc: `{"id": "1", "likes": "10", "retweets": "3", "replies": "2", "views": "500"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw, ok := m.Tweet(decode(t, tt.doc))
			require.True(t, ok)
			assert.Equal(t, int64(10), tw.LikeCount)
			assert.Equal(t, int64(3), tw.RetweetCount)
			assert.Equal(t, int64(2), tw.ReplyCount)
			assert.Equal(t, int64(500), tw.ViewCount)
			assert.Equal(t, int64(15), tw.Engagement())
		})
	}
}

func TestTweetTimestamps(t *testing.T) {
	m := newTestMapper()

	tw, ok := m.Tweet(decode(t, `{"id": "1", "created_at": "Mon Jun 02 10:00:00 +0000 2025"}`))
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), tw.CreatedAt)

	tw, ok = m.Tweet(decode(t, `{"id": "2", "created_at": "garbage"}`))
	require.True(t, ok)
	assert.Equal(t, fixedNow, tw.CreatedAt)
}

func TestRedditPost(t *testing.T) {
	m := newTestMapper()
	p, ok := m.RedditPost(decode(t, `{
		"id": "abc123",
		"title": "WAGMI",
		"selftext": "body text",
		"author": "degen",
		"subreddit": "CryptoCurrency",
		"permalink": "/r/CryptoCurrency/comments/abc123/wagmi/",
		"score": 420,
		"num_comments": 69,
		"upvote_ratio": 0.97,
		"created_utc": 1748858400
	}`))
	require.True(t, ok)
	assert.Equal(t, "abc123", p.PostID)
	assert.Equal(t, "body text", p.Content)
	assert.Equal(t, "https://reddit.com/r/CryptoCurrency/comments/abc123/wagmi/", p.URL)
	assert.Equal(t, int64(420), p.Score)
	assert.Equal(t, int64(69), p.NumComments)
	assert.Equal(t, 0.97, p.UpvoteRatio)
	assert.Equal(t, time.Unix(1748858400, 0).UTC(), p.CreatedAt)
}

func TestArticleSourceShapes(t *testing.T) {
	m := newTestMapper()

	a, ok := m.Article(decode(t, `{"url": "https://n/1", "title": "t", "source": {"id": null, "name": "CoinDesk"}, "publishedAt": "2025-06-02T08:00:00Z"}`))
	require.True(t, ok)
	assert.Equal(t, "https://n/1", a.ArticleID)
	assert.Equal(t, "CoinDesk", a.Source)
	assert.Equal(t, time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC), a.PublishedAt)

	a, ok = m.Article(decode(t, `{"link": "https://n/2", "source": "The Block"}`))
	require.True(t, ok)
	assert.Equal(t, "https://n/2", a.ArticleID)
	assert.Equal(t, "The Block", a.Source)
	assert.Equal(t, fixedNow, a.PublishedAt)
}

func TestCryptoTokenSymbolNormalized(t *testing.T) {
	m := newTestMapper()
	c, ok := m.CryptoToken(decode(t, `{"symbol": " eth ", "name": "Ethereum", "network": "arbitrum", "current_price": "$3,050.25", "price_change_percentage_24h": 4.2, "market_cap_rank": 2}`))
	require.True(t, ok)
	assert.Equal(t, "ETH", c.Symbol)
	assert.Equal(t, "arbitrum", c.Network)
	assert.Equal(t, 3050.25, c.PriceUSD)
	assert.Equal(t, 4.2, c.PriceChange24h)
	assert.Equal(t, int64(2), c.MarketCapRank)
}

func TestDexPaprikaSyntheticPair(t *testing.T) {
	m := newTestMapper()
	p, ok := m.DexPaprikaPair(decode(t, `{
		"id": "0xpap",
		"name": "Paprika",
		"symbol": "PAP",
		"chain": "ethereum",
		"summary": {
			"price_usd": 1.25,
			"fdv": 1000000,
			"liquidity_usd": 50000,
			"24h": {"volume_usd": 75000, "last_price_usd_change": -3.5, "buys": 10, "sells": 12}
		}
	}`))
	require.True(t, ok)
	assert.Equal(t, "dexpaprika_0xpap", p.PairID)
	assert.Equal(t, "dexpaprika", p.DexID)
	assert.Equal(t, "ethereum", p.ChainID)
	assert.Equal(t, "0xpap", p.BaseTokenAddress)
	assert.Equal(t, QuoteSentinel, p.QuoteTokenAddr)
	assert.Equal(t, QuoteSentinel, p.QuoteTokenName)
	assert.Equal(t, QuoteSentinel, p.QuoteTokenSymbol)
	assert.Equal(t, 1.25, p.PriceUSD)
	assert.Equal(t, -3.5, p.PriceChange24h)
	assert.Equal(t, 75000.0, p.Volume24h)
	assert.Equal(t, 50000.0, p.LiquidityUSD)
	assert.Equal(t, int64(10), p.Txns24hBuys)
	assert.Equal(t, int64(12), p.Txns24hSells)
}

func TestContentItem(t *testing.T) {
	m := newTestMapper()

	ci, ok := m.ContentItem(source.SourceTwitter, decode(t, `{"id": "9", "text": "first line\nsecond line", "author": "anon"}`))
	require.True(t, ok)
	assert.Equal(t, "9", ci.ExternalID)
	assert.Equal(t, "first line", ci.Title)
	require.NotNil(t, ci.PublishedAt)
	assert.Equal(t, fixedNow, *ci.PublishedAt)

	ci, ok = m.ContentItem(source.SourceDexScreener, decode(t, `{"pairAddress": "p", "baseToken": {"symbol": "PEPE"}, "quoteToken": {"symbol": "WETH"}}`))
	require.True(t, ok)
	assert.Equal(t, "PEPE/WETH", ci.Title)
	assert.Nil(t, ci.PublishedAt)

	ci, ok = m.ContentItem(source.SourceCrypto, decode(t, `{"symbol": "sol", "name": "Solana"}`))
	require.True(t, ok)
	assert.Equal(t, "SOL", ci.ExternalID)
	assert.Equal(t, "SOL Solana", ci.Title)

	_, ok = m.ContentItem(source.SourceType("hackernews"), decode(t, `{"id": "1"}`))
	assert.False(t, ok)
}
