package mapping

import (
	"strings"
	"time"

	"github.com/elonfeng/degendigest/pkg/source"
	"go.uber.org/zap"
)

// Mapper projects raw collector items onto table rows. Every method
// returns ok == false only when the item has no natural key; malformed
// values never fail a record, they fall back to column defaults.
type Mapper struct {
	log *zap.Logger
	now func() time.Time
}

// New creates a Mapper. Missing timestamps default to the current time.
func New(log *zap.Logger) *Mapper {
	return &Mapper{
		log: log.Named("mapping"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for timestamp defaults.
func (m *Mapper) WithClock(now func() time.Time) *Mapper {
	cp := *m
	cp.now = now
	return &cp
}

func (m *Mapper) fields(item source.Item) fields {
	return fields{item: item, log: m.log}
}

// Tweet maps a twitter item. Engagement counts may be flat or nested under
// "engagement" / "public_metrics".
func (m *Mapper) Tweet(item source.Item) (Tweet, bool) {
	f := m.fields(item)
	id := f.str("tweet_id", "id", "tweet_id", "id_str")
	if id == "" {
		return Tweet{}, false
	}
	return Tweet{
		TweetID: id,
		Text:    f.str("text", "text", "content", "message", "full_text"),
		Author:  f.str("author", "author", "author.username", "username", "user.screen_name", "author_username"),
		URL:     f.str("url", "url", "link", "tweet_url"),
		LikeCount: f.int("like_count",
			"like_count", "likes", "favorite_count",
			"engagement.likes", "engagement.like_count", "public_metrics.like_count"),
		RetweetCount: f.int("retweet_count",
			"retweet_count", "retweets",
			"engagement.retweets", "engagement.retweet_count", "public_metrics.retweet_count"),
		ReplyCount: f.int("reply_count",
			"reply_count", "replies",
			"engagement.replies", "engagement.reply_count", "public_metrics.reply_count"),
		ViewCount: f.int("view_count",
			"view_count", "views",
			"engagement.views", "engagement.view_count", "public_metrics.impression_count"),
		CreatedAt: f.time(m.now(), "created_at", "created_at", "timestamp", "published_at", "date"),
		RawData:   f.raw(),
	}, true
}

// RedditPost maps a reddit item.
func (m *Mapper) RedditPost(item source.Item) (RedditPost, bool) {
	f := m.fields(item)
	id := f.str("post_id", "id", "post_id")
	if id == "" {
		return RedditPost{}, false
	}
	url := f.str("url", "url", "permalink")
	if strings.HasPrefix(url, "/r/") {
		url = "https://reddit.com" + url
	}
	return RedditPost{
		PostID:      id,
		Title:       f.str("title", "title"),
		Content:     f.str("content", "selftext", "content", "text", "body"),
		Author:      f.str("author", "author", "author_name"),
		Subreddit:   f.str("subreddit", "subreddit", "subreddit_name"),
		URL:         url,
		Score:       f.int("score", "score", "ups", "upvotes"),
		NumComments: f.int("num_comments", "num_comments", "comments", "comment_count"),
		UpvoteRatio: f.float("upvote_ratio", "upvote_ratio"),
		CreatedAt:   f.time(m.now(), "created_at", "created_utc", "created_at", "created"),
		RawData:     f.raw(),
	}, true
}

// Article maps a news item; the article URL is the preferred natural key.
func (m *Mapper) Article(item source.Item) (Article, bool) {
	f := m.fields(item)
	id := f.str("article_id", "url", "link", "id", "guid")
	if id == "" {
		return Article{}, false
	}
	return Article{
		ArticleID:   id,
		Title:       f.str("title", "title", "headline"),
		Content:     f.str("content", "content", "description", "summary", "body"),
		Source:      f.str("source", "source.name", "source", "feed"),
		Author:      f.str("author", "author", "creator"),
		URL:         f.str("url", "url", "link"),
		PublishedAt: f.time(m.now(), "published_at", "published_at", "publishedAt", "pubDate", "published", "date"),
		RawData:     f.raw(),
	}, true
}

// CryptoToken maps a crypto gainer/token item. Symbols are upper-cased so
// "eth" and "ETH" address the same row.
func (m *Mapper) CryptoToken(item source.Item) (CryptoToken, bool) {
	f := m.fields(item)
	symbol := strings.ToUpper(f.str("symbol", "symbol", "ticker"))
	if symbol == "" {
		return CryptoToken{}, false
	}
	return CryptoToken{
		Symbol:  symbol,
		TokenID: f.str("token_id", "id", "token_id", "coin_id"),
		Name:    f.str("name", "name"),
		Network: f.str("network", "network", "chain", "platform", "chain_id"),
		PriceUSD: f.float("price_usd",
			"price_usd", "current_price", "price", "priceUsd"),
		PriceChange24h: f.float("price_change_24h",
			"price_change_24h", "price_change_percentage_24h", "priceChange24h", "priceChange.h24", "change_24h"),
		MarketCap:     f.float("market_cap", "market_cap", "marketCap"),
		Volume24h:     f.float("volume_24h", "volume_24h", "total_volume", "volume.h24", "volume"),
		MarketCapRank: f.int("market_cap_rank", "market_cap_rank", "rank"),
		RawData:       f.raw(),
	}, true
}

// DexScreenerPair maps a DexScreener pair, profile or boost record. Nested
// objects (baseToken, priceChange, volume, liquidity, txns) are read with a
// type check at every level; scalar variants of the same keys are accepted
// as fallbacks.
func (m *Mapper) DexScreenerPair(item source.Item) (DexPair, bool) {
	f := m.fields(item)
	id := f.str("pair_id", "pairAddress", "pair_address", "pair_id", "tokenAddress")
	if id == "" {
		return DexPair{}, false
	}
	return DexPair{
		PairID:           id,
		ChainID:          f.str("chain_id", "chainId", "chain_id"),
		DexID:            f.str("dex_id", "dexId", "dex_id"),
		URL:              f.str("url", "url"),
		BaseTokenAddress: f.str("base_token_address", "baseToken.address", "base_token_address", "tokenAddress"),
		BaseTokenName:    f.str("base_token_name", "baseToken.name", "base_token_name", "name"),
		BaseTokenSymbol:  f.str("base_token_symbol", "baseToken.symbol", "base_token_symbol", "symbol"),
		QuoteTokenAddr:   f.str("quote_token_address", "quoteToken.address", "quote_token_address"),
		QuoteTokenName:   f.str("quote_token_name", "quoteToken.name", "quote_token_name"),
		QuoteTokenSymbol: f.str("quote_token_symbol", "quoteToken.symbol", "quote_token_symbol"),
		PriceUSD:         f.float("price_usd", "priceUsd", "price_usd"),
		PriceChange24h: f.float("price_change_24h",
			"priceChange.h24", "priceChange24h", "price_change_24h", "priceChange"),
		Volume24h:     f.float("volume_24h", "volume.h24", "volume24h", "volume_24h", "volume"),
		LiquidityUSD:  f.float("liquidity_usd", "liquidity.usd", "liquidity_usd", "liquidity"),
		Txns24hBuys:   f.int("txns_24h_buys", "txns.h24.buys", "txns_24h_buys"),
		Txns24hSells:  f.int("txns_24h_sells", "txns.h24.sells", "txns_24h_sells"),
		FDV:           f.float("fdv", "fdv"),
		MarketCap:     f.float("market_cap", "marketCap", "market_cap"),
		PairCreatedAt: f.optTime("pair_created_at", "pairCreatedAt", "pair_created_at"),
		RawData:       f.raw(),
	}, true
}

// DexPaprikaPair maps a DexPaprika token snapshot. DexPaprika reports
// tokens, not pairs, so the pair id is synthesized from the token id and the
// quote side is filled with QuoteSentinel.
func (m *Mapper) DexPaprikaPair(item source.Item) (DexPair, bool) {
	f := m.fields(item)
	tokenID := f.str("token_id", "id", "token_id", "address")
	if tokenID == "" {
		return DexPair{}, false
	}
	return DexPair{
		PairID:           "dexpaprika_" + tokenID,
		ChainID:          f.str("chain_id", "chain", "network", "chain_id"),
		DexID:            "dexpaprika",
		URL:              f.str("url", "url"),
		BaseTokenAddress: f.strOr(tokenID, "base_token_address", "address", "id"),
		BaseTokenName:    f.str("base_token_name", "name"),
		BaseTokenSymbol:  f.str("base_token_symbol", "symbol"),
		QuoteTokenAddr:   QuoteSentinel,
		QuoteTokenName:   QuoteSentinel,
		QuoteTokenSymbol: QuoteSentinel,
		PriceUSD:         f.float("price_usd", "summary.price_usd", "price_usd", "price"),
		PriceChange24h: f.float("price_change_24h",
			"summary.24h.last_price_usd_change", "summary.24h.price_change", "price_change_24h"),
		Volume24h: f.float("volume_24h",
			"summary.24h.volume_usd", "summary.24h.volume", "volume_24h"),
		LiquidityUSD: f.float("liquidity_usd", "summary.liquidity_usd", "liquidity_usd"),
		Txns24hBuys:  f.int("txns_24h_buys", "summary.24h.buys", "txns_24h_buys"),
		Txns24hSells: f.int("txns_24h_sells", "summary.24h.sells", "txns_24h_sells"),
		FDV:          f.float("fdv", "summary.fdv", "fdv"),
		MarketCap:    f.float("market_cap", "summary.market_cap", "market_cap"),
		RawData:      f.raw(),
	}, true
}

// ContentItem maps any source's item onto the generic bucket, reusing the
// source's own mapper for the natural key and descriptive fields.
func (m *Mapper) ContentItem(src source.SourceType, item source.Item) (ContentItem, bool) {
	var ci ContentItem
	switch src {
	case source.SourceTwitter:
		t, ok := m.Tweet(item)
		if !ok {
			return ci, false
		}
		ci = ContentItem{ExternalID: t.TweetID, Title: headline(t.Text), Content: t.Text, Author: t.Author, URL: t.URL, PublishedAt: &t.CreatedAt}
	case source.SourceReddit:
		p, ok := m.RedditPost(item)
		if !ok {
			return ci, false
		}
		ci = ContentItem{ExternalID: p.PostID, Title: p.Title, Content: p.Content, Author: p.Author, URL: p.URL, PublishedAt: &p.CreatedAt}
	case source.SourceNews:
		a, ok := m.Article(item)
		if !ok {
			return ci, false
		}
		ci = ContentItem{ExternalID: a.ArticleID, Title: a.Title, Content: a.Content, Author: a.Author, URL: a.URL, PublishedAt: &a.PublishedAt}
	case source.SourceCrypto:
		c, ok := m.CryptoToken(item)
		if !ok {
			return ci, false
		}
		ci = ContentItem{ExternalID: c.Symbol, Title: strings.TrimSpace(c.Symbol + " " + c.Name)}
	case source.SourceDexScreener, source.SourceDexPaprika:
		mapPair := m.DexScreenerPair
		if src == source.SourceDexPaprika {
			mapPair = m.DexPaprikaPair
		}
		p, ok := mapPair(item)
		if !ok {
			return ci, false
		}
		ci = ContentItem{ExternalID: p.PairID, Title: pairTitle(p), URL: p.URL, PublishedAt: p.PairCreatedAt}
	default:
		return ci, false
	}
	ci.RawData = m.fields(item).raw()
	return ci, true
}

func pairTitle(p DexPair) string {
	if p.QuoteTokenSymbol == "" || p.QuoteTokenSymbol == QuoteSentinel {
		return p.BaseTokenSymbol
	}
	return p.BaseTokenSymbol + "/" + p.QuoteTokenSymbol
}

// headline is the first line of text, cut to 100 runes.
func headline(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	r := []rune(line)
	if len(r) <= 100 {
		return line
	}
	return string(r[:100]) + "..."
}
