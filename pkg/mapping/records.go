package mapping

import "time"

// QuoteSentinel fills quote-token columns for sources that only report token
// snapshots, not trading pairs.
const QuoteSentinel = "N/A"

// Tweet is one row of the tweets table.
type Tweet struct {
	TweetID      string    `db:"tweet_id" json:"tweet_id"`
	Text         string    `db:"text" json:"text"`
	Author       string    `db:"author" json:"author"`
	URL          string    `db:"url" json:"url"`
	LikeCount    int64     `db:"like_count" json:"like_count"`
	RetweetCount int64     `db:"retweet_count" json:"retweet_count"`
	ReplyCount   int64     `db:"reply_count" json:"reply_count"`
	ViewCount    int64     `db:"view_count" json:"view_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	RawData      string    `db:"raw_data" json:"-"`
}

// Engagement is the combined interaction count used for ranking.
func (t Tweet) Engagement() int64 {
	return t.LikeCount + t.RetweetCount + t.ReplyCount
}

// RedditPost is one row of the reddit_posts table.
type RedditPost struct {
	PostID      string    `db:"post_id" json:"post_id"`
	Title       string    `db:"title" json:"title"`
	Content     string    `db:"content" json:"content"`
	Author      string    `db:"author" json:"author"`
	Subreddit   string    `db:"subreddit" json:"subreddit"`
	URL         string    `db:"url" json:"url"`
	Score       int64     `db:"score" json:"score"`
	NumComments int64     `db:"num_comments" json:"num_comments"`
	UpvoteRatio float64   `db:"upvote_ratio" json:"upvote_ratio"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	RawData     string    `db:"raw_data" json:"-"`
}

// Article is one row of the articles table.
type Article struct {
	ArticleID   string    `db:"article_id" json:"article_id"`
	Title       string    `db:"title" json:"title"`
	Content     string    `db:"content" json:"content"`
	Source      string    `db:"source" json:"source"`
	Author      string    `db:"author" json:"author"`
	URL         string    `db:"url" json:"url"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
	RawData     string    `db:"raw_data" json:"-"`
}

// CryptoToken is one row of the crypto_tokens table. Rows are keyed by
// Symbol alone, so the same symbol on two networks shares one row.
type CryptoToken struct {
	Symbol         string  `db:"symbol" json:"symbol"`
	TokenID        string  `db:"token_id" json:"token_id"`
	Name           string  `db:"name" json:"name"`
	Network        string  `db:"network" json:"network"`
	PriceUSD       float64 `db:"price_usd" json:"price_usd"`
	PriceChange24h float64 `db:"price_change_24h" json:"price_change_24h"`
	MarketCap      float64 `db:"market_cap" json:"market_cap"`
	Volume24h      float64 `db:"volume_24h" json:"volume_24h"`
	MarketCapRank  int64   `db:"market_cap_rank" json:"market_cap_rank"`
	RawData        string  `db:"raw_data" json:"-"`
}

// DexPair is one row of dexscreener_pairs or dexpaprika_pairs; both tables
// share the column set.
type DexPair struct {
	PairID           string     `db:"pair_id" json:"pair_id"`
	ChainID          string     `db:"chain_id" json:"chain_id"`
	DexID            string     `db:"dex_id" json:"dex_id"`
	URL              string     `db:"url" json:"url"`
	BaseTokenAddress string     `db:"base_token_address" json:"base_token_address"`
	BaseTokenName    string     `db:"base_token_name" json:"base_token_name"`
	BaseTokenSymbol  string     `db:"base_token_symbol" json:"base_token_symbol"`
	QuoteTokenAddr   string     `db:"quote_token_address" json:"quote_token_address"`
	QuoteTokenName   string     `db:"quote_token_name" json:"quote_token_name"`
	QuoteTokenSymbol string     `db:"quote_token_symbol" json:"quote_token_symbol"`
	PriceUSD         float64    `db:"price_usd" json:"price_usd"`
	PriceChange24h   float64    `db:"price_change_24h" json:"price_change_24h"`
	Volume24h        float64    `db:"volume_24h" json:"volume_24h"`
	LiquidityUSD     float64    `db:"liquidity_usd" json:"liquidity_usd"`
	Txns24hBuys      int64      `db:"txns_24h_buys" json:"txns_24h_buys"`
	Txns24hSells     int64      `db:"txns_24h_sells" json:"txns_24h_sells"`
	FDV              float64    `db:"fdv" json:"fdv"`
	MarketCap        float64    `db:"market_cap" json:"market_cap"`
	PairCreatedAt    *time.Time `db:"pair_created_at" json:"pair_created_at,omitempty"`
	RawData          string     `db:"raw_data" json:"-"`
}

// ContentItem is one row of the generic content_items bucket.
type ContentItem struct {
	ExternalID  string     `db:"external_id" json:"external_id"`
	Title       string     `db:"title" json:"title"`
	Content     string     `db:"content" json:"content"`
	Author      string     `db:"author" json:"author"`
	URL         string     `db:"url" json:"url"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
	RawData     string     `db:"raw_data" json:"-"`
}
