package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/degendigest/pkg/source"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Sort orders accepted by the list queries. Unknown orders fall back to
// "recent".
var (
	tweetOrders = map[string]string{
		"recent":     "created_at DESC",
		"engagement": "(like_count + retweet_count + reply_count) DESC, created_at DESC",
		"likes":      "like_count DESC, created_at DESC",
		"retweets":   "retweet_count DESC, created_at DESC",
	}
	redditOrders = map[string]string{
		"recent":   "created_at DESC",
		"score":    "score DESC, created_at DESC",
		"comments": "num_comments DESC, created_at DESC",
	}
)

func orderBy(orders map[string]string, sort string) string {
	if o, ok := orders[sort]; ok {
		return o
	}
	return orders["recent"]
}

// countedTables are the tables reported by Stats.
var countedTables = []string{
	"tweets", "reddit_posts", "articles", "crypto_tokens",
	"dexscreener_pairs", "dexpaprika_pairs", "content_items", "data_collections",
}

// Stats summarizes what is stored.
type Stats struct {
	Tables           map[string]int64 `json:"tables"`
	TotalItems       int64            `json:"total_items"`
	Crawlers         map[string]int   `json:"crawlers"`
	LastCollectionAt *time.Time       `json:"last_collection_at"`
}

// Stats counts rows per table and crawlers per stored status.
func (s *SQLStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		Tables:   make(map[string]int64, len(countedTables)),
		Crawlers: make(map[string]int),
	}
	for _, table := range countedTables {
		var n int64
		if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		st.Tables[table] = n
		if table != "content_items" && table != "data_collections" {
			st.TotalItems += n
		}
	}

	rows, err := s.db.QueryxContext(ctx, "SELECT status, COUNT(*) FROM crawler_status GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count crawlers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan crawler count: %w", err)
		}
		st.Crawlers[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last []time.Time
	err = s.db.SelectContext(ctx, &last,
		"SELECT collection_timestamp FROM data_collections ORDER BY collection_timestamp DESC LIMIT 1")
	if err != nil {
		return nil, fmt.Errorf("last collection: %w", err)
	}
	if len(last) > 0 {
		st.LastCollectionAt = &last[0]
	}
	return st, nil
}

// TimeRange bounds a list query to [Start, End). A zero bound is open.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) where(column string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !r.Start.IsZero() {
		conds = append(conds, column+" >= ?")
		args = append(args, r.Start.UTC())
	}
	if !r.End.IsZero() {
		conds = append(conds, column+" < ?")
		args = append(args, r.End.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListTweets returns tweets ordered by sort (recent|engagement|likes|retweets).
func (s *SQLStore) ListTweets(ctx context.Context, sort string, limit int) ([]TweetRow, error) {
	return s.ListTweetsIn(ctx, TimeRange{}, sort, limit)
}

// ListTweetsIn is ListTweets restricted to tweets created within tr.
func (s *SQLStore) ListTweetsIn(ctx context.Context, tr TimeRange, sort string, limit int) ([]TweetRow, error) {
	var rows []TweetRow
	where, args := tr.where("created_at")
	query := "SELECT * FROM tweets" + where + " ORDER BY " + orderBy(tweetOrders, sort) + " LIMIT ?"
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), append(args, clampLimit(limit))...); err != nil {
		return nil, fmt.Errorf("list tweets: %w", err)
	}
	return rows, nil
}

// ListRedditPosts returns posts ordered by sort (recent|score|comments).
func (s *SQLStore) ListRedditPosts(ctx context.Context, sort string, limit int) ([]RedditPostRow, error) {
	return s.ListRedditPostsIn(ctx, TimeRange{}, sort, limit)
}

// ListRedditPostsIn is ListRedditPosts restricted to posts created within tr.
func (s *SQLStore) ListRedditPostsIn(ctx context.Context, tr TimeRange, sort string, limit int) ([]RedditPostRow, error) {
	var rows []RedditPostRow
	where, args := tr.where("created_at")
	query := "SELECT * FROM reddit_posts" + where + " ORDER BY " + orderBy(redditOrders, sort) + " LIMIT ?"
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), append(args, clampLimit(limit))...); err != nil {
		return nil, fmt.Errorf("list reddit posts: %w", err)
	}
	return rows, nil
}

// ListArticles returns the most recently published articles.
func (s *SQLStore) ListArticles(ctx context.Context, limit int) ([]ArticleRow, error) {
	return s.ListArticlesIn(ctx, TimeRange{}, limit)
}

// ListArticlesIn is ListArticles restricted to articles published within tr.
func (s *SQLStore) ListArticlesIn(ctx context.Context, tr TimeRange, limit int) ([]ArticleRow, error) {
	var rows []ArticleRow
	where, args := tr.where("published_at")
	query := s.db.Rebind("SELECT * FROM articles" + where + " ORDER BY published_at DESC LIMIT ?")
	if err := s.db.SelectContext(ctx, &rows, query, append(args, clampLimit(limit))...); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return rows, nil
}

// ListCryptoTokens returns tokens ordered by 24h price change, biggest
// gainers first.
func (s *SQLStore) ListCryptoTokens(ctx context.Context, limit int) ([]CryptoTokenRow, error) {
	var rows []CryptoTokenRow
	query := s.db.Rebind("SELECT * FROM crypto_tokens ORDER BY price_change_24h DESC, symbol LIMIT ?")
	if err := s.db.SelectContext(ctx, &rows, query, clampLimit(limit)); err != nil {
		return nil, fmt.Errorf("list crypto tokens: %w", err)
	}
	return rows, nil
}

// pairTables maps DEX sources to their tables.
var pairTables = map[source.SourceType]string{
	source.SourceDexScreener: "dexscreener_pairs",
	source.SourceDexPaprika:  "dexpaprika_pairs",
}

// ListDexPairs returns the pairs of a DEX source ordered by 24h volume.
func (s *SQLStore) ListDexPairs(ctx context.Context, src source.SourceType, limit int) ([]DexPairRow, error) {
	table, ok := pairTables[src]
	if !ok {
		return nil, fmt.Errorf("list dex pairs: %w: %s", ErrUnknownSource, src)
	}
	var rows []DexPairRow
	query := s.db.Rebind("SELECT * FROM " + table + " ORDER BY volume_24h DESC, pair_id LIMIT ?")
	if err := s.db.SelectContext(ctx, &rows, query, clampLimit(limit)); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return rows, nil
}

// CountTable returns the row count of one of the stored tables.
func (s *SQLStore) CountTable(ctx context.Context, table string) (int64, error) {
	known := false
	for _, t := range countedTables {
		known = known || t == table
	}
	if !known {
		return 0, fmt.Errorf("count %s: %w", table, ErrNotFound)
	}
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// ContentItemCount returns how many generic items are stored for src.
func (s *SQLStore) ContentItemCount(ctx context.Context, src source.SourceType) (int64, error) {
	id, err := s.SourceID(src)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM content_items WHERE source_id = ?"), id)
	if err != nil {
		return 0, fmt.Errorf("count content items %s: %w", src, err)
	}
	return n, nil
}
