package store

import (
	"context"
	"fmt"
	"time"

	"github.com/elonfeng/degendigest/pkg/mapping"
	"github.com/elonfeng/degendigest/pkg/source"
	"github.com/jmoiron/sqlx"
)

// Tx groups the writes for one ingested file. Record-level failures are
// isolated with savepoints so the rest of the file can still commit.
type Tx struct {
	tx    *sqlx.Tx
	store *SQLStore
	n     int
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is safe to call after Commit.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Savepoint opens a new savepoint and returns its name.
func (t *Tx) Savepoint(ctx context.Context) (string, error) {
	t.n++
	name := fmt.Sprintf("rec_%d", t.n)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return "", fmt.Errorf("savepoint %s: %w", name, err)
	}
	return name, nil
}

// RollbackTo undoes everything since the named savepoint and releases it.
func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("rollback to %s: %w", name, err)
	}
	return t.Release(ctx, name)
}

// Release discards the named savepoint, keeping its writes.
func (t *Tx) Release(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

// WithSavepoint runs fn inside a savepoint. When fn fails its writes are
// rolled back and fn's error is returned; the transaction stays usable.
func (t *Tx) WithSavepoint(ctx context.Context, fn func() error) error {
	sp, err := t.Savepoint(ctx)
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := t.RollbackTo(ctx, sp); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return t.Release(ctx, sp)
}

// Collection describes one ingested blob.
type Collection struct {
	ID            int64     `db:"id" json:"id"`
	SourceID      int64     `db:"source_id" json:"source_id"`
	CollectedAt   time.Time `db:"collection_timestamp" json:"collection_timestamp"`
	FilePath      string    `db:"file_path" json:"file_path"`
	RecordCount   int64     `db:"record_count" json:"record_count"`
	FileSizeBytes int64     `db:"file_size_bytes" json:"file_size_bytes"`
}

// CreateCollection records one ingested file and returns its id. A zero
// CollectedAt is replaced with the current time.
func (t *Tx) CreateCollection(ctx context.Context, src source.SourceType, c Collection) (int64, error) {
	sourceID, err := t.store.SourceID(src)
	if err != nil {
		return 0, err
	}
	if c.CollectedAt.IsZero() {
		c.CollectedAt = t.store.now()
	}

	var id int64
	err = t.tx.QueryRowxContext(ctx, t.tx.Rebind(`
		INSERT INTO data_collections (source_id, collection_timestamp, file_path, record_count, file_size_bytes)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), sourceID, c.CollectedAt.UTC(), c.FilePath, c.RecordCount, c.FileSizeBytes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create collection %s: %w", c.FilePath, err)
	}
	return id, nil
}

// InsertContentItem appends a generic content item. Items whose external id
// was already seen for the source are ignored and reported as not inserted.
func (t *Tx) InsertContentItem(ctx context.Context, src source.SourceType, collectionID int64, ci mapping.ContentItem) (bool, error) {
	sourceID, err := t.store.SourceID(src)
	if err != nil {
		return false, err
	}
	var published *time.Time
	if ci.PublishedAt != nil {
		p := ci.PublishedAt.UTC()
		published = &p
	}

	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		INSERT INTO content_items (collection_id, source_id, external_id, title, content, author, url, published_at, raw_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, external_id) DO NOTHING
	`), collectionID, sourceID, ci.ExternalID, ci.Title, ci.Content, ci.Author, ci.URL,
		published, ci.RawData, t.store.now())
	if err != nil {
		return false, fmt.Errorf("insert content item %s: %w", ci.ExternalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert content item %s: %w", ci.ExternalID, err)
	}
	return n > 0, nil
}

// Named-query arguments: each record plus the write time bound as :now.
type (
	tweetArg struct {
		mapping.Tweet
		Now time.Time `db:"now"`
	}
	redditPostArg struct {
		mapping.RedditPost
		Now time.Time `db:"now"`
	}
	articleArg struct {
		mapping.Article
		Now time.Time `db:"now"`
	}
	cryptoTokenArg struct {
		mapping.CryptoToken
		Now time.Time `db:"now"`
	}
	dexPairArg struct {
		mapping.DexPair
		Now time.Time `db:"now"`
	}
)

func (t *Tx) upsert(ctx context.Context, query string, arg any, key string) error {
	if _, err := t.tx.NamedExecContext(ctx, query, arg); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// UpsertTweet inserts or refreshes a tweet.
func (t *Tx) UpsertTweet(ctx context.Context, r mapping.Tweet) error {
	r.CreatedAt = r.CreatedAt.UTC()
	return t.upsert(ctx, `
		INSERT INTO tweets (tweet_id, text, author, url, like_count, retweet_count, reply_count, view_count, created_at, raw_data, first_seen_at, last_updated_at)
		VALUES (:tweet_id, :text, :author, :url, :like_count, :retweet_count, :reply_count, :view_count, :created_at, :raw_data, :now, :now)
		ON CONFLICT (tweet_id) DO UPDATE SET
			text = excluded.text,
			like_count = excluded.like_count,
			retweet_count = excluded.retweet_count,
			reply_count = excluded.reply_count,
			view_count = excluded.view_count,
			raw_data = excluded.raw_data,
			last_updated_at = excluded.last_updated_at
	`, tweetArg{Tweet: r, Now: t.store.now()}, "tweet "+r.TweetID)
}

// UpsertRedditPost inserts or refreshes a reddit post.
func (t *Tx) UpsertRedditPost(ctx context.Context, r mapping.RedditPost) error {
	r.CreatedAt = r.CreatedAt.UTC()
	return t.upsert(ctx, `
		INSERT INTO reddit_posts (post_id, title, content, author, subreddit, url, score, num_comments, upvote_ratio, created_at, raw_data, first_seen_at, last_updated_at)
		VALUES (:post_id, :title, :content, :author, :subreddit, :url, :score, :num_comments, :upvote_ratio, :created_at, :raw_data, :now, :now)
		ON CONFLICT (post_id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			score = excluded.score,
			num_comments = excluded.num_comments,
			upvote_ratio = excluded.upvote_ratio,
			raw_data = excluded.raw_data,
			last_updated_at = excluded.last_updated_at
	`, redditPostArg{RedditPost: r, Now: t.store.now()}, "reddit post "+r.PostID)
}

// UpsertArticle inserts or refreshes a news article.
func (t *Tx) UpsertArticle(ctx context.Context, r mapping.Article) error {
	r.PublishedAt = r.PublishedAt.UTC()
	return t.upsert(ctx, `
		INSERT INTO articles (article_id, title, content, source, author, url, published_at, raw_data, first_seen_at, last_updated_at)
		VALUES (:article_id, :title, :content, :source, :author, :url, :published_at, :raw_data, :now, :now)
		ON CONFLICT (article_id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			raw_data = excluded.raw_data,
			last_updated_at = excluded.last_updated_at
	`, articleArg{Article: r, Now: t.store.now()}, "article "+r.ArticleID)
}

// UpsertCryptoToken inserts or refreshes a token keyed by symbol alone; a
// later record for the same symbol on another network overwrites the row.
func (t *Tx) UpsertCryptoToken(ctx context.Context, r mapping.CryptoToken) error {
	return t.upsert(ctx, `
		INSERT INTO crypto_tokens (symbol, token_id, name, network, price_usd, price_change_24h, market_cap, volume_24h, market_cap_rank, raw_data, first_seen_at, last_updated_at)
		VALUES (:symbol, :token_id, :name, :network, :price_usd, :price_change_24h, :market_cap, :volume_24h, :market_cap_rank, :raw_data, :now, :now)
		ON CONFLICT (symbol) DO UPDATE SET
			token_id = excluded.token_id,
			name = excluded.name,
			network = excluded.network,
			price_usd = excluded.price_usd,
			price_change_24h = excluded.price_change_24h,
			market_cap = excluded.market_cap,
			volume_24h = excluded.volume_24h,
			market_cap_rank = excluded.market_cap_rank,
			raw_data = excluded.raw_data,
			last_updated_at = excluded.last_updated_at
	`, cryptoTokenArg{CryptoToken: r, Now: t.store.now()}, "crypto token "+r.Symbol)
}

// UpsertDexScreenerPair inserts or refreshes a DexScreener pair.
func (t *Tx) UpsertDexScreenerPair(ctx context.Context, r mapping.DexPair) error {
	return t.upsertPair(ctx, "dexscreener_pairs", r)
}

// UpsertDexPaprikaPair inserts or refreshes a DexPaprika token snapshot.
func (t *Tx) UpsertDexPaprikaPair(ctx context.Context, r mapping.DexPair) error {
	return t.upsertPair(ctx, "dexpaprika_pairs", r)
}

func (t *Tx) upsertPair(ctx context.Context, table string, r mapping.DexPair) error {
	if r.PairCreatedAt != nil {
		ts := r.PairCreatedAt.UTC()
		r.PairCreatedAt = &ts
	}
	return t.upsert(ctx, `
		INSERT INTO `+table+` (pair_id, chain_id, dex_id, url,
			base_token_address, base_token_name, base_token_symbol,
			quote_token_address, quote_token_name, quote_token_symbol,
			price_usd, price_change_24h, volume_24h, liquidity_usd,
			txns_24h_buys, txns_24h_sells, fdv, market_cap, pair_created_at,
			raw_data, first_seen_at, last_updated_at)
		VALUES (:pair_id, :chain_id, :dex_id, :url,
			:base_token_address, :base_token_name, :base_token_symbol,
			:quote_token_address, :quote_token_name, :quote_token_symbol,
			:price_usd, :price_change_24h, :volume_24h, :liquidity_usd,
			:txns_24h_buys, :txns_24h_sells, :fdv, :market_cap, :pair_created_at,
			:raw_data, :now, :now)
		ON CONFLICT (pair_id) DO UPDATE SET
			url = excluded.url,
			base_token_name = excluded.base_token_name,
			base_token_symbol = excluded.base_token_symbol,
			quote_token_name = excluded.quote_token_name,
			quote_token_symbol = excluded.quote_token_symbol,
			price_usd = excluded.price_usd,
			price_change_24h = excluded.price_change_24h,
			volume_24h = excluded.volume_24h,
			liquidity_usd = excluded.liquidity_usd,
			txns_24h_buys = excluded.txns_24h_buys,
			txns_24h_sells = excluded.txns_24h_sells,
			fdv = excluded.fdv,
			market_cap = excluded.market_cap,
			raw_data = excluded.raw_data,
			last_updated_at = excluded.last_updated_at
	`, dexPairArg{DexPair: r, Now: t.store.now()}, table+" "+r.PairID)
}
