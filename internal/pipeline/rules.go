package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/elonfeng/degendigest/internal/store"
	"github.com/elonfeng/degendigest/pkg/mapping"
	"github.com/elonfeng/degendigest/pkg/source"
)

// Mode selects which blobs are read and where their records go.
type Mode string

const (
	// ModeConsolidated reads consolidated/<src>_consolidated.json into
	// content_items.
	ModeConsolidated Mode = "consolidated"
	// ModeFiles reads every <src>_data/*.json into the source's table.
	ModeFiles Mode = "files"
	// ModeLatest reads only <src>_data/<src>_latest.json.
	ModeLatest Mode = "latest"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeConsolidated, ModeFiles, ModeLatest:
		return m, nil
	case "":
		return ModeFiles, nil
	}
	return "", fmt.Errorf("unknown mode %q (want consolidated, files or latest)", s)
}

// writeFunc persists one mapped record inside the file transaction. It
// reports false when the record was dropped as a duplicate.
type writeFunc func(ctx context.Context, tx *store.Tx, collectionID int64) (bool, error)

// upsert adapts a Tx upsert method to writeFunc; upserts always write.
func upsert(fn func(ctx context.Context, tx *store.Tx) error) writeFunc {
	return func(ctx context.Context, tx *store.Tx, _ int64) (bool, error) {
		return true, fn(ctx, tx)
	}
}

// Rule describes how one source is normalized: the target table, its
// natural key, and the mapping from a raw item to a write. Map returns
// ok == false when the item has no natural key.
type Rule struct {
	Source     source.SourceType
	Table      string
	NaturalKey string
	Map        func(m *mapping.Mapper, item source.Item) (key string, write writeFunc, ok bool)
}

// DefaultRules returns one rule per known source.
func DefaultRules() map[source.SourceType]Rule {
	return map[source.SourceType]Rule{
		source.SourceTwitter: {
			Source: source.SourceTwitter, Table: "tweets", NaturalKey: "tweet_id",
			Map: func(m *mapping.Mapper, item source.Item) (string, writeFunc, bool) {
				r, ok := m.Tweet(item)
				return r.TweetID, upsert(func(ctx context.Context, tx *store.Tx) error { return tx.UpsertTweet(ctx, r) }), ok
			},
		},
		source.SourceReddit: {
			Source: source.SourceReddit, Table: "reddit_posts", NaturalKey: "post_id",
			Map: func(m *mapping.Mapper, item source.Item) (string, writeFunc, bool) {
				r, ok := m.RedditPost(item)
				return r.PostID, upsert(func(ctx context.Context, tx *store.Tx) error { return tx.UpsertRedditPost(ctx, r) }), ok
			},
		},
		source.SourceNews: {
			Source: source.SourceNews, Table: "articles", NaturalKey: "article_id",
			Map: func(m *mapping.Mapper, item source.Item) (string, writeFunc, bool) {
				r, ok := m.Article(item)
				return r.ArticleID, upsert(func(ctx context.Context, tx *store.Tx) error { return tx.UpsertArticle(ctx, r) }), ok
			},
		},
		source.SourceCrypto: {
			Source: source.SourceCrypto, Table: "crypto_tokens", NaturalKey: "symbol",
			Map: func(m *mapping.Mapper, item source.Item) (string, writeFunc, bool) {
				r, ok := m.CryptoToken(item)
				return r.Symbol, upsert(func(ctx context.Context, tx *store.Tx) error { return tx.UpsertCryptoToken(ctx, r) }), ok
			},
		},
		source.SourceDexScreener: {
			Source: source.SourceDexScreener, Table: "dexscreener_pairs", NaturalKey: "pair_id",
			Map: func(m *mapping.Mapper, item source.Item) (string, writeFunc, bool) {
				r, ok := m.DexScreenerPair(item)
				return r.PairID, upsert(func(ctx context.Context, tx *store.Tx) error { return tx.UpsertDexScreenerPair(ctx, r) }), ok
			},
		},
		source.SourceDexPaprika: {
			Source: source.SourceDexPaprika, Table: "dexpaprika_pairs", NaturalKey: "pair_id",
			Map: func(m *mapping.Mapper, item source.Item) (string, writeFunc, bool) {
				r, ok := m.DexPaprikaPair(item)
				return r.PairID, upsert(func(ctx context.Context, tx *store.Tx) error { return tx.UpsertDexPaprikaPair(ctx, r) }), ok
			},
		},
	}
}

// contentRule maps any source into the generic content_items bucket.
func contentRule(src source.SourceType) Rule {
	return Rule{
		Source: src, Table: "content_items", NaturalKey: "external_id",
		Map: func(m *mapping.Mapper, item source.Item) (string, writeFunc, bool) {
			ci, ok := m.ContentItem(src, item)
			return ci.ExternalID, func(ctx context.Context, tx *store.Tx, collectionID int64) (bool, error) {
				return tx.InsertContentItem(ctx, src, collectionID, ci)
			}, ok
		},
	}
}
