package store

import "strings"

// schemaTemplate is shared by both dialects; column types are filled in by
// dialectTypes.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS data_sources (
    id         {{serial}},
    name       TEXT NOT NULL UNIQUE,
    created_at {{ts}} NOT NULL
);

CREATE TABLE IF NOT EXISTS data_collections (
    id                   {{serial}},
    source_id            BIGINT NOT NULL REFERENCES data_sources(id),
    collection_timestamp {{ts}} NOT NULL,
    file_path            TEXT NOT NULL,
    record_count         BIGINT NOT NULL DEFAULT 0,
    file_size_bytes      BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_collections_source_ts ON data_collections(source_id, collection_timestamp);

CREATE TABLE IF NOT EXISTS content_items (
    id            {{serial}},
    collection_id BIGINT REFERENCES data_collections(id),
    source_id     BIGINT NOT NULL REFERENCES data_sources(id),
    external_id   TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    content       TEXT NOT NULL DEFAULT '',
    author        TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL DEFAULT '',
    published_at  {{ts}},
    raw_data      {{json}} NOT NULL,
    created_at    {{ts}} NOT NULL,
    UNIQUE(source_id, external_id)
);

CREATE TABLE IF NOT EXISTS tweets (
    tweet_id        TEXT PRIMARY KEY,
    text            TEXT NOT NULL DEFAULT '',
    author          TEXT NOT NULL DEFAULT '',
    url             TEXT NOT NULL DEFAULT '',
    like_count      BIGINT NOT NULL DEFAULT 0,
    retweet_count   BIGINT NOT NULL DEFAULT 0,
    reply_count     BIGINT NOT NULL DEFAULT 0,
    view_count      BIGINT NOT NULL DEFAULT 0,
    created_at      {{ts}} NOT NULL,
    raw_data        {{json}} NOT NULL,
    first_seen_at   {{ts}} NOT NULL,
    last_updated_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tweets_created_at ON tweets(created_at);

CREATE TABLE IF NOT EXISTS reddit_posts (
    post_id         TEXT PRIMARY KEY,
    title           TEXT NOT NULL DEFAULT '',
    content         TEXT NOT NULL DEFAULT '',
    author          TEXT NOT NULL DEFAULT '',
    subreddit       TEXT NOT NULL DEFAULT '',
    url             TEXT NOT NULL DEFAULT '',
    score           BIGINT NOT NULL DEFAULT 0,
    num_comments    BIGINT NOT NULL DEFAULT 0,
    upvote_ratio    {{float}} NOT NULL DEFAULT 0,
    created_at      {{ts}} NOT NULL,
    raw_data        {{json}} NOT NULL,
    first_seen_at   {{ts}} NOT NULL,
    last_updated_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reddit_posts_created_at ON reddit_posts(created_at);

CREATE TABLE IF NOT EXISTS articles (
    article_id      TEXT PRIMARY KEY,
    title           TEXT NOT NULL DEFAULT '',
    content         TEXT NOT NULL DEFAULT '',
    source          TEXT NOT NULL DEFAULT '',
    author          TEXT NOT NULL DEFAULT '',
    url             TEXT NOT NULL DEFAULT '',
    published_at    {{ts}} NOT NULL,
    raw_data        {{json}} NOT NULL,
    first_seen_at   {{ts}} NOT NULL,
    last_updated_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at);

CREATE TABLE IF NOT EXISTS crypto_tokens (
    symbol           TEXT PRIMARY KEY,
    token_id         TEXT NOT NULL DEFAULT '',
    name             TEXT NOT NULL DEFAULT '',
    network          TEXT NOT NULL DEFAULT '',
    price_usd        {{float}} NOT NULL DEFAULT 0,
    price_change_24h {{float}} NOT NULL DEFAULT 0,
    market_cap       {{float}} NOT NULL DEFAULT 0,
    volume_24h       {{float}} NOT NULL DEFAULT 0,
    market_cap_rank  BIGINT NOT NULL DEFAULT 0,
    raw_data         {{json}} NOT NULL,
    first_seen_at    {{ts}} NOT NULL,
    last_updated_at  {{ts}} NOT NULL
);

{{pairs:dexscreener_pairs}}
{{pairs:dexpaprika_pairs}}
CREATE TABLE IF NOT EXISTS crawler_status (
    name            TEXT PRIMARY KEY,
    status          TEXT NOT NULL,
    last_run_at     {{ts}},
    items_collected BIGINT NOT NULL DEFAULT 0,
    items_last_24h  BIGINT NOT NULL DEFAULT 0,
    items_last_1h   BIGINT NOT NULL DEFAULT 0,
    error_message   TEXT NOT NULL DEFAULT '',
    updated_at      {{ts}} NOT NULL
);
`

// pairsTemplate is the column set shared by both DEX pair tables.
const pairsTemplate = `CREATE TABLE IF NOT EXISTS {{table}} (
    pair_id             TEXT PRIMARY KEY,
    chain_id            TEXT NOT NULL DEFAULT '',
    dex_id              TEXT NOT NULL DEFAULT '',
    url                 TEXT NOT NULL DEFAULT '',
    base_token_address  TEXT NOT NULL DEFAULT '',
    base_token_name     TEXT NOT NULL DEFAULT '',
    base_token_symbol   TEXT NOT NULL DEFAULT '',
    quote_token_address TEXT NOT NULL DEFAULT '',
    quote_token_name    TEXT NOT NULL DEFAULT '',
    quote_token_symbol  TEXT NOT NULL DEFAULT '',
    price_usd           {{float}} NOT NULL DEFAULT 0,
    price_change_24h    {{float}} NOT NULL DEFAULT 0,
    volume_24h          {{float}} NOT NULL DEFAULT 0,
    liquidity_usd       {{float}} NOT NULL DEFAULT 0,
    txns_24h_buys       BIGINT NOT NULL DEFAULT 0,
    txns_24h_sells      BIGINT NOT NULL DEFAULT 0,
    fdv                 {{float}} NOT NULL DEFAULT 0,
    market_cap          {{float}} NOT NULL DEFAULT 0,
    pair_created_at     {{ts}},
    raw_data            {{json}} NOT NULL,
    first_seen_at       {{ts}} NOT NULL,
    last_updated_at     {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_{{table}}_volume ON {{table}}(volume_24h);
`

var dialectTypes = map[string]*strings.Replacer{
	driverPostgres: strings.NewReplacer(
		"{{serial}}", "BIGSERIAL PRIMARY KEY",
		"{{ts}}", "TIMESTAMPTZ",
		"{{float}}", "DOUBLE PRECISION",
		"{{json}}", "JSONB",
	),
	driverSQLite: strings.NewReplacer(
		"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{ts}}", "DATETIME",
		"{{float}}", "REAL",
		"{{json}}", "TEXT",
	),
}

// schemaFor renders the full schema for driver.
func schemaFor(driver string) string {
	s := schemaTemplate
	for _, table := range []string{"dexscreener_pairs", "dexpaprika_pairs"} {
		s = strings.Replace(s, "{{pairs:"+table+"}}",
			strings.ReplaceAll(pairsTemplate, "{{table}}", table), 1)
	}
	return dialectTypes[driver].Replace(s)
}
