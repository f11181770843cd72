package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# Degen Digest - 2025-06-02

_Generated somewhere._

## Executive Summary

- **Hot tickers:** $SOL (3 mentions on reddit, twitter)
- **Top gainer:** PEPE +45.0%

## Twitter

- @alice: [gm](https://x.com/alice/1) (10 likes, 1 retweets, 0 replies)

## News

_Nothing new._
`

func TestSummarize(t *testing.T) {
	sum := Summarize(sample)
	assert.Equal(t, "Degen Digest - 2025-06-02", sum.Title)
	require.Len(t, sum.Sections, 3)

	exec := sum.Section("executive summary")
	require.NotNil(t, exec)
	assert.Equal(t, []string{
		"Hot tickers: $SOL (3 mentions on reddit, twitter)",
		"Top gainer: PEPE +45.0%",
	}, exec.Bullets)
	assert.Equal(t, []string{
		"**Hot tickers:** $SOL (3 mentions on reddit, twitter)",
		"**Top gainer:** PEPE +45.0%",
	}, exec.Markdown)

	tw := sum.Section(HeadingTwitter)
	require.NotNil(t, tw)
	assert.Equal(t, []string{"@alice: gm (10 likes, 1 retweets, 0 replies)"}, tw.Bullets)
	assert.Equal(t, []string{"@alice: [gm](https://x.com/alice/1) (10 likes, 1 retweets, 0 replies)"}, tw.Markdown)

	news := sum.Section(HeadingNews)
	require.NotNil(t, news)
	assert.Empty(t, news.Bullets)

	assert.Nil(t, sum.Section("Reddit"))
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize("")
	assert.Empty(t, sum.Title)
	assert.Empty(t, sum.Sections)

	sum = Summarize("- orphan bullet\n\nplain text\n")
	assert.Empty(t, sum.Sections, "lists before any section are ignored")
}

func TestRenderHTML(t *testing.T) {
	out, err := RenderHTML(sample)
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Degen Digest - 2025-06-02</h1>")
	assert.Contains(t, out, "<h2>Executive Summary</h2>")
	assert.Contains(t, out, `<a href="https://x.com/alice/1">gm</a>`)
	assert.Contains(t, out, "<strong>Top gainer:</strong>")
}
