package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/elonfeng/degendigest/internal/pipeline"
	"github.com/elonfeng/degendigest/internal/scheduler"
	"github.com/elonfeng/degendigest/internal/store"
	"github.com/elonfeng/degendigest/pkg/digest"
	"github.com/elonfeng/degendigest/pkg/source"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// limitParam parses ?limit=. Missing means the store default; the store
// clamps the rest.
func limitParam(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func list[T any](s *Server, w http.ResponseWriter, r *http.Request, fetch func(limit int) ([]T, error)) {
	limit, ok := limitParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	rows, err := fetch(limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if rows == nil {
		rows = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  rows,
		"count": len(rows),
	})
}

func (s *Server) handleTwitter(w http.ResponseWriter, r *http.Request) {
	sort := r.URL.Query().Get("sort")
	list(s, w, r, func(limit int) ([]store.TweetRow, error) {
		return s.store.ListTweets(r.Context(), sort, limit)
	})
}

func (s *Server) handleReddit(w http.ResponseWriter, r *http.Request) {
	sort := r.URL.Query().Get("sort")
	list(s, w, r, func(limit int) ([]store.RedditPostRow, error) {
		return s.store.ListRedditPosts(r.Context(), sort, limit)
	})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	list(s, w, r, func(limit int) ([]store.ArticleRow, error) {
		return s.store.ListArticles(r.Context(), limit)
	})
}

func (s *Server) handleCrypto(w http.ResponseWriter, r *http.Request) {
	list(s, w, r, func(limit int) ([]store.CryptoTokenRow, error) {
		return s.store.ListCryptoTokens(r.Context(), limit)
	})
}

func (s *Server) handleDex(w http.ResponseWriter, r *http.Request) {
	src := source.SourceDexScreener
	if v := r.URL.Query().Get("source"); v != "" {
		src = source.SourceType(v)
	}
	if src != source.SourceDexScreener && src != source.SourceDexPaprika {
		writeError(w, http.StatusBadRequest, "source must be dexscreener or dexpaprika")
		return
	}
	list(s, w, r, func(limit int) ([]store.DexPairRow, error) {
		return s.store.ListDexPairs(r.Context(), src, limit)
	})
}

type crawlerView struct {
	store.CrawlerStatus
	EffectiveStatus store.CrawlerState `json:"effective_status"`
}

func (s *Server) handleCrawlers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListCrawlerStatus(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	now := s.now()
	views := make([]crawlerView, len(rows))
	for i, cs := range rows {
		views[i] = crawlerView{CrawlerStatus: cs, EffectiveStatus: cs.EffectiveStatus(now)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  views,
		"count": len(views),
	})
}

func (s *Server) handleDigests(w http.ResponseWriter, r *http.Request) {
	entries, err := s.digests.List()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"count": len(entries),
	})
}

func (s *Server) handleLatestDigest(w http.ResponseWriter, r *http.Request) {
	d, err := s.digests.Latest()
	s.writeDigest(w, r, d, err)
}

func (s *Server) handleCurrentDigest(w http.ResponseWriter, r *http.Request) {
	d, err := s.digests.Current()
	s.writeDigest(w, r, d, err)
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if _, err := digest.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := s.digests.Get(date)
	s.writeDigest(w, r, d, err)
}

type digestView struct {
	*digest.Digest
	Summary digest.Summary `json:"summary"`
}

// writeDigest replies with the digest and its outline as JSON, raw markdown
// for ?format=markdown, or rendered HTML for ?format=html.
func (s *Server) writeDigest(w http.ResponseWriter, r *http.Request, d *digest.Digest, err error) {
	if errors.Is(err, digest.ErrNotFound) {
		writeError(w, http.StatusNotFound, "digest not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "html":
		html, err := digest.RenderHTML(d.Content)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, html)
	case "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		io.WriteString(w, d.Content)
	default:
		writeJSON(w, http.StatusOK, digestView{Digest: d, Summary: digest.Summarize(d.Content)})
	}
}

type refreshResponse struct {
	Status        string                  `json:"status"`
	Metrics       *pipeline.SourceReport  `json:"metrics,omitempty"`
	ProcessedData []pipeline.SourceReport `json:"processed_data,omitempty"`
	DigestContent string                  `json:"digest_content,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeJSON(w, http.StatusServiceUnavailable, refreshResponse{Status: "error", Error: "refresh is not enabled"})
		return
	}

	var opts scheduler.RefreshOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, refreshResponse{Status: "error", Error: "invalid request body"})
		return
	}

	res, err := s.refresher.Refresh(r.Context(), opts)
	resp := refreshResponse{Status: "success"}
	if res != nil {
		totals := res.Report.Totals()
		resp.Metrics = &totals
		resp.ProcessedData = res.Report.Sources
		if res.Digest != nil {
			resp.DigestContent = res.Digest.Content
		}
	}
	if err != nil {
		s.log.Error("refresh failed", zap.Error(err))
		resp.Status, resp.Error = "error", err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}
