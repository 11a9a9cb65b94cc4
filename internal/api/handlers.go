package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/source"
)

const maxBodyBytes = 64 << 10

type crawlRequest struct {
	UserID    string   `json:"user_id"`
	InputText string   `json:"input_text"`
	Sources   []string `json:"sources"`
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		req.UserID = strings.TrimSpace(r.Header.Get("X-User-ID"))
	}
	res, err := s.crawler.Run(r.Context(), crawler.CrawlRequest{
		UserID:    req.UserID,
		InputText: req.InputText,
		Sources:   req.Sources,
	})
	if err != nil {
		s.writeCrawlError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, res)
}

type sourceEntry struct {
	crawler.Source
	Available bool `json:"available"`
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	supported := s.sources.Supported()
	out := map[crawler.SourceKind][]sourceEntry{}
	for kind, list := range s.sources.Catalog().ByKind() {
		entries := make([]sourceEntry, 0, len(list))
		for _, src := range list {
			entries = append(entries, sourceEntry{Source: src, Available: slices.Contains(supported, src.ID)})
		}
		out[kind] = entries
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"sources": out, "supported": supported})
}

type quoteRequest struct {
	InputText string   `json:"input_text"`
	Sources   []string `json:"sources"`
}

type quoteResponse struct {
	TextBytes int      `json:"text_bytes"`
	Sources   []string `json:"sources"`
	Required  int      `json:"required"`
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	text := strings.TrimSpace(req.InputText)
	if text == "" {
		writeValidationError(s.logger, w, "input_text is required")
		return
	}
	sources := source.Canonical(req.Sources)
	writeJSON(s.logger, w, http.StatusOK, quoteResponse{
		TextBytes: len(text),
		Sources:   sources,
		Required:  s.credits.Quote(len(text), sources),
	})
}

func (s *Server) getCredits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	acct, err := s.credits.Balance(r.Context(), userID)
	if err != nil {
		s.writeCrawlError(w, crawler.NewInternalError("load balance", err))
		return
	}
	writeJSON(s.logger, w, http.StatusOK, acct)
}

type topUpRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) topUp(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	var req topUpRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Amount <= 0 {
		writeValidationError(s.logger, w, "amount must be > 0")
		return
	}
	balance, err := s.credits.Add(r.Context(), userID, req.Amount)
	if err != nil {
		s.writeCrawlError(w, crawler.NewInternalError("top up", err))
		return
	}
	s.logger.Info("credits topped up", zap.String("user_id", userID), zap.Int("amount", req.Amount))
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})
}

func (s *Server) getRateLimit(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, s.limits.Stats(chi.URLParam(r, "user_id")))
}

type rateLimitRequest struct {
	Limit int `json:"limit"`
}

func (s *Server) setRateLimit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	var req rateLimitRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.limits.SetUserLimit(userID, req.Limit); err != nil {
		writeValidationError(s.logger, w, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, s.limits.Stats(userID))
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeValidationError(s.logger, w, "invalid JSON body")
		return false
	}
	return true
}
