package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

// errorBody is the payload of every non-2xx response, nested under "error".
// Only the context fields relevant to Kind are set.
type errorBody struct {
	Kind          string             `json:"kind"`
	Message       string             `json:"message"`
	CurrentLength *int               `json:"current_length,omitempty"`
	MaxLength     int                `json:"max_length,omitempty"`
	Supported     []string           `json:"supported,omitempty"`
	Unsupported   []string           `json:"unsupported,omitempty"`
	WaitSeconds   int64              `json:"wait_seconds,omitempty"`
	Stats         *crawler.RateUsage `json:"stats,omitempty"`
	Required      int                `json:"required,omitempty"`
	Balance       *int               `json:"balance,omitempty"`
	Failed        []string           `json:"failed,omitempty"`
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(kind crawler.ErrorKind) int {
	switch kind {
	case crawler.ErrKindValidation, crawler.ErrKindNoSources, crawler.ErrKindSNSOnly, crawler.ErrKindUnsupportedSource:
		return http.StatusBadRequest
	case crawler.ErrKindInputTooLong:
		return http.StatusRequestEntityTooLarge
	case crawler.ErrKindRateLimited:
		return http.StatusTooManyRequests
	case crawler.ErrKindInsufficientCredit:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeCrawlError(w http.ResponseWriter, err error) {
	var ce *crawler.Error
	if !errors.As(err, &ce) {
		ce = crawler.NewInternalError("unexpected failure", err)
	}
	body := errorBody{
		Kind:        string(ce.Kind),
		Message:     ce.Message,
		MaxLength:   ce.MaxLength,
		Supported:   ce.Supported,
		Unsupported: ce.Unsupported,
		WaitSeconds: ce.WaitSeconds,
		Stats:       ce.Usage,
		Required:    ce.Required,
		Failed:      ce.Failed,
	}
	if ce.MaxLength > 0 {
		current := ce.CurrentLength
		body.CurrentLength = &current
	}
	switch ce.Kind {
	case crawler.ErrKindInsufficientCredit:
		balance := ce.Balance
		body.Balance = &balance
	case crawler.ErrKindRateLimited:
		w.Header().Set("Retry-After", strconv.FormatInt(ce.WaitSeconds, 10))
	case crawler.ErrKindInternal:
		s.logger.Error("internal error", zap.Error(err))
		body.Message = "internal server error"
	}
	writeErrorBody(s.logger, w, statusFor(ce.Kind), body)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeErrorBody(logger *zap.Logger, w http.ResponseWriter, status int, body errorBody) {
	writeJSON(logger, w, status, map[string]errorBody{"error": body})
}

func writeValidationError(logger *zap.Logger, w http.ResponseWriter, msg string) {
	writeErrorBody(logger, w, http.StatusBadRequest, errorBody{Kind: string(crawler.ErrKindValidation), Message: msg})
}
