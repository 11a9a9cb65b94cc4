package crawler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the stable, machine-readable category of a crawl failure.
type ErrorKind string

// Error kinds surfaced by the orchestrator and its collaborators.
const (
	ErrKindValidation         ErrorKind = "validation"
	ErrKindInputTooLong       ErrorKind = "input_too_long"
	ErrKindNoSources          ErrorKind = "no_sources"
	ErrKindSNSOnly            ErrorKind = "sns_only"
	ErrKindUnsupportedSource  ErrorKind = "unsupported_source"
	ErrKindRateLimited        ErrorKind = "rate_limited"
	ErrKindInsufficientCredit ErrorKind = "insufficient_credit"
	ErrKindSourceFetchFailed  ErrorKind = "source_fetch_failed"
	ErrKindAllSourcesFailed   ErrorKind = "all_sources_failed"
	ErrKindCacheUnavailable   ErrorKind = "cache_unavailable"
	ErrKindInternal           ErrorKind = "internal"
)

// Error is the typed failure returned across the orchestrator boundary.
// Only the fields relevant to Kind are populated.
type Error struct {
	Kind    ErrorKind
	Message string

	CurrentLength int
	MaxLength     int
	Supported     []string
	Unsupported   []string
	WaitSeconds   int64
	Usage         *RateUsage
	Required      int
	Balance       int
	Failed        []string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can compare against the sentinel helpers below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrValidation         = &Error{Kind: ErrKindValidation}
	ErrInputTooLong       = &Error{Kind: ErrKindInputTooLong}
	ErrNoSources          = &Error{Kind: ErrKindNoSources}
	ErrSNSOnly            = &Error{Kind: ErrKindSNSOnly}
	ErrUnsupportedSource  = &Error{Kind: ErrKindUnsupportedSource}
	ErrRateLimited        = &Error{Kind: ErrKindRateLimited}
	ErrInsufficientCredit = &Error{Kind: ErrKindInsufficientCredit}
	ErrAllSourcesFailed   = &Error{Kind: ErrKindAllSourcesFailed}
	ErrCacheUnavailable   = &Error{Kind: ErrKindCacheUnavailable}
)

// KindOf returns the ErrorKind carried by err, or ErrKindInternal for
// anything that is not a *Error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindInternal
}

// NewValidationError reports a malformed request.
func NewValidationError(msg string) *Error {
	return &Error{Kind: ErrKindValidation, Message: msg}
}

// NewEmptyInputError reports a blank search phrase. It carries the same length
// context as NewInputTooLongError.
func NewEmptyInputError(max int) *Error {
	return &Error{
		Kind:          ErrKindValidation,
		Message:       "input_text is required",
		CurrentLength: 0,
		MaxLength:     max,
	}
}

// NewInputTooLongError reports an oversized search phrase.
func NewInputTooLongError(current, max int) *Error {
	return &Error{
		Kind:          ErrKindInputTooLong,
		Message:       fmt.Sprintf("input text must be at most %d characters", max),
		CurrentLength: current,
		MaxLength:     max,
	}
}

// NewNoSourcesError reports an empty source selection.
func NewNoSourcesError(supported []string) *Error {
	return &Error{
		Kind:      ErrKindNoSources,
		Message:   "at least one source required",
		Supported: supported,
	}
}

// NewSNSOnlyError reports a selection made only of sns sources.
func NewSNSOnlyError(selected, supported []string) *Error {
	return &Error{
		Kind:        ErrKindSNSOnly,
		Message:     "all selected sources are sns sources; include at least one community source",
		Supported:   supported,
		Unsupported: selected,
	}
}

// NewUnsupportedSourceError reports sources that cannot be crawled.
func NewUnsupportedSourceError(unsupported, supported []string) *Error {
	return &Error{
		Kind:        ErrKindUnsupportedSource,
		Message:     "unsupported sources: " + strings.Join(unsupported, ", "),
		Supported:   supported,
		Unsupported: unsupported,
	}
}

// NewRateLimitedError reports a full sliding window.
func NewRateLimitedError(limit int, waitSeconds int64, usage RateUsage) *Error {
	hours := waitSeconds / 3600
	minutes := (waitSeconds % 3600) / 60
	return &Error{
		Kind:        ErrKindRateLimited,
		Message:     fmt.Sprintf("request limit of %d exceeded; retry in %dh %dm", limit, hours, minutes),
		WaitSeconds: waitSeconds,
		Usage:       &usage,
	}
}

// NewInsufficientCreditError reports a charge larger than the balance.
func NewInsufficientCreditError(required, balance int) *Error {
	return &Error{
		Kind:     ErrKindInsufficientCredit,
		Message:  fmt.Sprintf("insufficient credits: required %d", required),
		Required: required,
		Balance:  balance,
	}
}

// NewAllSourcesFailedError reports that no source produced a result.
func NewAllSourcesFailedError(failed []string) *Error {
	return &Error{
		Kind:    ErrKindAllSourcesFailed,
		Message: "all sources failed",
		Failed:  failed,
	}
}

// NewInternalError wraps an unexpected fault.
func NewInternalError(msg string, err error) *Error {
	return &Error{Kind: ErrKindInternal, Message: msg, Err: err}
}
