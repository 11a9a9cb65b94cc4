package audit

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

// Type names the kind of audit record.
type Type string

// Supported audit event types.
const (
	// TypeRequest is emitted once per successful call, new or cached.
	TypeRequest Type = "request"
	// TypeError is emitted for every call that ends in an error.
	TypeError Type = "error"
	// TypeSourceFailure is emitted for each source that failed inside a call.
	TypeSourceFailure Type = "source_failure"
	// TypeHistory carries the full result of a genuine (uncached) crawl.
	TypeHistory Type = "history"
)

// Event is one audit record.
type Event struct {
	RequestID   string               `json:"request_id"`
	TS          time.Time            `json:"ts"`
	Type        Type                 `json:"type"`
	UserID      string               `json:"user_id"`
	InputText   string               `json:"input_text,omitempty"`
	Sources     []string             `json:"sources,omitempty"`
	FromCache   bool                 `json:"from_cache,omitempty"`
	FinalCredit int                  `json:"final_credit,omitempty"`
	ErrorKind   crawler.ErrorKind    `json:"error_kind,omitempty"`
	Message     string               `json:"message,omitempty"`
	SourceID    string               `json:"source_id,omitempty"`
	Dur         time.Duration        `json:"duration_ns,omitempty"`
	Result      *crawler.CrawlResult `json:"result,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Type {
	case TypeRequest:
	case TypeError:
		if e.ErrorKind == "" {
			return errors.New("error event requires error kind")
		}
	case TypeSourceFailure:
		if e.SourceID == "" {
			return errors.New("source failure requires source id")
		}
	case TypeHistory:
		if e.Result == nil {
			return errors.New("history event requires result")
		}
		if e.RequestID == "" {
			return errors.New("history event requires request id")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Attributes returns the routing attributes attached to published events.
func (e Event) Attributes() map[string]string {
	attrs := map[string]string{"type": string(e.Type)}
	if e.RequestID != "" {
		attrs["request_id"] = e.RequestID
	}
	if e.SourceID != "" {
		attrs["source_id"] = e.SourceID
	}
	return attrs
}
