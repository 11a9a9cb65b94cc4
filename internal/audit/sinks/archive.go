package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/audit"
	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

// ArchiveSink writes every history event as a JSON document to a blob store,
// keyed by date and request id.
type ArchiveSink struct {
	store  crawler.BlobStore
	prefix string
	logger *zap.Logger
}

type archiveRecord struct {
	RequestID string               `json:"request_id"`
	UserID    string               `json:"user_id"`
	Keyword   string               `json:"keyword"`
	Sources   []string             `json:"sources"`
	CrawledAt string               `json:"crawled_at"`
	Result    *crawler.CrawlResult `json:"result"`
}

// NewArchiveSink builds an ArchiveSink writing under prefix.
func NewArchiveSink(store crawler.BlobStore, prefix string, logger *zap.Logger) *ArchiveSink {
	if prefix == "" {
		prefix = "crawl_results"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{store: store, prefix: prefix, logger: logger.Named("archive")}
}

// ObjectPath returns the blob path used for evt.
func (s *ArchiveSink) ObjectPath(evt audit.Event) string {
	ts := evt.TS.UTC()
	return path.Join(s.prefix, ts.Format("2006/01/02"), evt.RequestID+".json")
}

// Consume archives history events and ignores the rest.
func (s *ArchiveSink) Consume(ctx context.Context, batch []audit.Event) error {
	var errs []error
	for _, evt := range batch {
		if evt.Type != audit.TypeHistory || evt.Result == nil {
			continue
		}
		rec := archiveRecord{
			RequestID: evt.RequestID,
			UserID:    evt.UserID,
			Keyword:   evt.InputText,
			Sources:   evt.Sources,
			CrawledAt: evt.TS.UTC().Format("2006-01-02T15:04:05Z"),
			Result:    evt.Result,
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal archive record: %w", err))
			continue
		}
		uri, err := s.store.PutObject(ctx, s.ObjectPath(evt), "application/json", bytes.NewReader(data))
		if err != nil {
			errs = append(errs, fmt.Errorf("archive %s: %w", evt.RequestID, err))
			continue
		}
		s.logger.Debug("crawl result archived", zap.String("request_id", evt.RequestID), zap.String("uri", uri))
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
