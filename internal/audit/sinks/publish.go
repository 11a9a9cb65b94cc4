package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/buzzcrawl/internal/audit"
	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

// PublishSink forwards audit events to a message topic so downstream
// consumers (analysis, billing) can react to them.
type PublishSink struct {
	publisher crawler.Publisher
	topic     string
	// IncludeHistory also publishes history events with their full results.
	IncludeHistory bool
}

// NewPublishSink wires publisher to topic.
func NewPublishSink(publisher crawler.Publisher, topic string) *PublishSink {
	return &PublishSink{publisher: publisher, topic: topic, IncludeHistory: true}
}

// Consume publishes each event. All events are attempted; failures are joined.
func (s *PublishSink) Consume(ctx context.Context, batch []audit.Event) error {
	var errs []error
	for _, evt := range batch {
		if evt.Type == audit.TypeHistory && !s.IncludeHistory {
			continue
		}
		if _, err := s.publisher.Publish(ctx, s.topic, evt); err != nil {
			errs = append(errs, fmt.Errorf("publish %s event: %w", evt.Type, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
