// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

// Publisher publishes JSON payloads to Pub/Sub topics. Topic handles are
// created lazily and reused; Close flushes and stops them.
type Publisher struct {
	client       *pubsub.Client
	defaultTopic string
	logger       *zap.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New wraps an existing client. defaultTopic is used when Publish is called
// with an empty topic.
func New(client *pubsub.Client, defaultTopic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:       client,
		defaultTopic: defaultTopic,
		logger:       logger.Named("pubsub"),
		topics:       make(map[string]*pubsub.Topic),
	}
}

// Dial creates a client using Application Default Credentials and checks that
// defaultTopic exists before returning.
func Dial(ctx context.Context, projectID, defaultTopic string, logger *zap.Logger) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	ok, err := client.Topic(defaultTopic).Exists(ctx)
	if err != nil || !ok {
		if closeErr := client.Close(); closeErr != nil && logger != nil {
			logger.Warn("failed to close pubsub client after topic check", zap.Error(closeErr))
		}
		if err != nil {
			return nil, fmt.Errorf("check pubsub topic %q: %w", defaultTopic, err)
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", defaultTopic, projectID)
	}
	return New(client, defaultTopic, logger), nil
}

// Publish marshals the payload to JSON, publishes it and waits for the server
// to acknowledge it.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p == nil || p.client == nil {
		return "", errors.New("pubsub publisher is not configured")
	}
	if topic == "" {
		topic = p.defaultTopic
	}
	if topic == "" {
		return "", errors.New("pubsub topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{Data: data}
	if a, ok := payload.(crawler.Attributed); ok {
		msg.Attributes = a.Attributes()
	}

	id, err := p.topic(topic).Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message to %s: %w", topic, err)
	}
	return id, nil
}

func (p *Publisher) topic(id string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[id]
	if !ok {
		t = p.client.Topic(id)
		p.topics[id] = t
	}
	return t
}

// Close stops every topic handle and closes the client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	p.mu.Lock()
	for id, t := range p.topics {
		t.Stop()
		delete(p.topics, id)
	}
	p.mu.Unlock()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
