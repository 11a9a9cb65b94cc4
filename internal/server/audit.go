package server

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/audit"
	"github.com/JakeFAU/buzzcrawl/internal/audit/sinks"
	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	gcppublisher "github.com/JakeFAU/buzzcrawl/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/buzzcrawl/internal/storage/gcs"
	localstorage "github.com/JakeFAU/buzzcrawl/internal/storage/local"
	memorystorage "github.com/JakeFAU/buzzcrawl/internal/storage/memory"
)

func (a *App) setupAuditSinks(ctx context.Context, reg prometheus.Registerer) ([]audit.Sink, error) {
	var sinkList []audit.Sink
	if a.cfg.Audit.Log {
		sinkList = append(sinkList, sinks.NewLogSink(a.logger))
		a.logger.Debug("added audit log sink")
	}
	if a.cfg.Audit.Metrics {
		promSink, err := sinks.NewPrometheusSink(reg)
		if err != nil {
			return nil, fmt.Errorf("audit metrics sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
		a.logger.Debug("added audit prometheus sink")
	}
	if a.cfg.Audit.PubSub {
		publisher, err := gcppublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic, a.logger)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.onClose("pubsub", publisher.Close)
		sinkList = append(sinkList, sinks.NewPublishSink(publisher, a.cfg.PubSub.Topic))
		a.logger.Info("pubsub audit sink initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.Topic),
		)
	}
	if a.cfg.Audit.Archive {
		store, err := a.setupStorage(ctx)
		if err != nil {
			return nil, err
		}
		sinkList = append(sinkList, sinks.NewArchiveSink(store, a.cfg.Storage.Prefix, a.logger))
	}
	if len(sinkList) == 0 {
		a.logger.Warn("audit enabled with no sinks; events are discarded")
	}
	return sinkList, nil
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		store, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.onClose("gcs", store.Close)
		a.logger.Info("using GCS archive storage", zap.String("bucket", a.cfg.Storage.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local archive storage", zap.String("dir", a.cfg.Storage.Dir))
		return store, nil
	default:
		a.logger.Info("using in-memory archive storage")
		return memorystorage.NewBlobStore(), nil
	}
}
