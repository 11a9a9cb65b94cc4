package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/audit"
)

// LogSink writes one structured log line per audit event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("audit")}
}

// Consume logs each event. Errors are logged at warn level.
func (s *LogSink) Consume(_ context.Context, batch []audit.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("request_id", evt.RequestID),
			zap.String("type", string(evt.Type)),
			zap.String("user_id", evt.UserID),
			zap.Time("event_ts", evt.TS),
		}
		switch evt.Type {
		case audit.TypeRequest:
			fields = append(fields,
				zap.Strings("sources", evt.Sources),
				zap.Bool("from_cache", evt.FromCache),
				zap.Int("final_credit", evt.FinalCredit),
				zap.Int("input_length", len([]rune(evt.InputText))),
				zap.Duration("dur", evt.Dur),
			)
			s.logger.Info("crawl request", fields...)
		case audit.TypeError:
			fields = append(fields,
				zap.String("error_kind", string(evt.ErrorKind)),
				zap.String("message", evt.Message),
			)
			s.logger.Warn("crawl error", fields...)
		case audit.TypeSourceFailure:
			fields = append(fields,
				zap.String("source", evt.SourceID),
				zap.String("message", evt.Message),
				zap.Duration("dur", evt.Dur),
			)
			s.logger.Warn("source failure", fields...)
		case audit.TypeHistory:
			total := 0
			if evt.Result != nil {
				total = evt.Result.Meta.TotalCount
			}
			fields = append(fields, zap.Int("total_count", total))
			s.logger.Debug("crawl history", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
