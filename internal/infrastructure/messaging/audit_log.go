package messaging

import (
	"context"

	"github.com/garyjia/viaticos/internal/application/dispatcher"
	"github.com/garyjia/viaticos/internal/domain/event"
	"go.uber.org/zap"
)

// NewAuditLogHandler writes every committed event to the audit logger
func NewAuditLogHandler(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		fields := []zap.Field{
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.String("aggregate_type", evt.AggregateType),
			zap.String("aggregate_id", evt.AggregateID),
			zap.Int("version", evt.Version),
			zap.String("actor", evt.Actor),
			zap.String("correlation_id", evt.CorrelationID),
		}
		for k, v := range evt.Payload {
			fields = append(fields, zap.Any("payload."+k, v))
		}
		logger.Info("Domain event", fields...)
		return nil
	}
}
