package workers

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"vialactivo/pkg/shared"
)

// AuditWorker writes every event of a stream to the structured log.
type AuditWorker struct {
	*BaseWorker
}

func NewAuditWorker(name string, js nats.JetStreamContext, stream, subject string, logger *zap.Logger) *AuditWorker {
	return &AuditWorker{
		BaseWorker: NewBaseWorker(name, js, stream, shared.ConsumerAuditLogger, subject, logger),
	}
}

func (w *AuditWorker) Start(ctx context.Context) error {
	return w.processMessages(ctx, w.handle)
}

func (w *AuditWorker) handle(msg *nats.Msg) error {
	var event shared.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		w.logger.Warn("Raw event", zap.String("subject", msg.Subject), zap.ByteString("data", msg.Data))
		return nil
	}

	fields := []zap.Field{
		zap.String("subject", msg.Subject),
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.Time("timestamp", event.Timestamp),
	}
	for _, key := range []string{"id", "email", "estado", "tipo", "municipio"} {
		if v, ok := event.Data[key]; ok {
			fields = append(fields, zap.Any(key, v))
		}
	}
	w.logger.Info("Audit event", fields...)
	return nil
}
