package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"vialactivo/pkg/shared"
)

// CacheInvalidator drops a cached statistics snapshot.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// StatisticsWorker invalidates the statistics cache whenever a report is
// created, updated or deleted, so the next read recomputes it.
type StatisticsWorker struct {
	*BaseWorker
	cache CacheInvalidator
}

func NewStatisticsWorker(js nats.JetStreamContext, cache CacheInvalidator, logger *zap.Logger) *StatisticsWorker {
	return &StatisticsWorker{
		BaseWorker: NewBaseWorker(
			"StatisticsWorker",
			js,
			shared.StreamReports,
			shared.ConsumerStatisticsRefresher,
			shared.SubjectReportsAll,
			logger,
		),
		cache: cache,
	}
}

func (w *StatisticsWorker) Start(ctx context.Context) error {
	return w.processMessages(ctx, w.handle)
}

func (w *StatisticsWorker) handle(msg *nats.Msg) error {
	var event shared.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// malformed payloads are acked; redelivery would not fix them
		w.logger.Warn("Skipping undecodable report event",
			zap.String("subject", msg.Subject),
			zap.Error(err))
		return nil
	}
	if w.cache == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.cache.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate statistics after %s: %w", event.Type, err)
	}

	w.logger.Debug("Statistics cache invalidated",
		zap.String("event", event.Type),
		zap.String("event_id", event.ID))
	return nil
}
