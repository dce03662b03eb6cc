package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"vialactivo/pkg/cache"
	embeddednats "vialactivo/pkg/services/embedded-nats"
	"vialactivo/pkg/shared"
)

type Manager struct {
	workers []Worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// NewManager wires the statistics refresher and the audit loggers to the
// embedded server. The streams and durable consumers must already exist.
func NewManager(natsClient *embeddednats.EmbeddedNATS, statsCache *cache.StatisticsCache, logger *zap.Logger) (*Manager, error) {
	if natsClient.Connection() == nil {
		return nil, fmt.Errorf("NATS connection not initialized")
	}

	js := natsClient.JetStream()
	if js == nil {
		return nil, fmt.Errorf("JetStream not initialized")
	}

	return NewManagerWithWorkers(logger,
		NewStatisticsWorker(js, statsCache, logger),
		NewAuditWorker("ReportAuditWorker", js, shared.StreamReports, shared.SubjectReportsAll, logger),
		NewAuditWorker("AdminAuditWorker", js, shared.StreamAdmins, shared.SubjectAdminsAll, logger),
	), nil
}

func NewManagerWithWorkers(logger *zap.Logger, workers ...Worker) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.Named("workers"),
	}
}

// Consumers lists the durable consumers the default workers bind to.
func Consumers() []struct{ Stream, Consumer, Filter string } {
	return []struct{ Stream, Consumer, Filter string }{
		{shared.StreamReports, shared.ConsumerStatisticsRefresher, shared.SubjectReportsAll},
		{shared.StreamReports, shared.ConsumerAuditLogger, shared.SubjectReportsAll},
		{shared.StreamAdmins, shared.ConsumerAuditLogger, shared.SubjectAdminsAll},
	}
}

func (m *Manager) Start() error {
	m.logger.Info("Starting NATS workers")

	for _, worker := range m.workers {
		m.wg.Add(1)
		go func(w Worker) {
			defer m.wg.Done()

			m.logger.Debug("Starting worker", zap.String("worker", w.Name()))
			if err := w.Start(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("Worker error", zap.String("worker", w.Name()), zap.Error(err))
			}
			m.logger.Debug("Worker stopped", zap.String("worker", w.Name()))
		}(worker)
	}

	m.logger.Info("Started workers", zap.Int("count", len(m.workers)))
	return nil
}

func (m *Manager) Stop() error {
	m.logger.Info("Stopping NATS workers")

	m.cancel()

	for _, worker := range m.workers {
		if err := worker.Stop(); err != nil {
			m.logger.Warn("Error stopping worker", zap.String("worker", worker.Name()), zap.Error(err))
		}
	}

	m.wg.Wait()

	m.logger.Info("All workers stopped")
	return nil
}
