package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vialactivo/pkg/ontology"
	"vialactivo/pkg/shared"
	"vialactivo/pkg/store"
)

// EventPublisher is satisfied by the embedded NATS server.
type EventPublisher interface {
	PublishWithDedup(subject string, data []byte, msgID string) error
}

// CacheInvalidator drops derived data after a report write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type ReportService struct {
	store       store.ReportStore
	events      EventPublisher
	invalidator CacheInvalidator
	logger      *zap.Logger
	now         func() time.Time
}

// NewReportService builds the service. events may be nil when the event bus
// is disabled.
func NewReportService(st store.ReportStore, events EventPublisher, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		store:  st,
		events: events,
		logger: logger.Named("report-service"),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// WithCacheInvalidator makes every successful write drop inv before
// returning.
func (s *ReportService) WithCacheInvalidator(inv CacheInvalidator) *ReportService {
	s.invalidator = inv
	return s
}

func (s *ReportService) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("Failed to invalidate statistics cache", zap.Error(err))
	}
}

func (s *ReportService) Create(ctx context.Context, req ontology.CreateReportRequest) (*ontology.Report, error) {
	report, err := ontology.NewReport(req, uuid.New().String(), s.now())
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	s.invalidate(ctx)

	s.logger.Info("Report created",
		zap.String("id", report.ID),
		zap.String("tipo", string(report.Tipo)),
		zap.String("usuario_id", report.UsuarioID))

	go s.publishReportEvent(report, shared.EventTypeCreated)

	return report, nil
}

// Update merges req onto the stored report and validates the result. Any
// estado may replace any other.
func (s *ReportService) Update(ctx context.Context, id string, req ontology.UpdateReportRequest) (*ontology.Report, error) {
	report, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Apply(report)
	if err := ontology.ValidateReport(report); err != nil {
		return nil, err
	}
	report.UpdatedAt = s.now()

	if err := s.store.UpdateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to update report %s: %w", id, err)
	}
	s.invalidate(ctx)

	s.logger.Info("Report updated",
		zap.String("id", report.ID),
		zap.String("estado", string(report.Estado)))

	go s.publishReportEvent(report, shared.EventTypeUpdated)

	return report, nil
}

func (s *ReportService) Delete(ctx context.Context, id string) error {
	id, err := checkID(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteReport(ctx, id); err != nil {
		return fmt.Errorf("failed to delete report %s: %w", id, err)
	}
	s.invalidate(ctx)

	s.logger.Info("Report deleted", zap.String("id", id))

	go s.publishReportEvent(&ontology.Report{ID: id}, shared.EventTypeDeleted)

	return nil
}

// FindByID rejects malformed ids with shared.ErrInvalidID before any lookup.
// Any form uuid.Parse accepts is looked up by its canonical spelling.
func (s *ReportService) FindByID(ctx context.Context, id string) (*ontology.Report, error) {
	id, err := checkID(id)
	if err != nil {
		return nil, err
	}
	report, err := s.store.FindReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}
	return report, nil
}

func (s *ReportService) FindByUser(ctx context.Context, userID string) ([]ontology.Report, error) {
	reports, err := s.store.FindReportsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports for user: %w", err)
	}
	return reports, nil
}

func (s *ReportService) FindAll(ctx context.Context) ([]ontology.Report, error) {
	reports, err := s.store.FindAllReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// Near returns reports within the radius, nearest first. A zero radius
// means ontology.DefaultNearDistanceMeters.
func (s *ReportService) Near(ctx context.Context, q ontology.NearQuery) ([]ontology.Report, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	reports, err := s.store.Near(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby reports: %w", err)
	}
	return reports, nil
}

func (s *ReportService) InBoundingBox(ctx context.Context, q ontology.BoundingBoxQuery) ([]ontology.Report, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	reports, err := s.store.Within(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports in area: %w", err)
	}
	return reports, nil
}

// checkID returns the canonical lowercase form of id.
func checkID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", shared.ErrInvalidID, id)
	}
	return parsed.String(), nil
}

func (s *ReportService) publishReportEvent(report *ontology.Report, eventType string) {
	if s.events == nil {
		return
	}

	event := shared.Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Subject: shared.ReportEventSubject(eventType),
		Data: map[string]interface{}{
			"id": report.ID,
		},
		Timestamp: time.Now().UTC(),
		Source:    shared.EventSource,
	}

	if eventType == shared.EventTypeCreated || eventType == shared.EventTypeUpdated {
		event.Data["estado"] = report.Estado
		event.Data["tipo"] = report.Tipo
		event.Data["municipio"] = report.Municipio
		event.Data["report"] = report
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal report event", zap.Error(err))
		return
	}

	msgID := fmt.Sprintf("%s-%s-%d", report.ID, eventType, time.Now().UnixNano())

	if err := s.events.PublishWithDedup(event.Subject, data, msgID); err != nil {
		s.logger.Warn("Failed to publish report event",
			zap.String("subject", event.Subject),
			zap.Error(err))
		return
	}
	s.logger.Debug("Published report event",
		zap.String("type", eventType),
		zap.String("subject", event.Subject))
}
