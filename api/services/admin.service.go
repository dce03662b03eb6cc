package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vialactivo/pkg/ontology"
	"vialactivo/pkg/shared"
	"vialactivo/pkg/store"
)

type AdminService struct {
	store  store.AdminStore
	events EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

func NewAdminService(st store.AdminStore, events EventPublisher, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{
		store:  st,
		events: events,
		logger: logger.Named("admin-service"),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Register returns the existing record when the email is already an admin.
// A concurrent insert of the same email resolves to the winner's record.
func (s *AdminService) Register(ctx context.Context, email string) (*ontology.AdminRecord, error) {
	email = ontology.NormalizeEmail(email)
	if err := ontology.ValidateEmail(email); err != nil {
		return nil, err
	}

	existing, err := s.store.FindAdmin(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}

	admin := &ontology.AdminRecord{Email: email, CreatedAt: s.now()}
	if err := s.store.InsertAdmin(ctx, admin); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return s.store.FindAdmin(ctx, email)
		}
		return nil, fmt.Errorf("failed to register admin: %w", err)
	}

	s.logger.Info("Admin registered", zap.String("email", email))

	go s.publishRegistered(admin)

	return admin, nil
}

func (s *AdminService) FindByEmail(ctx context.Context, email string) (*ontology.AdminRecord, error) {
	email = ontology.NormalizeEmail(email)
	if err := ontology.ValidateEmail(email); err != nil {
		return nil, err
	}
	admin, err := s.store.FindAdmin(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	return admin, nil
}

func (s *AdminService) publishRegistered(admin *ontology.AdminRecord) {
	if s.events == nil {
		return
	}

	event := shared.Event{
		ID:      uuid.New().String(),
		Type:    shared.EventTypeRegistered,
		Subject: shared.SubjectAdminRegistered,
		Data: map[string]interface{}{
			"email": admin.Email,
		},
		Timestamp: time.Now().UTC(),
		Source:    shared.EventSource,
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal admin event", zap.Error(err))
		return
	}

	// one registration per email, so the email alone is a stable dedup id
	msgID := fmt.Sprintf("%s-%s", admin.Email, shared.EventTypeRegistered)
	if err := s.events.PublishWithDedup(event.Subject, data, msgID); err != nil {
		s.logger.Warn("Failed to publish admin event", zap.Error(err))
	}
}
