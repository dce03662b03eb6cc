package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"vialactivo/pkg/ontology"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) InsertReport(ctx context.Context, r *ontology.Report) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockStore) UpdateReport(ctx context.Context, r *ontology.Report) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockStore) DeleteReport(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) FindReport(ctx context.Context, id string) (*ontology.Report, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*ontology.Report)
	return r, args.Error(1)
}

func (m *mockStore) FindReportsByUser(ctx context.Context, userID string) ([]ontology.Report, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]ontology.Report), args.Error(1)
}

func (m *mockStore) FindAllReports(ctx context.Context) ([]ontology.Report, error) {
	args := m.Called(ctx)
	return args.Get(0).([]ontology.Report), args.Error(1)
}

func (m *mockStore) Near(ctx context.Context, q ontology.NearQuery) ([]ontology.Report, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]ontology.Report), args.Error(1)
}

func (m *mockStore) Within(ctx context.Context, q ontology.BoundingBoxQuery) ([]ontology.Report, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]ontology.Report), args.Error(1)
}

func (m *mockStore) InsertAdmin(ctx context.Context, a *ontology.AdminRecord) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockStore) FindAdmin(ctx context.Context, email string) (*ontology.AdminRecord, error) {
	args := m.Called(ctx, email)
	a, _ := args.Get(0).(*ontology.AdminRecord)
	return a, args.Error(1)
}
