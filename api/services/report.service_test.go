package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vialactivo/db"
	"vialactivo/pkg/ontology"
	"vialactivo/pkg/shared"
	"vialactivo/pkg/store/sqlite"
)

type published struct {
	Subject string
	Event   shared.Event
	MsgID   string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) PublishWithDedup(subject string, data []byte, msgID string) error {
	var e shared.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Subject: subject, Event: e, MsgID: msgID})
	return nil
}

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Subject
	}
	return out
}

func newSQLiteStore(t *testing.T) *sqlite.Store {
	t.Helper()
	svc, err := db.New(&db.Config{DBPath: db.MemoryPath, AutoInitialize: true}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return sqlite.New(svc, zap.NewNop())
}

func createRequest(lng, lat float64) ontology.CreateReportRequest {
	p := ontology.NewPoint(lng, lat)
	return ontology.CreateReportRequest{
		Titulo:        "Bache",
		Descripcion:   "Bache grande en el canal derecho",
		Ubicacion:     &p,
		Tipo:          string(ontology.TipoPothole),
		UsuarioID:     "user-1",
		NombreUsuario: "Ana",
		EmailUsuario:  "ana@example.com",
		Municipio:     "Sucre",
		FotoURL:       "/uploads/evidencias/a.jpg",
	}
}

func TestReportServiceCreateAndFind(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewReportService(newSQLiteStore(t), pub, zap.NewNop())
	ctx := context.Background()

	req := createRequest(-66.9, 10.5)
	alto, ancho, largo := 10.0, 50.0, 100.0
	req.Medidas = &ontology.Medidas{Alto: &alto, Ancho: &ancho, Largo: &largo}
	req.Vialidad = string(ontology.VialidadCalle)

	created, err := svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = uuid.Parse(created.ID)
	require.NoError(t, err)

	got, err := svc.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, req.Titulo, got.Titulo)
	assert.Equal(t, ontology.VialidadCalle, got.Vialidad)
	assert.Equal(t, ontology.EstadoPendiente, got.Estado)
	assert.Equal(t, ontology.NivelMedio, got.Nivel)
	assert.Equal(t, 100.0, *got.Medidas.Largo)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{shared.SubjectReportCreated}, pub.subjects())
	}, time.Second, 10*time.Millisecond)
}

func TestReportServiceCreateValidationLeavesStoreUnchanged(t *testing.T) {
	svc := NewReportService(newSQLiteStore(t), nil, zap.NewNop())
	ctx := context.Background()

	req := createRequest(181, 10)
	_, err := svc.Create(ctx, req)
	assert.True(t, shared.IsValidation(err))

	all, err := svc.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestReportServiceFindByIDInvalid(t *testing.T) {
	st := &mockStore{}
	svc := NewReportService(st, nil, zap.NewNop())

	_, err := svc.FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, shared.ErrInvalidID)
	// the store is never consulted for malformed ids
	st.AssertNotCalled(t, "FindReport", mock.Anything, mock.Anything)
}

func TestReportServiceUpdateAnyTransition(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewReportService(newSQLiteStore(t), pub, zap.NewNop())
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest(1, 1))
	require.NoError(t, err)

	terminado := string(ontology.EstadoTerminado)
	_, err = svc.Update(ctx, created.ID, ontology.UpdateReportRequest{Estado: &terminado})
	require.NoError(t, err)

	pendiente := string(ontology.EstadoPendiente)
	updated, err := svc.Update(ctx, created.ID, ontology.UpdateReportRequest{Estado: &pendiente})
	require.NoError(t, err)
	assert.Equal(t, ontology.EstadoPendiente, updated.Estado)
	assert.Equal(t, created.Titulo, updated.Titulo)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	legacy := "en proceso"
	updated, err = svc.Update(ctx, created.ID, ontology.UpdateReportRequest{Estado: &legacy})
	require.NoError(t, err)
	assert.Equal(t, ontology.EstadoEnProceso, updated.Estado)

	assert.Eventually(t, func() bool { return len(pub.subjects()) == 4 }, time.Second, 10*time.Millisecond)
}

func TestReportServiceUpdateRejectsInvalidMerge(t *testing.T) {
	svc := NewReportService(newSQLiteStore(t), nil, zap.NewNop())
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest(1, 1))
	require.NoError(t, err)

	bad := "abierto"
	_, err = svc.Update(ctx, created.ID, ontology.UpdateReportRequest{Estado: &bad})
	assert.True(t, shared.IsValidation(err))

	got, err := svc.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, ontology.EstadoPendiente, got.Estado)

	_, err = svc.Update(ctx, uuid.NewString(), ontology.UpdateReportRequest{Estado: &bad})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReportServiceDelete(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewReportService(newSQLiteStore(t), pub, zap.NewNop())
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest(1, 1))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), shared.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "123"), shared.ErrInvalidID)

	_, err = svc.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(
			[]string{shared.SubjectReportCreated, shared.SubjectReportDeleted},
			pub.subjects())
	}, time.Second, 10*time.Millisecond)
}

func TestReportServiceGeoQueries(t *testing.T) {
	svc := NewReportService(newSQLiteStore(t), nil, zap.NewNop())
	ctx := context.Background()

	far, err := svc.Create(ctx, createRequest(0, 0.05))
	require.NoError(t, err)
	near, err := svc.Create(ctx, createRequest(0.001, 0))
	require.NoError(t, err)
	_, err = svc.Create(ctx, createRequest(3, 3))
	require.NoError(t, err)

	got, err := svc.Near(ctx, ontology.NearQuery{Longitude: 0, Latitude: 0})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, near.ID, got[0].ID)
	assert.Equal(t, far.ID, got[1].ID)

	_, err = svc.Near(ctx, ontology.NearQuery{Longitude: 0, Latitude: 91})
	assert.True(t, shared.IsValidation(err))

	inBox, err := svc.InBoundingBox(ctx, ontology.BoundingBoxQuery{NeLat: 10, NeLng: 10, SwLat: 0, SwLng: 0})
	require.NoError(t, err)
	assert.Len(t, inBox, 3)

	_, err = svc.InBoundingBox(ctx, ontology.BoundingBoxQuery{NeLat: 0, NeLng: 10, SwLat: 10, SwLng: 0})
	assert.True(t, shared.IsValidation(err))
}

func TestReportServiceFindByUser(t *testing.T) {
	svc := NewReportService(newSQLiteStore(t), nil, zap.NewNop())
	ctx := context.Background()

	mine, err := svc.Create(ctx, createRequest(1, 1))
	require.NoError(t, err)
	other := createRequest(2, 2)
	other.UsuarioID = "user-2"
	_, err = svc.Create(ctx, other)
	require.NoError(t, err)

	got, err := svc.FindByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)
}

func TestReportServiceStorageFailure(t *testing.T) {
	st := &mockStore{}
	st.On("FindAllReports", mock.Anything).Return([]ontology.Report(nil), shared.NewStorageError("find reports", errors.New("connection refused")))

	svc := NewReportService(st, nil, zap.NewNop())
	_, err := svc.FindAll(context.Background())
	assert.ErrorIs(t, err, shared.ErrStorage)
	st.AssertExpectations(t)
}

func TestReportServiceAcceptsAlternateIDSpellings(t *testing.T) {
	ctx := context.Background()
	svc := NewReportService(newSQLiteStore(t), nil, zap.NewNop())

	created, err := svc.Create(ctx, createRequest(1, 1))
	require.NoError(t, err)

	for _, id := range []string{
		strings.ToUpper(created.ID),
		"{" + created.ID + "}",
		"urn:uuid:" + created.ID,
		strings.ReplaceAll(created.ID, "-", ""),
	} {
		got, err := svc.FindByID(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, created.ID, got.ID)
	}

	require.NoError(t, svc.Delete(ctx, strings.ToUpper(created.ID)))
	_, err = svc.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
