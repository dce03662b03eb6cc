// Package store defines the persistence contracts for reports and admins.
// Implementations live in the sqlite and mongo subpackages.
package store

import (
	"context"

	"vialactivo/pkg/ontology"
)

// ReportStore persists reports together with their spatial index entry.
// Insert, Update and Delete maintain the index in the same write.
type ReportStore interface {
	InsertReport(ctx context.Context, r *ontology.Report) error
	// UpdateReport replaces the stored record; shared.ErrNotFound if missing.
	UpdateReport(ctx context.Context, r *ontology.Report) error
	// DeleteReport removes the record; shared.ErrNotFound if missing.
	DeleteReport(ctx context.Context, id string) error
	FindReport(ctx context.Context, id string) (*ontology.Report, error)
	FindReportsByUser(ctx context.Context, userID string) ([]ontology.Report, error)
	FindAllReports(ctx context.Context) ([]ontology.Report, error)

	// Near returns reports within q.MaxDistanceMeters, nearest first.
	Near(ctx context.Context, q ontology.NearQuery) ([]ontology.Report, error)
	// Within returns reports inside the bounding box, boundary included.
	Within(ctx context.Context, q ontology.BoundingBoxQuery) ([]ontology.Report, error)
}

// AdminStore persists the admin directory.
type AdminStore interface {
	// InsertAdmin returns shared.ErrConflict when the email exists.
	InsertAdmin(ctx context.Context, a *ontology.AdminRecord) error
	// FindAdmin returns shared.ErrNotFound when the email is unknown.
	FindAdmin(ctx context.Context, email string) (*ontology.AdminRecord, error)
}

// Store is a complete backend.
type Store interface {
	ReportStore
	AdminStore
	Health(ctx context.Context) error
	Close(ctx context.Context) error
}
