// Package mongodb stores reports in MongoDB using a 2dsphere index on
// ubicacion.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"vialactivo/pkg/geo"
	"vialactivo/pkg/ontology"
	"vialactivo/pkg/shared"
)

const (
	ReportsCollection = "reportes"
	AdminsCollection  = "useradmins"
)

type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type Store struct {
	client  *mongo.Client
	reports *mongo.Collection
	admins  *mongo.Collection
	logger  *zap.Logger
}

// Connect dials MongoDB, pings it and makes sure the indexes exist.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}

	start := time.Now()
	logger.Info("Connecting to MongoDB",
		zap.String("uri", redactURI(cfg.URI)),
		zap.String("database", cfg.Database))

	dctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(dctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(dctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := New(client.Database(cfg.Database), logger)
	if err := s.EnsureIndexes(dctx); err != nil {
		logger.Warn("MongoDB index creation failed", zap.Error(err))
	}

	logger.Info("Connected to MongoDB", zap.Duration("took", time.Since(start).Round(time.Millisecond)))
	return s, nil
}

// New wraps an existing database handle.
func New(db *mongo.Database, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:  db.Client(),
		reports: db.Collection(ReportsCollection),
		admins:  db.Collection(AdminsCollection),
		logger:  logger.Named("mongo-store"),
	}
}

// EnsureIndexes creates the spatial, lookup and uniqueness indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	var errs []string

	if _, err := s.reports.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ubicacion", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "usuarioId", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}); err != nil {
		errs = append(errs, "reportes: "+err.Error())
	}
	if _, err := s.admins.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		errs = append(errs, "useradmins: "+err.Error())
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (s *Store) InsertReport(ctx context.Context, r *ontology.Report) error {
	if _, err := s.reports.InsertOne(ctx, r); err != nil {
		return storageErr("insert report", err)
	}
	return nil
}

func (s *Store) UpdateReport(ctx context.Context, r *ontology.Report) error {
	res, err := s.reports.ReplaceOne(ctx, bson.M{"_id": r.ID}, r)
	if err != nil {
		return storageErr("update report", err)
	}
	if res.MatchedCount == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteReport(ctx context.Context, id string) error {
	res, err := s.reports.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storageErr("delete report", err)
	}
	if res.DeletedCount == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) FindReport(ctx context.Context, id string) (*ontology.Report, error) {
	var r ontology.Report
	err := s.reports.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("find report", err)
	}
	return &r, nil
}

func (s *Store) FindReportsByUser(ctx context.Context, userID string) ([]ontology.Report, error) {
	return s.find(ctx, "find reports by user", bson.M{"usuarioId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (s *Store) FindAllReports(ctx context.Context) ([]ontology.Report, error) {
	return s.find(ctx, "find reports", bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

// Near relies on $near, which filters by $maxDistance and sorts nearest first.
func (s *Store) Near(ctx context.Context, q ontology.NearQuery) ([]ontology.Report, error) {
	filter := bson.M{
		"ubicacion": bson.M{
			"$near": bson.M{
				"$geometry": bson.M{
					"type":        ontology.PointType,
					"coordinates": bson.A{q.Longitude, q.Latitude},
				},
				"$maxDistance": q.MaxDistanceMeters,
			},
		},
	}
	return s.find(ctx, "near reports", filter)
}

// Within matches the box as a lng/lat rectangle. $geoWithin would draw the
// edges as great circles, which bulge away from the parallels, so the range
// is applied to the coordinate pair instead and refined with the same planar
// test the SQLite store uses.
func (s *Store) Within(ctx context.Context, q ontology.BoundingBoxQuery) ([]ontology.Report, error) {
	filter := bson.M{
		"ubicacion.coordinates.0": bson.M{"$gte": q.SwLng, "$lte": q.NeLng},
		"ubicacion.coordinates.1": bson.M{"$gte": q.SwLat, "$lte": q.NeLat},
	}
	candidates, err := s.find(ctx, "reports within box", filter)
	if err != nil {
		return nil, err
	}
	return geo.FilterWithin(candidates, geo.BoundingBoxPolygon(q)), nil
}

func (s *Store) InsertAdmin(ctx context.Context, a *ontology.AdminRecord) error {
	if _, err := s.admins.InsertOne(ctx, a); err != nil {
		return storageErr("insert admin", err)
	}
	return nil
}

func (s *Store) FindAdmin(ctx context.Context, email string) (*ontology.AdminRecord, error) {
	var a ontology.AdminRecord
	err := s.admins.FindOne(ctx, bson.M{"email": email}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("find admin", err)
	}
	return &a, nil
}

func (s *Store) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) find(ctx context.Context, op string, filter interface{}, opts ...*options.FindOptions) ([]ontology.Report, error) {
	cur, err := s.reports.Find(ctx, filter, opts...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer cur.Close(ctx)

	reports := []ontology.Report{}
	if err := cur.All(ctx, &reports); err != nil {
		return nil, storageErr(op, err)
	}
	return reports, nil
}

func storageErr(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, shared.ErrConflict)
	}
	return shared.NewStorageError(op, err)
}

func redactURI(raw string) string {
	if raw == "" || !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.UserPassword("****", "****")
	return u.String()
}
