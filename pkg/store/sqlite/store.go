// Package sqlite stores reports in SQLite with an R*Tree spatial index.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"vialactivo/db"
	"vialactivo/pkg/geo"
	"vialactivo/pkg/ontology"
	"vialactivo/pkg/shared"
)

const timeLayout = time.RFC3339Nano

const reportColumns = `r.id, r.titulo, r.descripcion, r.longitude, r.latitude,
	r.estado, r.tipo, r.vialidad, r.nivel,
	r.medida_alto, r.medida_ancho, r.medida_largo,
	r.cantidad_traffic_light, r.cantidad_light, r.fecha_reporte,
	r.usuario_id, r.nombre_usuario, r.email_usuario,
	r.direccion, r.municipio, r.parroquia, r.ciudad, r.ubi_completa,
	r.foto_url, r.created_at, r.updated_at`

type Store struct {
	db     *db.Service
	logger *zap.Logger
}

func New(svc *db.Service, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: svc, logger: logger.Named("sqlite-store")}
}

func (s *Store) InsertReport(ctx context.Context, r *ontology.Report) error {
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		alto, ancho, largo := medidaArgs(r.Medidas)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO reportes (id, titulo, descripcion, longitude, latitude,
			        estado, tipo, vialidad, nivel, medida_alto, medida_ancho, medida_largo,
			        cantidad_traffic_light, cantidad_light, fecha_reporte,
			        usuario_id, nombre_usuario, email_usuario,
			        direccion, municipio, parroquia, ciudad, ubi_completa,
			        foto_url, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Titulo, r.Descripcion, r.Ubicacion.Longitude(), r.Ubicacion.Latitude(),
			string(r.Estado), string(r.Tipo), string(r.Vialidad), string(r.Nivel), alto, ancho, largo,
			r.CantidadTrafficLight, r.CantidadLight, r.FechaReporte.UTC().Format(timeLayout),
			r.UsuarioID, r.NombreUsuario, r.EmailUsuario,
			r.Direccion, r.Municipio, r.Parroquia, r.Ciudad, r.UbiCompleta,
			r.FotoURL, r.CreatedAt.UTC().Format(timeLayout), r.UpdatedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return err
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return err
		}
		lng, lat := r.Ubicacion.Longitude(), r.Ubicacion.Latitude()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reportes_geo (seq, min_lng, max_lng, min_lat, max_lat) VALUES (?, ?, ?, ?, ?)`,
			seq, lng, lng, lat, lat,
		)
		return err
	})
	if err != nil {
		return storageErr("insert report", err)
	}
	return nil
}

func (s *Store) UpdateReport(ctx context.Context, r *ontology.Report) error {
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var seq int64
		if err := tx.QueryRowContext(ctx, `SELECT seq FROM reportes WHERE id = ?`, r.ID).Scan(&seq); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}

		alto, ancho, largo := medidaArgs(r.Medidas)
		if _, err := tx.ExecContext(ctx,
			`UPDATE reportes SET titulo = ?, descripcion = ?, longitude = ?, latitude = ?,
			        estado = ?, tipo = ?, vialidad = ?, nivel = ?,
			        medida_alto = ?, medida_ancho = ?, medida_largo = ?,
			        cantidad_traffic_light = ?, cantidad_light = ?, fecha_reporte = ?,
			        usuario_id = ?, nombre_usuario = ?, email_usuario = ?,
			        direccion = ?, municipio = ?, parroquia = ?, ciudad = ?, ubi_completa = ?,
			        foto_url = ?, updated_at = ?
			 WHERE seq = ?`,
			r.Titulo, r.Descripcion, r.Ubicacion.Longitude(), r.Ubicacion.Latitude(),
			string(r.Estado), string(r.Tipo), string(r.Vialidad), string(r.Nivel),
			alto, ancho, largo,
			r.CantidadTrafficLight, r.CantidadLight, r.FechaReporte.UTC().Format(timeLayout),
			r.UsuarioID, r.NombreUsuario, r.EmailUsuario,
			r.Direccion, r.Municipio, r.Parroquia, r.Ciudad, r.UbiCompleta,
			r.FotoURL, r.UpdatedAt.UTC().Format(timeLayout),
			seq,
		); err != nil {
			return err
		}

		lng, lat := r.Ubicacion.Longitude(), r.Ubicacion.Latitude()
		_, err := tx.ExecContext(ctx,
			`UPDATE reportes_geo SET min_lng = ?, max_lng = ?, min_lat = ?, max_lat = ? WHERE seq = ?`,
			lng, lng, lat, lat, seq,
		)
		return err
	})
	if err != nil {
		return storageErr("update report", err)
	}
	return nil
}

func (s *Store) DeleteReport(ctx context.Context, id string) error {
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		var seq int64
		if err := tx.QueryRowContext(ctx, `SELECT seq FROM reportes WHERE id = ?`, id).Scan(&seq); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM reportes_geo WHERE seq = ?`, seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM reportes WHERE seq = ?`, seq)
		return err
	})
	if err != nil {
		return storageErr("delete report", err)
	}
	return nil
}

func (s *Store) FindReport(ctx context.Context, id string) (*ontology.Report, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reportes r WHERE r.id = ?`, id)

	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("find report", err)
	}
	return r, nil
}

func (s *Store) FindReportsByUser(ctx context.Context, userID string) ([]ontology.Report, error) {
	return s.queryReports(ctx, "find reports by user",
		`SELECT `+reportColumns+` FROM reportes r WHERE r.usuario_id = ? ORDER BY r.seq`, userID)
}

func (s *Store) FindAllReports(ctx context.Context) ([]ontology.Report, error) {
	return s.queryReports(ctx, "find reports",
		`SELECT `+reportColumns+` FROM reportes r ORDER BY r.seq`)
}

// Near prefilters candidates through the R*Tree with the rectangle around
// the query point, then keeps exact great-circle matches.
func (s *Store) Near(ctx context.Context, q ontology.NearQuery) ([]ontology.Report, error) {
	bound, ok := geo.SearchBound(orb.Point{q.Longitude, q.Latitude}, q.MaxDistanceMeters)

	var candidates []ontology.Report
	var err error
	if ok {
		candidates, err = s.indexed(ctx, "near reports", bound)
	} else {
		s.logger.Debug("Search bound outside index domain, scanning",
			zap.Float64("lng", q.Longitude), zap.Float64("lat", q.Latitude))
		candidates, err = s.FindAllReports(ctx)
	}
	if err != nil {
		return nil, err
	}
	return geo.FilterNear(candidates, q), nil
}

func (s *Store) Within(ctx context.Context, q ontology.BoundingBoxQuery) ([]ontology.Report, error) {
	poly := geo.BoundingBoxPolygon(q)
	candidates, err := s.indexed(ctx, "reports within box", poly.Bound())
	if err != nil {
		return nil, err
	}
	return geo.FilterWithin(candidates, poly), nil
}

// indexed returns the reports whose index entry overlaps the bound. The
// R*Tree stores rounded coordinates, so overlap gives a superset.
func (s *Store) indexed(ctx context.Context, op string, b orb.Bound) ([]ontology.Report, error) {
	return s.queryReports(ctx, op,
		`SELECT `+reportColumns+`
		 FROM reportes_geo g JOIN reportes r ON r.seq = g.seq
		 WHERE g.max_lng >= ? AND g.min_lng <= ? AND g.max_lat >= ? AND g.min_lat <= ?
		 ORDER BY r.seq`,
		b.Min.Lon(), b.Max.Lon(), b.Min.Lat(), b.Max.Lat(),
	)
}

func (s *Store) InsertAdmin(ctx context.Context, a *ontology.AdminRecord) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO admins (email, created_at) VALUES (?, ?)`,
		a.Email, a.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return storageErr("insert admin", err)
	}
	return nil
}

func (s *Store) FindAdmin(ctx context.Context, email string) (*ontology.AdminRecord, error) {
	var a ontology.AdminRecord
	var createdAt string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT email, created_at FROM admins WHERE email = ?`, email,
	).Scan(&a.Email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("find admin", err)
	}
	if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, storageErr("find admin", fmt.Errorf("parse created_at of %s: %w", a.Email, err))
	}
	return &a, nil
}

func (s *Store) Health(ctx context.Context) error {
	if err := s.db.Health(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func (s *Store) queryReports(ctx context.Context, op, query string, args ...interface{}) ([]ontology.Report, error) {
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	reports := []ontology.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return reports, nil
}

func scanReport(scanner interface{ Scan(...interface{}) error }) (*ontology.Report, error) {
	var r ontology.Report
	var lng, lat float64
	var estado, tipo, vialidad, nivel string
	var alto, ancho, largo sql.NullFloat64
	var fechaReporte, createdAt, updatedAt string

	err := scanner.Scan(
		&r.ID, &r.Titulo, &r.Descripcion, &lng, &lat,
		&estado, &tipo, &vialidad, &nivel,
		&alto, &ancho, &largo,
		&r.CantidadTrafficLight, &r.CantidadLight, &fechaReporte,
		&r.UsuarioID, &r.NombreUsuario, &r.EmailUsuario,
		&r.Direccion, &r.Municipio, &r.Parroquia, &r.Ciudad, &r.UbiCompleta,
		&r.FotoURL, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Ubicacion = ontology.NewPoint(lng, lat)
	r.Estado = ontology.Estado(estado)
	r.Tipo = ontology.Tipo(tipo)
	r.Vialidad = ontology.Vialidad(vialidad)
	r.Nivel = ontology.Nivel(nivel)
	if alto.Valid || ancho.Valid || largo.Valid {
		r.Medidas = &ontology.Medidas{
			Alto:  nullFloat(alto),
			Ancho: nullFloat(ancho),
			Largo: nullFloat(largo),
		}
	}

	if r.FechaReporte, err = time.Parse(timeLayout, fechaReporte); err != nil {
		return nil, fmt.Errorf("parse fecha_reporte of %s: %w", r.ID, err)
	}
	if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", r.ID, err)
	}
	if r.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at of %s: %w", r.ID, err)
	}
	return &r, nil
}

func medidaArgs(m *ontology.Medidas) (alto, ancho, largo interface{}) {
	if m == nil {
		return nil, nil, nil
	}
	deref := func(v *float64) interface{} {
		if v == nil {
			return nil
		}
		return *v
	}
	return deref(m.Alto), deref(m.Ancho), deref(m.Largo)
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// storageErr maps unique violations to ErrConflict and everything else
// to a StorageError.
func storageErr(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%s: %w", op, shared.ErrConflict)
	}
	return shared.NewStorageError(op, err)
}
