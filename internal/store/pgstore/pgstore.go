// Package pgstore is the PostGIS GeoStore backend.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"health-geo/internal/logger"
	"health-geo/internal/models"
	"health-geo/internal/store"

	"github.com/lib/pq"
	"github.com/paulmach/orb/geojson"
)

// Store keeps every category in three tables keyed by category. Replace deletes and bulk copies
// inside one transaction, so readers see the old generation until commit.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func ewkt(loc models.Location) string {
	return "SRID=4326;POINT(" + strconv.FormatFloat(loc.Lon(), 'f', -1, 64) + " " + strconv.FormatFloat(loc.Lat(), 'f', -1, 64) + ")"
}

// strings never NULL: the array columns are NOT NULL
func textArray(v []string) interface{} {
	if v == nil {
		v = []string{}
	}
	return pq.Array(v)
}

func geometryJSON(g *geojson.Geometry) (interface{}, error) {
	if g == nil {
		return nil, nil
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

var (
	facilityCols = []string{"category", "id", "name", "type", "geog", "upazila", "district", "division", "services",
		"phone", "email", "road_access", "public_transport", "transport_options", "access_notes", "verified", "source", "last_updated"}
	workerCols = []string{"id", "name", "type", "geog", "service_area", "upazila", "district", "division", "phone",
		"email", "skills", "availability", "verified", "source", "last_updated"}
	boundaryCols = []string{"id", "name", "level", "upazila", "district", "division", "geog", "geometry", "source", "last_updated"}
)

func facilityRow(cat models.Category, f models.Facility) []interface{} {
	return []interface{}{string(cat), f.ID, f.Name, string(f.Type), ewkt(f.Location), f.Admin.Upazila, f.Admin.District,
		f.Admin.Division, textArray(f.Services), f.Contact.Phone, f.Contact.Email, f.Accessibility.RoadAccess,
		f.Accessibility.PublicTransport, textArray(f.Accessibility.TransportOptions), f.Accessibility.Notes,
		f.Verified, f.Source, stamp(f.LastUpdated)}
}

func workerRow(w models.Worker) ([]interface{}, error) {
	area, err := geometryJSON(w.ServiceArea)
	if err != nil {
		return nil, err
	}
	return []interface{}{w.ID, w.Name, string(w.Type), ewkt(w.Location), area, w.Admin.Upazila, w.Admin.District,
		w.Admin.Division, w.Contact.Phone, w.Contact.Email, textArray(w.Skills), string(w.Availability), w.Verified,
		w.Source, stamp(w.LastUpdated)}, nil
}

func boundaryRow(b models.Boundary) ([]interface{}, error) {
	g, err := geometryJSON(b.Geometry)
	if err != nil {
		return nil, err
	}
	return []interface{}{b.ID, b.Name, b.Level, b.Admin.Upazila, b.Admin.District, b.Admin.Division, ewkt(b.Location),
		g, b.Source, stamp(b.LastUpdated)}, nil
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// Replace swaps the category's rows for b in a single transaction.
func (s *Store) Replace(ctx context.Context, cat models.Category, b models.Batch) error {
	if !cat.Valid() {
		return fmt.Errorf("%w: %q", store.ErrUnknownCategory, cat)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace %s: %w", cat, err)
	}
	defer tx.Rollback()

	var (
		table string
		cols  []string
		rows  [][]interface{}
	)
	switch cat.Kind() {
	case models.KindFacility:
		if _, err := tx.ExecContext(ctx, "DELETE FROM geo_facilities WHERE category=$1", string(cat)); err != nil {
			return fmt.Errorf("clear %s: %w", cat, err)
		}
		table, cols = "geo_facilities", facilityCols
		for _, f := range b.Facilities {
			rows = append(rows, facilityRow(cat, f))
		}
	case models.KindWorker:
		if _, err := tx.ExecContext(ctx, "DELETE FROM geo_workers"); err != nil {
			return fmt.Errorf("clear %s: %w", cat, err)
		}
		table, cols = "geo_workers", workerCols
		for _, w := range b.Workers {
			r, err := workerRow(w)
			if err != nil {
				return fmt.Errorf("encode worker %s: %w", w.ID, err)
			}
			rows = append(rows, r)
		}
	case models.KindBoundary:
		if _, err := tx.ExecContext(ctx, "DELETE FROM geo_boundaries"); err != nil {
			return fmt.Errorf("clear %s: %w", cat, err)
		}
		table, cols = "geo_boundaries", boundaryCols
		for _, bd := range b.Boundaries {
			r, err := boundaryRow(bd)
			if err != nil {
				return fmt.Errorf("encode boundary %s: %w", bd.ID, err)
			}
			rows = append(rows, r)
		}
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, cols...))
	if err != nil {
		return fmt.Errorf("prepare copy %s: %w", table, err)
	}
	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, r...); err != nil {
			stmt.Close()
			return fmt.Errorf("copy %s row %d: %w", table, i, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy %s: %w", table, err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace %s: %w", cat, err)
	}
	logger.L().Debug("pg_replace", "category", cat, "rows", len(rows))
	return nil
}

const facilitySelect = `SELECT id, name, type, ST_X(geog::geometry), ST_Y(geog::geometry), upazila, district, division,
	services, phone, email, road_access, public_transport, transport_options, access_notes, verified, source, last_updated
	FROM geo_facilities`

const workerSelect = `SELECT id, name, type, ST_X(geog::geometry), ST_Y(geog::geometry), service_area, upazila, district,
	division, phone, email, skills, availability, verified, source, last_updated FROM geo_workers`

const boundarySelect = `SELECT id, name, level, upazila, district, division, ST_X(geog::geometry), ST_Y(geog::geometry),
	geometry, source, last_updated FROM geo_boundaries`

// origin expression shared by the radius filter and the KNN ordering
const originSQL = `ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography`

func limitOrAll(n int) interface{} {
	if n <= 0 {
		return nil
	}
	return n
}

func (s *Store) NearFacilities(ctx context.Context, cat models.Category, q store.NearQuery) ([]models.Facility, error) {
	if err := store.CheckKind(cat, models.KindFacility); err != nil {
		return nil, err
	}
	query := facilitySelect + ` WHERE category=$1 AND ($4::float8 <= 0 OR ST_DWithin(geog, ` + originSQL + `, $4))
		ORDER BY geog <-> ` + originSQL + ` LIMIT $5`
	rows, err := s.db.QueryContext(ctx, query, string(cat), q.Origin[0], q.Origin[1], q.MaxDistanceMeters, limitOrAll(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("query near facilities: %w", err)
	}
	defer rows.Close()
	return scanFacilities(rows)
}

// nearWorkersSQL compares filters trimmed and case-folded on both sides, as WorkerFilter.Match does.
var nearWorkersSQL = workerSelect + ` WHERE ($1::text = '' OR EXISTS (SELECT 1 FROM unnest(skills) sk WHERE lower(btrim(sk)) = lower(btrim($1))))
		AND ($4::float8 <= 0 OR ST_DWithin(geog, ` + originSQL + `, $4))
		AND ($6::text = '' OR lower(btrim(upazila)) = lower(btrim($6)))
		AND ($7::text = '' OR lower(btrim(district)) = lower(btrim($7)))
		AND ($8::text = '' OR lower(btrim(division)) = lower(btrim($8)))
		ORDER BY geog <-> ` + originSQL + ` LIMIT $5`

func (s *Store) NearWorkers(ctx context.Context, q store.NearQuery, f store.WorkerFilter) ([]models.Worker, error) {
	rows, err := s.db.QueryContext(ctx, nearWorkersSQL, f.Skill, q.Origin[0], q.Origin[1], q.MaxDistanceMeters,
		limitOrAll(q.Limit), f.Upazila, f.District, f.Division)
	if err != nil {
		return nil, fmt.Errorf("query near workers: %w", err)
	}
	defer rows.Close()
	return scanWorkers(rows)
}

func (s *Store) Load(ctx context.Context, cat models.Category) (models.Batch, error) {
	switch cat.Kind() {
	case models.KindFacility:
		rows, err := s.db.QueryContext(ctx, facilitySelect+` WHERE category=$1 ORDER BY id`, string(cat))
		if err != nil {
			return models.Batch{}, fmt.Errorf("load %s: %w", cat, err)
		}
		defer rows.Close()
		fs, err := scanFacilities(rows)
		return models.Batch{Facilities: fs}, err
	case models.KindWorker:
		rows, err := s.db.QueryContext(ctx, workerSelect+` ORDER BY id`)
		if err != nil {
			return models.Batch{}, fmt.Errorf("load %s: %w", cat, err)
		}
		defer rows.Close()
		ws, err := scanWorkers(rows)
		return models.Batch{Workers: ws}, err
	case models.KindBoundary:
		rows, err := s.db.QueryContext(ctx, boundarySelect+` ORDER BY id`)
		if err != nil {
			return models.Batch{}, fmt.Errorf("load %s: %w", cat, err)
		}
		defer rows.Close()
		bs, err := scanBoundaries(rows)
		return models.Batch{Boundaries: bs}, err
	}
	return models.Batch{}, fmt.Errorf("%w: %q", store.ErrUnknownCategory, cat)
}

func (s *Store) Count(ctx context.Context, cat models.Category) (int, error) {
	var (
		row *sql.Row
		n   int
	)
	switch cat.Kind() {
	case models.KindFacility:
		row = s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM geo_facilities WHERE category=$1", string(cat))
	case models.KindWorker:
		row = s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM geo_workers")
	case models.KindBoundary:
		row = s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM geo_boundaries")
	default:
		return 0, fmt.Errorf("%w: %q", store.ErrUnknownCategory, cat)
	}
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", cat, err)
	}
	return n, nil
}

func scanFacilities(rows *sql.Rows) ([]models.Facility, error) {
	var out []models.Facility
	for rows.Next() {
		var (
			f        models.Facility
			lon, lat float64
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Type, &lon, &lat, &f.Admin.Upazila, &f.Admin.District, &f.Admin.Division,
			pq.Array(&f.Services), &f.Contact.Phone, &f.Contact.Email, &f.Accessibility.RoadAccess,
			&f.Accessibility.PublicTransport, pq.Array(&f.Accessibility.TransportOptions), &f.Accessibility.Notes,
			&f.Verified, &f.Source, &f.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan facility: %w", err)
		}
		f.Location = models.NewPoint(lon, lat)
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanWorkers(rows *sql.Rows) ([]models.Worker, error) {
	var out []models.Worker
	for rows.Next() {
		var (
			w        models.Worker
			lon, lat float64
			area     []byte
		)
		if err := rows.Scan(&w.ID, &w.Name, &w.Type, &lon, &lat, &area, &w.Admin.Upazila, &w.Admin.District,
			&w.Admin.Division, &w.Contact.Phone, &w.Contact.Email, pq.Array(&w.Skills), &w.Availability, &w.Verified,
			&w.Source, &w.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		w.Location = models.NewPoint(lon, lat)
		if len(area) > 0 {
			g, err := geojson.UnmarshalGeometry(area)
			if err != nil {
				return nil, fmt.Errorf("decode service area %s: %w", w.ID, err)
			}
			w.ServiceArea = g
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanBoundaries(rows *sql.Rows) ([]models.Boundary, error) {
	var out []models.Boundary
	for rows.Next() {
		var (
			b        models.Boundary
			lon, lat float64
			shape    []byte
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Level, &b.Admin.Upazila, &b.Admin.District, &b.Admin.Division,
			&lon, &lat, &shape, &b.Source, &b.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan boundary: %w", err)
		}
		b.Location = models.NewPoint(lon, lat)
		if len(shape) > 0 {
			g, err := geojson.UnmarshalGeometry(shape)
			if err != nil {
				return nil, fmt.Errorf("decode boundary %s: %w", b.ID, err)
			}
			b.Geometry = g
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

var _ store.GeoStore = (*Store)(nil)
