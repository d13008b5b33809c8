// Package mongostore is the MongoDB GeoStore backend. Each category is one collection with a
// 2dsphere index on location.
package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"health-geo/internal/logger"
	"health-geo/internal/models"
	"health-geo/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	db  *mongo.Database
	now func() time.Time
}

func New(db *mongo.Database) *Store { return &Store{db: db, now: time.Now} }

func (s *Store) Close() error { return s.db.Client().Disconnect(context.Background()) }

func collectionName(cat models.Category) string { return string(cat) }

func stagingName(cat models.Category, at time.Time) string {
	return collectionName(cat) + "__staging_" + strconv.FormatInt(at.UnixNano(), 36)
}

func documents(cat models.Category, b models.Batch) []interface{} {
	var docs []interface{}
	switch cat.Kind() {
	case models.KindFacility:
		for _, f := range b.Facilities {
			docs = append(docs, f)
		}
	case models.KindWorker:
		for _, w := range b.Workers {
			docs = append(docs, w)
		}
	case models.KindBoundary:
		for _, bd := range b.Boundaries {
			docs = append(docs, bd)
		}
	}
	return docs
}

// Replace fills a staging collection, indexes it, then renames it over the live collection with
// dropTarget. The rename is atomic for readers of the target.
func (s *Store) Replace(ctx context.Context, cat models.Category, b models.Batch) error {
	if !cat.Valid() {
		return fmt.Errorf("%w: %q", store.ErrUnknownCategory, cat)
	}
	staging := stagingName(cat, s.now())
	if err := s.db.CreateCollection(ctx, staging); err != nil {
		return fmt.Errorf("create staging %s: %w", staging, err)
	}
	coll := s.db.Collection(staging)
	cleanup := func() {
		if err := coll.Drop(context.Background()); err != nil {
			logger.L().Warn("mongo_staging_drop_error", "collection", staging, "err", err)
		}
	}

	if docs := documents(cat, b); len(docs) > 0 {
		if _, err := coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
			cleanup()
			return fmt.Errorf("stage %s: %w", cat, err)
		}
	}
	idx := []mongo.IndexModel{{Keys: bson.D{{Key: "location", Value: "2dsphere"}}}}
	if cat.Kind() == models.KindWorker {
		idx = append(idx, mongo.IndexModel{Keys: bson.D{{Key: "skills", Value: 1}}})
	}
	if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
		cleanup()
		return fmt.Errorf("index staging %s: %w", staging, err)
	}

	cmd := bson.D{
		{Key: "renameCollection", Value: s.db.Name() + "." + staging},
		{Key: "to", Value: s.db.Name() + "." + collectionName(cat)},
		{Key: "dropTarget", Value: true},
	}
	if err := s.db.Client().Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		cleanup()
		return fmt.Errorf("swap %s: %w", cat, err)
	}
	logger.L().Debug("mongo_replace", "category", cat, "docs", b.Len())
	return nil
}

// nearFilter selects documents nearest-first within maxMeters; zero means unbounded.
func nearFilter(q store.NearQuery) bson.D {
	near := bson.D{{Key: "$geometry", Value: bson.D{
		{Key: "type", Value: "Point"},
		{Key: "coordinates", Value: bson.A{q.Origin[0], q.Origin[1]}},
	}}}
	if q.MaxDistanceMeters > 0 {
		near = append(near, bson.E{Key: "$maxDistance", Value: q.MaxDistanceMeters})
	}
	return bson.D{{Key: "location", Value: bson.D{{Key: "$nearSphere", Value: near}}}}
}

func exactFold(v string) bson.D {
	return bson.D{{Key: "$regex", Value: `^\s*` + regexp.QuoteMeta(strings.TrimSpace(v)) + `\s*$`}, {Key: "$options", Value: "i"}}
}

func workerFilter(q store.NearQuery, f store.WorkerFilter) bson.D {
	filter := nearFilter(q)
	if f.Skill != "" {
		filter = append(filter, bson.E{Key: "skills", Value: exactFold(f.Skill)})
	}
	if f.Upazila != "" {
		filter = append(filter, bson.E{Key: "admin.upazila", Value: exactFold(f.Upazila)})
	}
	if f.District != "" {
		filter = append(filter, bson.E{Key: "admin.district", Value: exactFold(f.District)})
	}
	if f.Division != "" {
		filter = append(filter, bson.E{Key: "admin.division", Value: exactFold(f.Division)})
	}
	return filter
}

func findOpts(limit int) *options.FindOptions {
	o := options.Find()
	if limit > 0 {
		o.SetLimit(int64(limit))
	}
	return o
}

func (s *Store) NearFacilities(ctx context.Context, cat models.Category, q store.NearQuery) ([]models.Facility, error) {
	if err := store.CheckKind(cat, models.KindFacility); err != nil {
		return nil, err
	}
	cur, err := s.db.Collection(collectionName(cat)).Find(ctx, nearFilter(q), findOpts(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("query near %s: %w", cat, err)
	}
	var out []models.Facility
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", cat, err)
	}
	return out, nil
}

func (s *Store) NearWorkers(ctx context.Context, q store.NearQuery, f store.WorkerFilter) ([]models.Worker, error) {
	cur, err := s.db.Collection(collectionName(models.CategoryWorkers)).Find(ctx, workerFilter(q, f), findOpts(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("query near workers: %w", err)
	}
	var out []models.Worker
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode workers: %w", err)
	}
	return out, nil
}

func (s *Store) Load(ctx context.Context, cat models.Category) (models.Batch, error) {
	if !cat.Valid() {
		return models.Batch{}, fmt.Errorf("%w: %q", store.ErrUnknownCategory, cat)
	}
	cur, err := s.db.Collection(collectionName(cat)).Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return models.Batch{}, fmt.Errorf("load %s: %w", cat, err)
	}
	var b models.Batch
	switch cat.Kind() {
	case models.KindFacility:
		err = cur.All(ctx, &b.Facilities)
	case models.KindWorker:
		err = cur.All(ctx, &b.Workers)
	case models.KindBoundary:
		err = cur.All(ctx, &b.Boundaries)
	}
	if err != nil {
		return models.Batch{}, fmt.Errorf("decode %s: %w", cat, err)
	}
	return b, nil
}

func (s *Store) Count(ctx context.Context, cat models.Category) (int, error) {
	if !cat.Valid() {
		return 0, fmt.Errorf("%w: %q", store.ErrUnknownCategory, cat)
	}
	n, err := s.db.Collection(collectionName(cat)).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", cat, err)
	}
	return int(n), nil
}

var _ store.GeoStore = (*Store)(nil)
