// Package app opens the configured backends and assembles the adapter chains. Both binaries
// build on it so the server and the CLI ingest exactly the same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"health-geo/internal/cache"
	"health-geo/internal/config"
	"health-geo/internal/ingest"
	"health-geo/internal/logger"
	"health-geo/internal/migrate"
	"health-geo/internal/models"
	"health-geo/internal/sources"
	"health-geo/internal/store"
	"health-geo/internal/store/mongostore"
	"health-geo/internal/store/pgstore"
	"health-geo/internal/utils"
)

// OpenStore connects the configured GeoStore backend. Postgres migrations run before use.
func OpenStore(ctx context.Context, cfg config.Config) (store.GeoStore, error) {
	l := logger.L()
	switch cfg.Store.Driver {
	case "postgres":
		dsn := cfg.Postgres.DSN
		if dsn == "" {
			p := cfg.Postgres
			dsn = utils.BuildPostgresDSN(p.Host, p.Port, p.User, p.Password, p.DB, p.SSLMode)
		}
		db, err := utils.OpenPostgres(ctx, utils.PostgresOptions{
			DSN:          dsn,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Postgres.MaxIdleConns,
		})
		if err != nil {
			return nil, err
		}
		if err := migrate.EnsureSchema(db); err != nil {
			return nil, errors.Join(err, db.Close())
		}
		l.Info("store_ready", "driver", "postgres")
		return pgstore.New(db), nil
	case "mongo":
		db, err := utils.OpenMongo(ctx, cfg.Mongo.URI, cfg.Mongo.DBName)
		if err != nil {
			return nil, err
		}
		l.Info("store_ready", "driver", "mongo", "db", cfg.Mongo.DBName)
		return mongostore.New(db), nil
	}
	l.Warn("store_in_memory", "note", "records are lost on restart")
	return store.NewMemory(), nil
}

// OpenCache returns the response cache and its backend label. The memory cache's sweeper stops
// with ctx.
func OpenCache(ctx context.Context, cfg config.Config) (cache.Cache, string) {
	switch cfg.Cache.Driver {
	case "redis":
		rdb := utils.OpenRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		return cache.NewRedis(rdb, cfg.Cache.Prefix, cfg.Cache.TTL), "redis"
	case "none":
		return cache.Nop{}, "none"
	}
	m := cache.NewMemory(cfg.Cache.Capacity, cfg.Cache.TTL, nil)
	m.StartSweeper(ctx, cfg.Cache.SweepInterval)
	return m, "memory"
}

// Query is the ingestion scope from config.
func Query(cfg config.Config) sources.Query {
	q := sources.Query{Country: cfg.Sources.Country}
	if b, err := config.ParseBBox(cfg.Sources.BBox); err == nil {
		q.BBox = sources.BBox{South: b[0], West: b[1], North: b[2], East: b[3]}
	}
	return q.WithDefaults()
}

func usesS3(cfg config.SourcesConfig) bool {
	for _, u := range []string{cfg.BoundariesURL, cfg.BoundariesFallbackURL, cfg.WorkersServiceAreasURL} {
		if strings.HasPrefix(u, "s3://") {
			return true
		}
	}
	return false
}

// withParam appends key=value to a URL; the healthsites API takes its key as a query parameter.
func withParam(raw, key, value string) string {
	if value == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	v := u.Query()
	v.Set(key, value)
	u.RawQuery = v.Encode()
	return u.String()
}

// WorkerAPIFields maps the HRM worker listing to row fields.
func WorkerAPIFields() map[string][]string {
	return map[string][]string{
		"id":           {"worker_id", "id", "uuid"},
		"name":         {"full_name", "name"},
		"type":         {"designation", "cadre", "type"},
		"lon":          {"location.coordinates.0", "longitude", "lon"},
		"lat":          {"location.coordinates.1", "latitude", "lat"},
		"upazila":      {"upazila", "posting.upazila"},
		"district":     {"district", "posting.district"},
		"division":     {"division", "posting.division"},
		"phone":        {"mobile", "phone"},
		"skills":       {"skills", "trainings"},
		"availability": {"availability", "duty_type"},
		"verified":     {"verified"},
	}
}

// Sources registers every configured adapter and returns the chain per source category. Each
// chain lists its adapters in priority order and ends with the bundled seed.
func Sources(ctx context.Context, cfg config.Config, geocoder sources.Geocoder) (*sources.Registry, []ingest.Chain, error) {
	sc := cfg.Sources
	timeout := sc.Timeout
	if timeout <= 0 {
		timeout = sources.DefaultTimeout
	}
	client := &http.Client{Timeout: timeout + 5*time.Second}

	var objects sources.ObjectGetter
	if usesS3(sc) {
		c, err := sources.NewS3Client(ctx, sources.S3Config{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKeyID,
			SecretKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, nil, err
		}
		objects = c
	}

	reg := sources.NewRegistry()
	chainOf := map[models.Category][]string{}
	add := func(cat models.Category, a sources.Adapter) {
		reg.Register(a)
		chainOf[cat] = append(chainOf[cat], a.Name())
	}

	if sc.FacilitiesCSVURL != "" {
		add(models.CategoryFacilities, sources.NewTabular("facilities_csv", sc.FacilitiesCSVURL, client, timeout))
	}
	if sc.FacilitiesHTMLURL != "" {
		add(models.CategoryFacilities, sources.NewHTMLTable("facilities_html", sc.FacilitiesHTMLURL, sc.HTMLSelector, client, geocoder, timeout))
	}
	if sc.OverpassURL != "" {
		add(models.CategoryOSMFacilities, sources.NewOverpass("overpass", sc.OverpassURL, client, timeout))
	}
	if sc.OverpassMirrorURL != "" && sc.OverpassMirrorURL != sc.OverpassURL {
		add(models.CategoryOSMFacilities, sources.NewOverpass("overpass_mirror", sc.OverpassMirrorURL, client, timeout))
	}
	if sc.HealthsitesURL != "" && sc.HealthsitesAPIKey != "" {
		add(models.CategoryOSMFacilities, sources.NewREST("healthsites", sources.RESTConfig{
			URL:          withParam(sc.HealthsitesURL, "api-key", sc.HealthsitesAPIKey),
			CountryParam: "country",
			MaxPages:     sc.HealthsitesMaxPages,
		}, client, timeout))
	}
	if sc.BoundariesURL != "" {
		add(models.CategoryBoundaries, sources.NewGeoJSON("boundaries_geojson", sc.BoundariesURL, client, objects, timeout))
	}
	if sc.BoundariesFallbackURL != "" {
		add(models.CategoryBoundaries, sources.NewGeoJSON("boundaries_fallback", sc.BoundariesFallbackURL, client, objects, timeout))
	}
	if sc.WorkersCSVURL != "" {
		add(models.CategoryWorkers, sources.NewTabular("workers_csv", sc.WorkersCSVURL, client, timeout))
	}
	if sc.WorkersAPIURL != "" {
		add(models.CategoryWorkers, sources.NewREST("workers_api", sources.RESTConfig{
			URL:       sc.WorkersAPIURL,
			ItemsPath: "data",
			Fields:    WorkerAPIFields(),
		}, client, timeout))
	}
	if sc.WorkersHTMLURL != "" {
		add(models.CategoryWorkers, sources.NewHTMLTable("workers_html", sc.WorkersHTMLURL, sc.HTMLSelector, client, geocoder, timeout))
	}
	if sc.WorkersServiceAreasURL != "" {
		add(models.CategoryWorkers, sources.NewGeoJSON("workers_service_areas", sc.WorkersServiceAreasURL, client, objects, timeout))
	}

	reg.Register(sources.NewSeed())
	seed, _ := reg.Get(sources.SeedName)
	q := Query(cfg)

	chains := make([]ingest.Chain, 0, len(models.SourceCategories))
	for _, cat := range models.SourceCategories {
		adapters, err := reg.Chain(chainOf[cat]...)
		if err != nil {
			return nil, nil, fmt.Errorf("chain %s: %w", cat, err)
		}
		chains = append(chains, ingest.Chain{Category: cat, Adapters: adapters, Seed: seed, Query: q})
		logger.L().Info("chain_ready", "category", cat, "adapters", chainOf[cat])
	}
	return reg, chains, nil
}

// Pipeline builds the ingestion pipeline over s with a geocoder kept in sync with boundaries.
func Pipeline(ctx context.Context, cfg config.Config, s store.GeoStore) (*ingest.Pipeline, *sources.Registry, error) {
	geocoder := ingest.NewLiveGeocoder()
	reg, chains, err := Sources(ctx, cfg, geocoder)
	if err != nil {
		return nil, nil, err
	}
	opts := []ingest.Option{ingest.WithGeocoder(geocoder)}
	if cfg.Ingest.DedupeRadius > 0 {
		opts = append(opts, ingest.WithDedupeRadius(cfg.Ingest.DedupeRadius))
	}
	return ingest.NewPipeline(s, chains, opts...), reg, nil
}

// Schedule turns the ingest settings into a schedule: a fixed interval when one is set,
// otherwise a weekly slot.
func Schedule(cfg config.IngestConfig) (ingest.Schedule, error) {
	if cfg.Interval > 0 {
		return ingest.Schedule{Every: cfg.Interval}, nil
	}
	wd, err := config.ParseWeekday(cfg.Weekday)
	if err != nil {
		return ingest.Schedule{}, err
	}
	return ingest.Schedule{Weekday: wd, Hour: cfg.Hour, Location: cfg.Location()}, nil
}
