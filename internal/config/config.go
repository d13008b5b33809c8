// Package config loads settings from .env files, an optional config.yaml and the environment.
// Environment variables win over the file; every key has an explicit variable name.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	APIBase         string        `mapstructure:"apiBase"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	TLSEnable       bool          `mapstructure:"tlsEnable"`
	TLSCertPath     string        `mapstructure:"tlsCertPath"`
	TLSKeyPath      string        `mapstructure:"tlsKeyPath"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DB           string `mapstructure:"db"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
	MaxIdleConns int    `mapstructure:"maxIdleConns"`
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbName"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Driver        string        `mapstructure:"driver"`
	TTL           time.Duration `mapstructure:"ttl"`
	Capacity      int           `mapstructure:"capacity"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
	Prefix        string        `mapstructure:"prefix"`
}

type IngestConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Weekday      string        `mapstructure:"weekday"`
	Hour         int           `mapstructure:"hour"`
	TZ           string        `mapstructure:"tz"`
	OnStart      bool          `mapstructure:"onStart"`
	DedupeRadius float64       `mapstructure:"dedupeRadius"`
}

type SourcesConfig struct {
	Timeout                time.Duration `mapstructure:"timeout"`
	Country                string        `mapstructure:"country"`
	BBox                   string        `mapstructure:"bbox"`
	FacilitiesCSVURL       string        `mapstructure:"facilitiesCsvUrl"`
	FacilitiesHTMLURL      string        `mapstructure:"facilitiesHtmlUrl"`
	HTMLSelector           string        `mapstructure:"htmlSelector"`
	HealthsitesURL         string        `mapstructure:"healthsitesUrl"`
	HealthsitesAPIKey      string        `mapstructure:"healthsitesApiKey"`
	HealthsitesMaxPages    int           `mapstructure:"healthsitesMaxPages"`
	OverpassURL            string        `mapstructure:"overpassUrl"`
	OverpassMirrorURL      string        `mapstructure:"overpassMirrorUrl"`
	BoundariesURL          string        `mapstructure:"boundariesUrl"`
	BoundariesFallbackURL  string        `mapstructure:"boundariesFallbackUrl"`
	WorkersCSVURL          string        `mapstructure:"workersCsvUrl"`
	WorkersAPIURL          string        `mapstructure:"workersApiUrl"`
	WorkersHTMLURL         string        `mapstructure:"workersHtmlUrl"`
	WorkersServiceAreasURL string        `mapstructure:"workersServiceAreasUrl"`
}

type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"accessKeyID"`
	SecretAccessKey string `mapstructure:"secretAccessKey"`
}

type GeoIPConfig struct {
	Path string `mapstructure:"path"`
}

type AdminConfig struct {
	Token        string   `mapstructure:"token"`
	AllowIPs     []string `mapstructure:"allowIPs"`
	AllowCIDRs   []string `mapstructure:"allowCIDRs"`
	AllowLocal   bool     `mapstructure:"allowLocal"`
	RealIPHeader string   `mapstructure:"realIPHeader"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	QPS     int  `mapstructure:"qps"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	S3        S3Config        `mapstructure:"s3"`
	GeoIP     GeoIPConfig     `mapstructure:"geoip"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

var ErrInvalid = errors.New("invalid configuration")

var defaults = map[string]any{
	"server.addr":                 ":8080",
	"server.apiBase":              "/api/v1",
	"server.shutdownTimeout":      "10s",
	"server.tlsEnable":            false,
	"server.tlsCertPath":          filepath.Join("data", "certs", "server.crt"),
	"server.tlsKeyPath":           filepath.Join("data", "certs", "server.key"),
	"log.level":                   "info",
	"log.format":                  "json",
	"store.driver":                "memory",
	"postgres.maxOpenConns":       10,
	"postgres.maxIdleConns":       5,
	"mongo.dbName":                "healthgeo",
	"cache.driver":                "memory",
	"cache.ttl":                   "5m",
	"cache.capacity":              10000,
	"cache.sweepInterval":         "1m",
	"cache.prefix":                "healthgeo:",
	"ingest.weekday":              "monday",
	"ingest.hour":                 3,
	"ingest.tz":                   "Asia/Dhaka",
	"ingest.onStart":              true,
	"ingest.dedupeRadius":         100.0,
	"sources.timeout":             "20s",
	"sources.country":             "Bangladesh",
	"sources.overpassUrl":         "https://overpass-api.de/api/interpreter",
	"sources.overpassMirrorUrl":   "https://overpass.kumi.systems/api/interpreter",
	"sources.healthsitesUrl":      "https://healthsites.io/api/v3/facilities/",
	"sources.healthsitesMaxPages": 20,
	"sources.htmlSelector":        "table",
	"rateLimit.qps":               200,
}

// env maps every key to its variable.
var env = map[string]string{
	"server.addr":                    "ADDR",
	"server.apiBase":                 "API_BASE",
	"server.shutdownTimeout":         "SHUTDOWN_TIMEOUT",
	"server.tlsEnable":               "TLS_ENABLE",
	"server.tlsCertPath":             "TLS_CERT_PATH",
	"server.tlsKeyPath":              "TLS_KEY_PATH",
	"log.level":                      "LOG_LEVEL",
	"log.format":                     "LOG_FORMAT",
	"store.driver":                   "STORE_DRIVER",
	"postgres.dsn":                   "PG_DSN",
	"postgres.host":                  "PGHOST",
	"postgres.port":                  "PGPORT",
	"postgres.user":                  "PGUSER",
	"postgres.password":              "PGPASSWORD",
	"postgres.db":                    "PGDATABASE",
	"postgres.sslmode":               "PGSSLMODE",
	"postgres.maxOpenConns":          "PG_MAX_OPEN_CONNS",
	"postgres.maxIdleConns":          "PG_MAX_IDLE_CONNS",
	"mongo.uri":                      "MONGO_URI",
	"mongo.dbName":                   "MONGO_DBNAME",
	"redis.addr":                     "REDIS_ADDR",
	"redis.password":                 "REDIS_PASSWORD",
	"redis.db":                       "REDIS_DB",
	"cache.driver":                   "CACHE_DRIVER",
	"cache.ttl":                      "CACHE_TTL",
	"cache.capacity":                 "CACHE_CAPACITY",
	"cache.sweepInterval":            "CACHE_SWEEP_INTERVAL",
	"cache.prefix":                   "CACHE_PREFIX",
	"ingest.interval":                "INGEST_INTERVAL",
	"ingest.weekday":                 "INGEST_WEEKDAY",
	"ingest.hour":                    "INGEST_HOUR",
	"ingest.tz":                      "INGEST_TZ",
	"ingest.onStart":                 "INGEST_ON_START",
	"ingest.dedupeRadius":            "INGEST_DEDUPE_RADIUS",
	"sources.timeout":                "SOURCES_TIMEOUT",
	"sources.country":                "SOURCES_COUNTRY",
	"sources.bbox":                   "SOURCES_BBOX",
	"sources.facilitiesCsvUrl":       "SOURCES_FACILITIES_CSV_URL",
	"sources.facilitiesHtmlUrl":      "SOURCES_FACILITIES_HTML_URL",
	"sources.htmlSelector":           "SOURCES_HTML_SELECTOR",
	"sources.healthsitesUrl":         "SOURCES_HEALTHSITES_URL",
	"sources.healthsitesApiKey":      "SOURCES_HEALTHSITES_API_KEY",
	"sources.healthsitesMaxPages":    "SOURCES_HEALTHSITES_MAX_PAGES",
	"sources.overpassUrl":            "SOURCES_OVERPASS_URL",
	"sources.overpassMirrorUrl":      "SOURCES_OVERPASS_MIRROR_URL",
	"sources.boundariesUrl":          "SOURCES_BOUNDARIES_URL",
	"sources.boundariesFallbackUrl":  "SOURCES_BOUNDARIES_FALLBACK_URL",
	"sources.workersCsvUrl":          "SOURCES_WORKERS_CSV_URL",
	"sources.workersApiUrl":          "SOURCES_WORKERS_API_URL",
	"sources.workersHtmlUrl":         "SOURCES_WORKERS_HTML_URL",
	"sources.workersServiceAreasUrl": "SOURCES_WORKERS_SERVICE_AREAS_URL",
	"s3.region":                      "S3_REGION",
	"s3.endpoint":                    "S3_ENDPOINT",
	"s3.accessKeyID":                 "S3_ACCESS_KEY_ID",
	"s3.secretAccessKey":             "S3_SECRET_ACCESS_KEY",
	"geoip.path":                     "GEOIP_DB_PATH",
	"admin.token":                    "ADMIN_TOKEN",
	"admin.allowIPs":                 "ADMIN_ALLOW_IPS",
	"admin.allowCIDRs":               "ADMIN_ALLOW_CIDRS",
	"admin.allowLocal":               "ADMIN_ALLOW_LOCAL",
	"admin.realIPHeader":             "ADMIN_REAL_IP_HEADER",
	"rateLimit.enabled":              "RATE_LIMIT_ENABLED",
	"rateLimit.qps":                  "RATE_LIMIT_QPS",
}

// Load reads dir/.env and ./.env (existing variables are kept), then dir/config.yaml when present,
// then the environment.
func Load(dir string) (Config, error) {
	if dir == "" {
		dir = "."
	}
	_ = godotenv.Load(filepath.Join(dir, ".env"))
	_ = godotenv.Load(".env")

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	for k, e := range env {
		if err := v.BindEnv(k, e); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", e, err)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return c, c.Validate()
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s=%q, want one of %s", ErrInvalid, field, v, strings.Join(allowed, ", "))
}

func (c *Config) Validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Cache.Driver = strings.ToLower(strings.TrimSpace(c.Cache.Driver))
	var errs []error
	errs = append(errs, oneOf("store.driver", c.Store.Driver, "memory", "postgres", "mongo"))
	errs = append(errs, oneOf("cache.driver", c.Cache.Driver, "memory", "redis", "none"))
	if c.Cache.Driver == "redis" && c.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("%w: cache.driver=redis needs REDIS_ADDR", ErrInvalid))
	}
	if c.Store.Driver == "mongo" && c.Mongo.URI == "" {
		errs = append(errs, fmt.Errorf("%w: store.driver=mongo needs MONGO_URI", ErrInvalid))
	}
	if _, err := ParseWeekday(c.Ingest.Weekday); err != nil {
		errs = append(errs, err)
	}
	if c.Ingest.Hour < 0 || c.Ingest.Hour > 23 {
		errs = append(errs, fmt.Errorf("%w: ingest.hour=%d", ErrInvalid, c.Ingest.Hour))
	}
	if _, err := ParseBBox(c.Sources.BBox); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: weekday %q", ErrInvalid, s)
}

// ParseBBox reads "south,west,north,east". Empty input is a zero box, meaning the default extent.
func ParseBBox(s string) ([4]float64, error) {
	var out [4]float64
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return out, fmt.Errorf("%w: bbox %q needs south,west,north,east", ErrInvalid, s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("%w: bbox %q: %v", ErrInvalid, s, err)
		}
		out[i] = f
	}
	if out[0] >= out[2] || out[1] >= out[3] {
		return out, fmt.Errorf("%w: bbox %q is empty", ErrInvalid, s)
	}
	return out, nil
}

// Location resolves the ingest time zone, falling back to UTC.
func (c IngestConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(c.TZ); err == nil && c.TZ != "" {
		return loc
	}
	return time.UTC
}
