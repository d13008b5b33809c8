// Package api exposes the discovery service over HTTP with gin.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"health-geo/internal/cache"
	"health-geo/internal/discovery"
	"health-geo/internal/geo"
	"health-geo/internal/ingest"
	"health-geo/internal/logger"
	"health-geo/internal/metrics"
	"health-geo/internal/middleware"
	"health-geo/internal/models"
	"health-geo/internal/sources"
	"health-geo/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
)

// MaxLimit caps the limit query parameter.
const MaxLimit = 100

// originKeyPrecision is the geohash length of response cache keys. Twelve characters resolve a
// few centimetres, so a cached ranking is only served back to the same origin.
const originKeyPrecision = 12

var (
	errOriginRequired = errors.New("lon and lat are required")
	errBadParam       = errors.New("bad query parameter")
)

// Locator maps a client address to coordinates; *utils.GeoIP satisfies it.
type Locator interface {
	Locate(ip string) (lon, lat float64, ok bool)
}

// Options wires the optional collaborators. Nil members disable the feature they serve.
type Options struct {
	APIBase      string
	Cache        cache.Cache
	CacheBackend string
	GeoIP        Locator
	Pipeline     *ingest.Pipeline
	Registry     *sources.Registry
	Admin        *middleware.AdminGuard
	RateLimit    *middleware.TokenBucket
}

type Server struct {
	svc  *discovery.Service
	opts Options
}

func New(svc *discovery.Service, opts Options) *Server {
	if opts.APIBase == "" {
		opts.APIBase = "/api/v1"
	}
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
		opts.CacheBackend = "none"
	}
	if opts.CacheBackend == "" {
		opts.CacheBackend = "memory"
	}
	return &Server{svc: svc, opts: opts}
}

// ClearCache drops every cached response; used after ingestion swaps a generation.
func (s *Server) ClearCache(ctx context.Context) error {
	if err := s.opts.Cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Router builds the gin engine with every route and middleware.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.AccessMiddleware(logger.L()), instrument())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group(s.opts.APIBase)
	pub := v1.Group("")
	if s.opts.RateLimit != nil {
		pub.Use(middleware.RateLimit(s.opts.RateLimit))
	}
	pub.Use(middleware.ClientGeo())
	pub.GET("/facilities/nearest", s.nearestFacilities)
	pub.GET("/workers/nearest", s.nearestWorkers)
	pub.GET("/directions", s.directions)

	if s.opts.Admin != nil {
		adm := v1.Group("/admin", s.opts.Admin.Handler())
		adm.POST("/ingest", s.ingest)
		adm.DELETE("/cache", s.clearCache)
	}
	return r
}

func instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			return
		}
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func renderEmpty(c *gin.Context, status int, err error) {
	metrics.EmptyResultsTotal.WithLabelValues(c.FullPath()).Inc()
	c.Header("cache-control", "no-store")
	c.JSON(status, emptyState{Results: []struct{}{}, Error: err.Error()})
}

// statusOf maps discovery errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadParam), errors.Is(err, errOriginRequired),
		errors.Is(err, discovery.ErrInvalidOrigin), errors.Is(err, discovery.ErrUnknownMode):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusServiceUnavailable
}

func floatParam(c *gin.Context, name string) (float64, bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s=%q", errBadParam, name, raw)
	}
	return v, true, nil
}

func limitParam(c *gin.Context) (int, error) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit=%q", errBadParam, raw)
	}
	if n > MaxLimit {
		n = MaxLimit
	}
	return n, nil
}

// pointParam reads a lon/lat pair. ok is false when both are absent; one without the other is
// an error.
func pointParam(c *gin.Context, lonKey, latKey string) (orb.Point, bool, error) {
	lon, hasLon, err := floatParam(c, lonKey)
	if err != nil {
		return orb.Point{}, false, err
	}
	lat, hasLat, err := floatParam(c, latKey)
	if err != nil {
		return orb.Point{}, false, err
	}
	if !hasLon && !hasLat {
		return orb.Point{}, false, nil
	}
	if hasLon != hasLat {
		return orb.Point{}, false, fmt.Errorf("%w: %s and %s go together", errBadParam, lonKey, latKey)
	}
	return orb.Point{lon, lat}, true, nil
}

// resolveOrigin picks the query position: explicit lon/lat, then a GeoIP lookup of the ip
// parameter, then the CDN geo headers, then a GeoIP lookup of the visitor address.
func (s *Server) resolveOrigin(c *gin.Context) (Origin, error) {
	p, ok, err := pointParam(c, "lon", "lat")
	if err != nil {
		return Origin{}, err
	}
	if ok {
		if !models.ValidCoordinates(p.Lon(), p.Lat()) {
			return Origin{}, fmt.Errorf("%w: (%v, %v)", discovery.ErrInvalidOrigin, p.Lon(), p.Lat())
		}
		return Origin{Lon: p.Lon(), Lat: p.Lat(), Source: "query"}, nil
	}
	if ip := strings.TrimSpace(c.Query("ip")); ip != "" {
		if s.opts.GeoIP != nil {
			if lon, lat, ok := s.opts.GeoIP.Locate(ip); ok {
				return Origin{Lon: lon, Lat: lat, Source: "ip"}, nil
			}
		}
		return Origin{}, fmt.Errorf("%w: cannot locate ip %q", errOriginRequired, ip)
	}
	if p, ok := middleware.EdgeOrigin(c); ok {
		return Origin{Lon: p.Lon(), Lat: p.Lat(), Source: "edge"}, nil
	}
	if s.opts.GeoIP != nil {
		if lon, lat, ok := s.opts.GeoIP.Locate(visitorIP(c.Request)); ok {
			return Origin{Lon: lon, Lat: lat, Source: "geoip"}, nil
		}
	}
	return Origin{}, errOriginRequired
}

func (o Origin) point() orb.Point { return orb.Point{o.Lon, o.Lat} }

// cacheKey identifies the origin exactly enough that distances and order in a cached page hold
// for the caller being served.
func (o Origin) cacheKey() string { return geo.CellKey(o.point(), originKeyPrecision) }

// cached serves key from the response cache or fills it with compute. Cache failures only
// cost the lookup; they never fail the request.
func (s *Server) cached(ctx context.Context, key string, compute func() (page, error)) (page, bool, error) {
	backend := s.opts.CacheBackend
	if raw, ok, err := s.opts.Cache.Get(ctx, key); err != nil {
		logger.L().Warn("cache_get_error", "backend", backend, "err", err)
	} else if ok {
		var pg page
		if err := json.Unmarshal(raw, &pg); err == nil {
			return pg, true, nil
		}
	}
	pg, err := compute()
	if err != nil {
		return page{}, false, err
	}
	if raw, err := json.Marshal(pg); err == nil {
		if err := s.opts.Cache.Set(ctx, key, raw); err != nil {
			logger.L().Warn("cache_set_error", "backend", backend, "err", err)
		}
	}
	return pg, false, nil
}

func (s *Server) renderPage(c *gin.Context, o Origin, pg page, hit bool) {
	if pg.Count == 0 {
		metrics.EmptyResultsTotal.WithLabelValues(c.FullPath()).Inc()
	}
	c.Header("cache-control", "no-store")
	if hit {
		c.Header("x-cache", "HIT")
	} else {
		c.Header("x-cache", "MISS")
	}
	c.JSON(http.StatusOK, nearestResponse{Origin: o, Count: pg.Count, Results: pg.Results})
}

func newPage[T any](items []T) (page, error) {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return page{}, err
	}
	return page{Count: len(items), Results: raw}, nil
}

func (s *Server) nearestFacilities(c *gin.Context) {
	o, err := s.resolveOrigin(c)
	if err != nil {
		renderEmpty(c, statusOf(err), err)
		return
	}
	maxDist, _, err := floatParam(c, "maxDistance")
	if err != nil {
		renderEmpty(c, statusOf(err), err)
		return
	}
	limit, err := limitParam(c)
	if err != nil {
		renderEmpty(c, statusOf(err), err)
		return
	}
	ctx := c.Request.Context()
	key := fmt.Sprintf("fac:%s:%g:%d", o.cacheKey(), maxDist, limit)
	pg, hit, err := s.cached(ctx, key, func() (page, error) {
		ranked, err := s.svc.NearestFacilities(ctx, o.point(), maxDist, limit)
		if err != nil {
			return page{}, err
		}
		return newPage(ranked)
	})
	if err != nil {
		logger.L().Warn("nearest_facilities_error", "lon", o.Lon, "lat", o.Lat, "err", err)
		renderEmpty(c, statusOf(err), err)
		return
	}
	s.renderPage(c, o, pg, hit)
}

func (s *Server) nearestWorkers(c *gin.Context) {
	o, err := s.resolveOrigin(c)
	if err != nil {
		renderEmpty(c, statusOf(err), err)
		return
	}
	radius, _, err := floatParam(c, "radius")
	if err != nil {
		renderEmpty(c, statusOf(err), err)
		return
	}
	limit, err := limitParam(c)
	if err != nil {
		renderEmpty(c, statusOf(err), err)
		return
	}
	f := store.WorkerFilter{
		Skill:    strings.TrimSpace(c.Query("skill")),
		Upazila:  strings.TrimSpace(c.Query("upazila")),
		District: strings.TrimSpace(c.Query("district")),
		Division: strings.TrimSpace(c.Query("division")),
	}
	ctx := c.Request.Context()
	key := fmt.Sprintf("wrk:%s:%g:%d:%s|%s|%s|%s", o.cacheKey(), radius, limit,
		strings.ToLower(f.Skill), strings.ToLower(f.Upazila), strings.ToLower(f.District), strings.ToLower(f.Division))
	pg, hit, err := s.cached(ctx, key, func() (page, error) {
		hits, err := s.svc.NearestWorkers(ctx, o.point(), radius, f, limit)
		if err != nil {
			return page{}, err
		}
		return newPage(hits)
	})
	if err != nil {
		logger.L().Warn("nearest_workers_error", "lon", o.Lon, "lat", o.Lat, "err", err)
		renderEmpty(c, statusOf(err), err)
		return
	}
	s.renderPage(c, o, pg, hit)
}

func (s *Server) directions(c *gin.Context) {
	to, ok, err := pointParam(c, "toLon", "toLat")
	if err == nil && !ok {
		err = fmt.Errorf("%w: toLon and toLat are required", errBadParam)
	}
	if err != nil {
		renderEmpty(c, statusOf(err), err)
		return
	}
	// a missing from falls back to the caller's own position
	var from Origin
	p, ok, err := pointParam(c, "fromLon", "fromLat")
	switch {
	case err != nil:
	case ok:
		from = Origin{Lon: p.Lon(), Lat: p.Lat(), Source: "query"}
	default:
		from, err = s.resolveOrigin(c)
	}
	if err != nil {
		renderEmpty(c, statusOf(err), err)
		return
	}
	mode, err := discovery.ParseMode(c.Query("mode"))
	if err != nil {
		renderEmpty(c, statusOf(err), err)
		return
	}
	d, err := s.svc.Direction(from.point(), to, mode)
	if err != nil {
		renderEmpty(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, directionsResponse{
		From:       from,
		To:         Origin{Lon: to.Lon(), Lat: to.Lat(), Source: "query"},
		Directions: d,
	})
}

// ingest runs one category when ?category= is set, otherwise a full run. A busy category is 409;
// a run whose sources and seed all failed is 502 with the counts still live.
func (s *Server) ingest(c *gin.Context) {
	if s.opts.Pipeline == nil {
		c.JSON(http.StatusNotImplemented, ingestResponse{Error: "ingestion is not configured"})
		return
	}
	ctx := c.Request.Context()
	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		cat, err := models.ParseCategory(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ingestResponse{Error: err.Error()})
			return
		}
		rep, err := s.opts.Pipeline.RunCategory(ctx, cat)
		if err != nil {
			c.JSON(ingestStatus(err), ingestResponse{Report: &rep, Error: err.Error()})
			return
		}
		if cat == models.CategoryStandardized {
			if err := s.ClearCache(ctx); err != nil {
				logger.L().Warn("cache_clear_error", "err", err)
			}
		}
		c.JSON(http.StatusOK, ingestResponse{Report: &rep})
		return
	}
	counts, err := s.opts.Pipeline.RunFull(ctx)
	if err != nil {
		c.JSON(ingestStatus(err), ingestResponse{Counts: &counts, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ingestResponse{Counts: &counts})
}

func ingestStatus(err error) int {
	switch {
	case errors.Is(err, ingest.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnknownCategory):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func (s *Server) clearCache(c *gin.Context) {
	if err := s.ClearCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"cleared": false, "error": err.Error()})
		return
	}
	logger.L().Info("cache_cleared", "backend", s.opts.CacheBackend)
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (s *Server) health(c *gin.Context) {
	resp := healthResponse{Status: "ok"}
	if s.opts.Registry != nil {
		resp.Sources = s.opts.Registry.Snapshot()
	}
	if s.opts.Pipeline != nil {
		counts, err := s.opts.Pipeline.Counts(c.Request.Context())
		if err != nil {
			resp.Status = "degraded"
			resp.Error = err.Error()
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp.Counts = &counts
		if counts.Standardized == 0 {
			resp.Status = "initializing"
		}
	}
	c.JSON(http.StatusOK, resp)
}
