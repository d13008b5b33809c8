// Server entrypoint: reads config, opens the store and cache, starts ingestion and serves the API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"health-geo/internal/api"
	"health-geo/internal/app"
	"health-geo/internal/config"
	"health-geo/internal/discovery"
	"health-geo/internal/ingest"
	"health-geo/internal/logger"
	"health-geo/internal/middleware"
	"health-geo/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		logger.L().Error("server_error", "err", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "."
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	l := logger.SetupWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	l.Info("starting", "version", version, "store", cfg.Store.Driver, "cache", cfg.Cache.Driver)
	if logger.ParseLevel(cfg.Log.Level) != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	rc, backend := app.OpenCache(ctx, cfg)
	l.Info("cache_ready", "backend", backend, "ttl", cfg.Cache.TTL)

	gip, err := utils.OpenGeoIP(cfg.GeoIP.Path)
	if err != nil {
		l.Warn("geoip_disabled", "err", err)
	}
	defer gip.Close()
	var locator api.Locator
	if gip != nil {
		locator = gip
	}

	pipeline, reg, err := app.Pipeline(ctx, cfg, st)
	if err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	guard, err := middleware.NewAdminGuard(middleware.AdminOptions{
		Token:        cfg.Admin.Token,
		AllowIPs:     cfg.Admin.AllowIPs,
		AllowCIDRs:   cfg.Admin.AllowCIDRs,
		AllowLocal:   cfg.Admin.AllowLocal,
		RealIPHeader: cfg.Admin.RealIPHeader,
	})
	if err != nil {
		return err
	}
	if cfg.Admin.Token == "" {
		l.Warn("admin_disabled", "reason", "ADMIN_TOKEN unset")
	}
	var bucket *middleware.TokenBucket
	if cfg.RateLimit.Enabled {
		bucket = middleware.NewTokenBucket(cfg.RateLimit.QPS)
	}

	srv := api.New(discovery.NewService(st), api.Options{
		APIBase:      cfg.Server.APIBase,
		Cache:        rc,
		CacheBackend: backend,
		GeoIP:        locator,
		Pipeline:     pipeline,
		Registry:     reg,
		Admin:        guard,
		RateLimit:    bucket,
	})
	pipeline.OnComplete = func(ctx context.Context, c ingest.Counts) {
		if err := srv.ClearCache(ctx); err != nil {
			l.Warn("cache_clear_error", "err", err)
		}
		l.Info("ingest_complete", "counts", c)
	}

	if cfg.Ingest.OnStart {
		go func() {
			if ran, err := pipeline.EnsureInitialized(ctx); err != nil {
				l.Error("ingest_init_error", "err", err)
			} else if ran {
				l.Info("ingest_init_ok")
			}
		}()
	}
	sched, err := app.Schedule(cfg.Ingest)
	if err != nil {
		return err
	}
	sched.Start(ctx, func(ctx context.Context) error {
		_, err := pipeline.RunFull(ctx)
		return err
	})

	hs := &http.Server{Addr: cfg.Server.Addr, Handler: srv.Router(), ReadHeaderTimeout: 10 * time.Second}
	if cfg.Server.TLSEnable {
		tlsCfg, err := utils.LoadOrCreateTLS(cfg.Server.TLSCertPath, cfg.Server.TLSKeyPath, "health-geo.local")
		if err != nil {
			return err
		}
		hs.TLSConfig = tlsCfg
	}

	errCh := make(chan error, 1)
	go func() {
		if hs.TLSConfig != nil {
			l.Info("listening_tls", "addr", hs.Addr, "cert", cfg.Server.TLSCertPath)
			errCh <- hs.ListenAndServeTLS("", "")
			return
		}
		l.Info("listening", "addr", hs.Addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	l.Info("shutting_down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	l.Info("shutdown_ok")
	return nil
}
