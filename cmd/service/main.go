package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ebrossard/meteo-vanoise/internal/cache"
	"github.com/ebrossard/meteo-vanoise/internal/circuitbreaker"
	"github.com/ebrossard/meteo-vanoise/internal/config"
	httphandler "github.com/ebrossard/meteo-vanoise/internal/http"
	"github.com/ebrossard/meteo-vanoise/internal/lifecycle"
	"github.com/ebrossard/meteo-vanoise/internal/observability"
	"github.com/ebrossard/meteo-vanoise/internal/service"
	"github.com/ebrossard/meteo-vanoise/internal/upstream"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	mfClient := upstream.NewMeteoFranceClient(cfg.BRAURL, cfg.MassifPageURL, cfg.VigilanceURL, cfg.UpstreamTimeout)
	omClient := upstream.NewOpenMeteoClient(cfg.OpenMeteoURL, cfg.UpstreamTimeout)

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Cooldown:         cfg.CircuitBreakerCooldown,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("openmeteo", from.String(), to.String())
				observability.SetCircuitBreakerStateGauge("openmeteo", int(to))
			},
		})
		omClient.SetCircuitBreaker(cb)
		observability.SetCircuitBreakerStateGauge("openmeteo", 0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("cooldown", cfg.CircuitBreakerCooldown))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.CacheTTL, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache(cfg.CacheTTL, nil)
		logger.Info("cache backend: in_memory", zap.Duration("ttl", cfg.CacheTTL))
	}

	bulletinSvc := service.NewBulletinService(mfClient, cacheSvc, cfg.Region.Massif, cfg.CoalesceEnabled, cfg.CoalesceTimeout, nil)
	warningsSvc := service.NewWarningsService(mfClient, cacheSvc, cfg.Region.Department, cfg.CoalesceEnabled, cfg.CoalesceTimeout, nil)
	forecastSvc := service.NewForecastService(omClient, cacheSvc, nil)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow: cfg.DegradedWindow,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	handler := httphandler.NewHandler(bulletinSvc, warningsSvc, forecastSvc, cacheSvc, cfg.Region, healthConfig, logger)

	observability.RegisterFallbackGauge(cfg.DegradedWindow)

	if cfg.WarmCache {
		warmer := cache.NewWarmer(service.NewPrefetcher(bulletinSvc, warningsSvc), logger)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		warmer.Warm(warmCtx)
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(context.Background(), cfg.WarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.Use(httphandler.CORSMiddleware)
	router.HandleFunc("/", handler.GetIndex).Methods("GET")
	router.HandleFunc("/api/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(httphandler.RateLimitMiddleware(limiter))
	apiRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	apiRouter.HandleFunc("/avalanche/"+cfg.Region.MassifSlug, handler.GetBulletin).Methods("GET")
	apiRouter.HandleFunc("/warnings/"+cfg.Region.DepartmentSlug, handler.GetWarnings).Methods("GET")
	apiRouter.HandleFunc("/forecast/extended", handler.GetForecast).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("massif", cfg.Region.Massif),
			zap.String("department", cfg.Region.Department))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
