package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	gormlogger "gorm.io/gorm/logger"

	"clinic-booking-server/internal/config"
	"clinic-booking-server/internal/metrics"
	"clinic-booking-server/internal/middleware"
	"clinic-booking-server/internal/models"
	"clinic-booking-server/internal/notify"
	"clinic-booking-server/internal/routes"
	"clinic-booking-server/internal/scheduling"
	"clinic-booking-server/internal/slotlock"
	"clinic-booking-server/internal/store"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	dbLogLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		dbLogLevel = gormlogger.Info
	}
	db, err := models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN, LogLevel: dbLogLevel})
	if err != nil {
		logger.Fatal("Error connecting to database", zap.Error(err))
	}

	lockOpts := slotlock.Options{TTL: cfg.SlotLockTTL}
	var locker scheduling.SlotLocker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer client.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("Error connecting to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		locker = slotlock.NewRedisLocker(client, lockOpts, logger.Named("slotlock"))
		logger.Info("slot locks shared through redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		locker = slotlock.NewLocalLocker(lockOpts)
		logger.Warn("REDIS_ADDR not set, slot locks are local to this process")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(registry)

	inbox := notify.NewInbox(db, logger.Named("notify"))
	deps := scheduling.Dependencies{
		Appointments: store.NewAppointments(db),
		Profiles:     store.NewProfiles(db),
		Notifier:     inbox,
		Locker:       locker,
		Clock:        func() time.Time { return time.Now().In(cfg.Location) },
		Logger:       logger.Named("scheduling"),
		Metrics:      bookingMetrics,
	}
	machine := scheduling.NewStateMachine(deps)
	workflow := scheduling.NewBookingWorkflow(deps, machine)

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	defer limiter.Stop()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger.Named("http")))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	routeDeps := routes.Dependencies{
		JWTSecret: cfg.JWTSecret,
		Workflow:  workflow,
		Machine:   machine,
		Inbox:     inbox,
		Limiter:   limiter,
		Logger:    logger.Named("http"),
	}
	if cfg.MetricsEnabled {
		routeDeps.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	routes.SetupRoutes(router, routeDeps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server running", zap.String("port", cfg.Port), zap.String("timezone", cfg.Location.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
