package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/analytics"
	analytics_api "ms-booking/internal/analytics/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/booking_api"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/booking/qr"
	redishold "ms-booking/internal/booking/redis"
	"ms-booking/internal/codes"
	"ms-booking/internal/codes/code_api"
	codesdb "ms-booking/internal/codes/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	dsn := cfg.Database.PostgresDSN()

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func runMigrations(bunDB *bun.DB, logger *logger.Logger) {
	opts := migrations.DefaultOptions()
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		opts.MigrationsDir = dir
	}
	if !opts.AutoMigrate {
		return
	}

	runner := migrations.NewRunner(bunDB, opts)
	if err := runner.RunMigrations(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
	}
	logger.Info("DATABASE", "Migrations applied successfully")
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	runMigrations(bunDB, logger)

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.RequiredTopics()); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			logger.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		logger.Warn("KAFKA", "Kafka disabled, booking events will not be published")
	}

	codeService := codes.NewService(codesdb.New(bunDB), logger)
	holds := redishold.NewHolds(redisClient)
	passes := qr.NewGenerator(cfg.Booking.QRSecret)
	analyticsService := analytics.NewService(bunDB, cfg.Booking.Levels)

	var publisher booking.EventPublisher
	if producer != nil {
		publisher = producer
	}

	bookingService := booking.NewService(
		bunDB,
		bookingdb.New(bunDB),
		codeService,
		publisher,
		holds,
		passes,
		logger,
	)

	bookingHandler := &booking_api.Handler{
		BookingService: bookingService,
		CodeService:    codeService,
		Holds:          holds,
		Logger:         logger,
	}

	codeHandler := &code_api.Handler{
		CodeService: codeService,
		Config:      cfg,
		Logger:      logger,
	}

	analyticsHandler := analytics_api.NewHandler(analyticsService, logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	r.Route("/api/booking", func(r chi.Router) {
		r.Post("/validate-code", bookingHandler.ValidateCode)
		r.Get("/seats", bookingHandler.GetSeats)
		r.Post("/hold", bookingHandler.HoldSeats)
		r.Post("/redeem", bookingHandler.Redeem)
	})
	logger.Info("ROUTER", "Public booking endpoints registered under /api/booking")

	// --- Admin Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Booking.AdminJWTSecret))
		logger.Info("AUTH", "JWT middleware applied to admin API routes")

		r.Route("/api/admin", func(r chi.Router) {
			r.Route("/codes", func(r chi.Router) {
				r.Get("/", codeHandler.ListCodes)
				r.Post("/", codeHandler.CreateCode)
				r.Post("/import", codeHandler.ImportCodes)
				r.Put("/{codeId}", codeHandler.UpdateCode)
				r.Delete("/{codeId}", codeHandler.DeleteCode)
			})
			logger.Info("ROUTER", "Code management routes registered under /api/admin/codes")

			r.Get("/bookings", bookingHandler.ListBookings)
			logger.Info("ROUTER", "Booking listing registered at /api/admin/bookings")

			analyticsHandler.RegisterRoutes(r)
			logger.Info("ROUTER", "Analytics routes registered under /api/admin/analytics")
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Booking Service shutdown complete")
	}
}
