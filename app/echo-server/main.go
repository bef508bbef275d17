package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediMeet/app/echo-server/router"
	"mediMeet/business/credits"
	"mediMeet/business/doctors"
	"mediMeet/business/identity"
	"mediMeet/internal/middleware"
	"mediMeet/internal/repository/clerk"
	psqlRepo "mediMeet/internal/repository/postgres"
	redisRepo "mediMeet/internal/repository/redis"
	"mediMeet/internal/rest"
	"mediMeet/pkg/config"
	"mediMeet/pkg/database"
	redisdb "mediMeet/pkg/database/redis"
	"mediMeet/pkg/logger"
	"mediMeet/pkg/metrics"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)
	logger.Info("Starting MediMeet Credits", "version", cfg.App.Version)

	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	logger.Info("Database connected successfully")

	redisClient, err := redisdb.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}
	defer redisdb.CloseRedisClient(redisClient)

	metrics.Init()

	// Entitlement lookups against the auth provider
	clerkRepo := clerk.NewClerkRepository(
		clerk.ClerkConfig{
			ApiUrl:    cfg.Clerk.ApiUrl,
			SecretKey: cfg.Clerk.SecretKey,
		},
	)

	// Init repo
	userRepo := psqlRepo.NewUserRepository(db)
	ledgerRepo := psqlRepo.NewLedgerRepository(db)
	doctorRepo := psqlRepo.NewDoctorRepository(db)
	pageCache := redisRepo.NewPageCacheRepository(redisClient, 5*time.Minute)

	// Init service
	identityService := identity.NewIdentityService(userRepo)
	creditsService := credits.NewCreditsService(ledgerRepo, clerkRepo, pageCache, []string{
		redisRepo.ViewDoctors,
		redisRepo.ViewAppointments,
	})
	doctorsService := doctors.NewDoctorsService(doctorRepo, pageCache)

	// Init handler
	creditsHandler := rest.NewCreditsHandler(identityService, creditsService)
	doctorsHandler := rest.NewDoctorsHandler(doctorsService)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// HTTP error handler
	e.HTTPErrorHandler = middleware.ErrorHandler

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"http://localhost:3000", "http://localhost:8080"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Auth middleware
	authRequired := middleware.AuthMiddleware(cfg.JWT.SecretKey)
	adminOnly := middleware.AdminOnly(identityService)

	// Setup routes
	api := e.Group("/api/v1")
	router.SetupCreditsRoutes(api, creditsHandler, authRequired, adminOnly)
	router.SetupDoctorRoutes(api, doctorsHandler, authRequired)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown server
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
