package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/cache"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/config"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/database"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/handlers"
	applogger "github.com/JunaidSumsaal/advanceparkingsystem/internal/logger"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/middleware"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/overpass"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/realtime"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/services"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/telemetry"
	"github.com/JunaidSumsaal/advanceparkingsystem/pkg/firebase"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// No .env file, environment variables only
	}

	if err := applogger.Init(); err != nil {
		panic(err)
	}
	defer applogger.Sync()
	log := applogger.GetLogger("main")

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// OpenTelemetry traces and metrics
	tracerShutdown, err := telemetry.InitTracer(ctx, "parking-api", cfg.SigNozEndpoint)
	if err != nil {
		log.Warnf("Failed to initialize tracer: %v", err)
	} else {
		defer func() {
			if err := tracerShutdown(context.Background()); err != nil {
				log.Warnf("Error shutting down tracer: %v", err)
			}
		}()
	}

	meterShutdown, err := telemetry.InitMeter(ctx, "parking-api", cfg.SigNozEndpoint)
	if err != nil {
		log.Warnf("Failed to initialize metrics: %v", err)
	} else {
		defer func() {
			if err := meterShutdown(context.Background()); err != nil {
				log.Warnf("Error shutting down metrics: %v", err)
			}
		}()
	}

	// Database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	go database.StartConnectionPoolMetricsCollector(ctx, db.DB, 15*time.Second)

	// Candidate-set cache. A nil client degrades every lookup to a miss.
	redisClient := cache.OpenRedis(cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	spotCache := cache.NewSpotCache(redisClient, cfg.Parking.CacheTTL, cfg.Parking.CachePrecision)

	// Push delivery (optional)
	fcm := firebase.New(cfg.FirebaseCredentialsPath)

	// Live updates hub
	hub := realtime.NewHub()
	go hub.Run()

	// Resolution pipeline
	spotService := services.NewSpotService(db)
	ingestService := services.NewIngestService(spotService)
	overpassClient := overpass.New(
		cfg.Parking.OverpassEndpoints,
		cfg.Parking.ExternalTimeout,
		cfg.Parking.ExternalMaxRetries,
		cfg.Parking.ExternalBaseBackoff,
	)
	notifier := services.NewNotifyService(db, fcm)
	go notifier.Start(ctx)

	resolver := services.NewResolver(services.ResolverConfig{
		MaxRadiusKm:       cfg.Parking.MaxRadiusKm,
		DefaultRadiusKm:   cfg.Parking.DefaultRadiusKm,
		ExpansionRadiiKm:  cfg.Parking.ExpansionRadiiKm,
		TargetResultCount: cfg.Parking.TargetResultCount,
		DefaultLimit:      cfg.Parking.DefaultLimit,
	}, spotService, spotCache, overpassClient, ingestService, notifier, hub)

	app := fiber.New(fiber.Config{
		AppName:      "Parking API",
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","status":${status},"latency":"${latency}","ip":"${ip}","method":"${method}","path":"${path}","user_agent":"${ua}","error":"${error}"}` + "\n",
		TimeFormat: "2006-01-02T15:04:05Z07:00",
	}))
	app.Use(telemetry.New(telemetry.Config{
		ServiceName: "parking-api",
	}))
	app.Use(middleware.PrometheusMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		AllowHeaders:     "Accept, Accept-Encoding, Authorization, Content-Type, DNT, Origin, User-Agent, X-Requested-With",
		AllowCredentials: false,
		ExposeHeaders:    "Content-Length, Content-Type",
		MaxAge:           86400,
	}))

	setupRoutes(app, db, cfg, resolver, hub)

	port := cfg.ServerPort
	if port == "" {
		port = "3000"
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info("Shutting down server...")
		cancel()
		if err := app.Shutdown(); err != nil {
			log.Warnf("Error shutting down server: %v", err)
		}
	}()

	log.Infof("Server starting on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func setupRoutes(app *fiber.App, db *database.DB, cfg *config.Config, resolver *services.Resolver, hub *realtime.Hub) {
	// Health check endpoints for k8s probes
	app.Get("/healthz", handlers.HealthCheck)
	app.Get("/v1/healthz", handlers.HealthCheck)
	app.Get("/v1/health", handlers.HealthCheck)
	app.Get("/v1/readiness", handlers.ReadinessCheck(db))
	app.Get("/v1/liveness", handlers.LivenessCheck)

	// Prometheus scrape endpoint
	app.Get("/metrics", middleware.PrometheusHandler())

	v1 := app.Group("/v1")

	// Parking routes (nearby search is public, creation requires auth)
	parking := v1.Group("/parking")
	handlers.SetupParkingRoutes(parking, db, cfg, resolver)

	// Users routes (auth required)
	users := v1.Group("/users", middleware.AuthRequired(cfg))
	handlers.SetupUserRoutes(users, db)

	// Live spot updates over websocket
	v1.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	v1.Get("/ws/parking", websocket.New(hub.Handler()))
}
