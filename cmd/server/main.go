package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/mrrustybutter/orchestrator/internal/audio"
	"github.com/mrrustybutter/orchestrator/internal/config"
	"github.com/mrrustybutter/orchestrator/internal/executor"
	"github.com/mrrustybutter/orchestrator/internal/handlers"
	"github.com/mrrustybutter/orchestrator/internal/health"
	"github.com/mrrustybutter/orchestrator/internal/jobs"
	"github.com/mrrustybutter/orchestrator/internal/logging"
	"github.com/mrrustybutter/orchestrator/internal/memory"
	"github.com/mrrustybutter/orchestrator/internal/models"
	"github.com/mrrustybutter/orchestrator/internal/providers"
	"github.com/mrrustybutter/orchestrator/internal/router"
	"github.com/mrrustybutter/orchestrator/internal/scheduler"
	"github.com/mrrustybutter/orchestrator/internal/services"
	"github.com/mrrustybutter/orchestrator/internal/store"
	"github.com/mrrustybutter/orchestrator/internal/tools"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Orchestrator...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Queue: %d workers, Voice: %d workers)",
		cfg.Port, cfg.QueueConcurrency, cfg.VoiceQueueConcurrency)

	// Load provider configuration
	providersConfig, err := config.LoadProviders(cfg.ProvidersPath)
	if err != nil {
		log.Fatalf("❌ Failed to load providers from %s: %v", cfg.ProvidersPath, err)
	}
	registry := providers.NewRegistry(providersConfig, cfg.ProvidersPath)
	log.Printf("✅ Loaded %d providers from %s", registry.Count(), cfg.ProvidersPath)

	// Watch providers.json for hot reload
	watchDone := make(chan struct{})
	go registry.Watch(watchDone)

	// Provider health tracking
	healthSvc := health.NewService(3, 5*time.Minute)
	for _, provider := range registry.All() {
		if !provider.Configured() {
			log.Printf("⚠️ [HEALTH] Provider %s has no API key, skipping registration", provider.Name)
			continue
		}
		healthSvc.Register(capabilityFor(provider.Type), provider.Name, provider.Priority)
	}

	// Provider gateway
	gateway := providers.NewGateway(registry, healthSvc, cfg.ProviderTimeout)
	healthSvc.RegisterProbe(health.CapabilityChat, func(name string) error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout)
		defer cancel()
		return gateway.TestProvider(ctx, name)
	})

	// Coding agent backend
	codingAgent := providers.NewCodingAgent(cfg.CodingAgentTimeout)
	healthSvc.RegisterProbe(health.CapabilityCoding, func(name string) error {
		provider, ok := registry.Get(name)
		if !ok {
			return health.ErrUnknownProvider
		}
		if provider.Command == "" {
			return health.ErrNotConfigured
		}
		return nil
	})

	// Startup probe of every configured provider
	go probeProviders(registry, healthSvc)

	// Sidecar clients
	toolClient := tools.NewClient(cfg.ToolServerURL, 15*time.Second)
	memoryClient := memory.NewClient(cfg.MemoryURL, 15*time.Second)
	audioClient := audio.NewClient(cfg.AudioURL, 15*time.Second)

	// Task executor
	exec := executor.New(executor.Options{
		Gateway:        gateway,
		Coding:         codingAgent,
		Tools:          toolClient,
		Memory:         memoryClient,
		Audio:          audioClient,
		Lookup:         registry.Get,
		DefaultVoiceID: cfg.DefaultVoiceID,
	})

	// Status bus and metrics
	bus := services.NewStatusBus()
	metrics := services.InitMetrics()

	// Terminal-event archive
	archive, err := store.New(cfg.ArchivePath)
	if err != nil {
		log.Fatalf("❌ Failed to open event archive at %s: %v", cfg.ArchivePath, err)
	}

	// Event scheduler with its routing closure. Routing only sees
	// providers that are configured and currently healthy.
	sched := scheduler.New(scheduler.Options{
		QueueConcurrency:      cfg.QueueConcurrency,
		VoiceQueueConcurrency: cfg.VoiceQueueConcurrency,
		Route: func(event *models.Event) models.RoutingDecision {
			return router.Route(event, availableProviders(registry, healthSvc))
		},
		Execute: exec.Execute,
		Bus:     bus,
		Metrics: metrics,
		Archive: archive,
	})
	metrics.RegisterQueueGauges(sched)
	log.Println("✅ Scheduler initialized (general + voice queues)")

	// Background jobs: periodic provider re-probe, history eviction
	jobRunner, err := jobs.NewRunner()
	if err != nil {
		log.Fatalf("❌ Failed to create job runner: %v", err)
	}
	if err := jobRunner.RegisterHealthChecks(registry, healthSvc, cfg.HealthCheckInterval); err != nil {
		log.Printf("⚠️ Failed to register health check job: %v", err)
	}
	if err := jobRunner.RegisterHistoryCleanup(sched, cfg.HistoryRetention); err != nil {
		log.Printf("⚠️ Failed to register history cleanup job: %v", err)
	}
	jobRunner.Start()
	log.Printf("🕐 Background jobs: provider health (every %s), history cleanup (retention %s)",
		cfg.HealthCheckInterval, cfg.HistoryRetention)

	// Optional Redis mirror of status events
	var redisPublisher *services.RedisPublisher
	if cfg.RedisURL != "" {
		redisPublisher, err = services.NewRedisPublisher(cfg.RedisURL, bus)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (status mirror disabled)", err)
		} else {
			redisPublisher.Start()
			log.Println("✅ Redis status mirror enabled")
		}
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Orchestrator v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("orchestrator")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins: getAllowedOrigins(),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Ingestion rate limit: sources can burst, but not flood
	app.Use("/api/events", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		},
	}))

	// Handlers
	healthHandler := handlers.NewHealthHandler(healthSvc)
	eventsHandler := handlers.NewEventsHandler(sched, func() []string {
		return availableProviders(registry, healthSvc)
	})
	wsHandler := handlers.NewWebSocketHandler(bus)

	// Routes
	app.Get("/health", healthHandler.Handle)
	app.Post("/api/events", eventsHandler.Ingest)
	app.Get("/api/events/:id", eventsHandler.Get)
	app.Get("/api/status", eventsHandler.Status)

	// WebSocket status stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(wsHandler.Handle))

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down orchestrator...")

		// Stop accepting new events, then let in-flight tasks finish
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sched.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️ Shutdown timed out with tasks still running: %v", err)
		}

		// Stop background jobs
		if err := jobRunner.Stop(shutdownCtx); err != nil {
			log.Printf("⚠️ Error stopping job runner: %v", err)
		}

		// Kill any running coding-agent processes
		codingAgent.CancelAll()

		// Stop Redis mirror
		if redisPublisher != nil {
			if err := redisPublisher.Stop(); err != nil {
				log.Printf("⚠️ Error stopping Redis publisher: %v", err)
			}
		}

		// Stop the providers.json watcher
		close(watchDone)

		if err := archive.Close(); err != nil {
			log.Printf("⚠️ Error closing event archive: %v", err)
		}

		// Shutdown Fiber
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// capabilityFor maps a provider type to its health capability bucket.
func capabilityFor(providerType models.ProviderType) health.Capability {
	if providerType == models.ProviderTypeCoding {
		return health.CapabilityCoding
	}
	return health.CapabilityChat
}

// availableProviders returns the configured providers currently considered
// healthy, preserving registry order.
func availableProviders(registry *providers.Registry, healthSvc *health.Service) []string {
	var available []string
	for _, provider := range registry.All() {
		if !provider.Configured() {
			continue
		}
		if healthSvc.IsAvailable(capabilityFor(provider.Type), provider.Name) {
			available = append(available, provider.Name)
		}
	}
	return available
}

// probeProviders runs a startup health probe against every configured provider.
func probeProviders(registry *providers.Registry, healthSvc *health.Service) {
	for _, provider := range registry.All() {
		if !provider.Configured() {
			continue
		}
		capability := capabilityFor(provider.Type)
		if err := healthSvc.CheckProvider(capability, provider.Name); err != nil {
			log.Printf("⚠️ [HEALTH] Startup probe failed for %s (%s): %v", provider.Name, capability, err)
		} else {
			log.Printf("✅ [HEALTH] Provider %s (%s) is healthy", provider.Name, capability)
		}
	}
}

func getAllowedOrigins() string {
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		return origins
	}
	return "http://localhost:5173,http://localhost:3000"
}
