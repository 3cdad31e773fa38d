package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"magabot/internal/autopilot"
	"magabot/internal/browser"
	"magabot/internal/config"
	"magabot/internal/dispatch"
	"magabot/internal/guard"
	"magabot/internal/handlers"
	"magabot/internal/jobs"
	"magabot/internal/logging"
	"magabot/internal/metrics"
	"magabot/internal/middleware"
	"magabot/internal/mode"
	"magabot/internal/negotiation"
	"magabot/internal/preflight"
	"magabot/internal/router"
	"magabot/internal/sessions"
	"magabot/internal/store"
	"magabot/internal/telegram"
	"magabot/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting magabot...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	assistant, err := config.LoadAssistant(cfg.AssistantFile)
	if err != nil {
		log.Fatalf("❌ Failed to load %s: %v", cfg.AssistantFile, err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Store: %s, Telegram: %s)", cfg.Port, cfg.StoreBackend, cfg.TelegramMode)

	if results := preflight.NewChecker(cfg, assistant).RunAll(); preflight.HasFailures(results) {
		if cfg.IsProduction() {
			log.Fatal("❌ Pre-flight checks failed, refusing to start")
		}
		log.Println("⚠️  Pre-flight checks failed, continuing in development mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)

	repo, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to open store: %v", err)
	}

	// Redis (optional - distributed guard and resume lock)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("⚠️ [REDIS] Ping failed, continuing without Redis: %v", err)
			redisClient.Close()
			redisClient = nil
		} else {
			log.Println("✅ [REDIS] Connected")
		}
		pingCancel()
	}

	var guardBackend guard.Backend = guard.NewMemoryBackend()
	if assistant.Guard.Backend == "redis" {
		if redisClient != nil {
			guardBackend = guard.NewRedisBackend(redisClient, "magabot:guard")
			log.Println("🛡️ [GUARD] Using Redis sliding windows")
		} else {
			log.Println("⚠️ [GUARD] Redis backend requested but Redis is unavailable, using memory")
		}
	}
	rateGuard := guard.New(guardBackend, guard.LimitsFromConfig(assistant.Guard), m)

	// Browser automation (optional - apply falls back to recorded intents)
	var applyRunner browser.Runner
	if cfg.BrowserEnabled {
		chrome := browser.NewChrome(cfg.BrowserHeadless, os.Getenv("CHROME_PATH"))
		defer chrome.Close()
		applyRunner = chrome
		log.Println("🌐 [BROWSER] Chrome automation enabled")
	}

	registry, err := buildRegistry(cfg, assistant, m, applyRunner)
	if err != nil {
		log.Fatalf("❌ Failed to build capability registry: %v", err)
	}

	sessionTable := sessions.NewTable(repo, cfg.SessionIdleTimeout)
	hub := dispatch.NewHub()

	// The Telegram client doubles as the notice sender; the bot wraps it once
	// the dispatcher exists.
	var (
		tgClient *telegram.Client
		sender   dispatch.TextSender
	)
	if cfg.TelegramToken != "" {
		tgClient = telegram.NewClient(cfg.TelegramToken, cfg.TelegramAPIBase)
		sender = tgClient
	} else {
		log.Println("⚠️ [TELEGRAM] TELEGRAM_BOT_TOKEN not set, only the HTTP event API is available")
	}

	notifier := dispatch.NewCaseNotifier(sender, hub)
	if tgClient != nil {
		notifier.WithVoice(tgClient, registry, sessionTable)
	}

	engine := negotiation.NewEngine(assistant.Negotiation, m)
	machine := autopilot.NewMachine(autopilot.Deps{
		Invoker:    registry,
		Negotiator: engine,
		Guard:      rateGuard,
		Repo:       repo,
		Notifier:   notifier,
		Sessions:   sessionTable,
		Observer:   m,
	}, autopilot.SettingsFromConfig(assistant.AutoPilot))

	resolver := mode.NewResolver(assistant.Mode.VoiceMarkers)
	rt := router.New(assistant.Router.JobIntents, autopilot.CriteriaFromConfig(assistant.AutoPilot.Criteria))
	dispatcher := dispatch.New(dispatch.Deps{
		Sessions: sessionTable,
		Guard:    rateGuard,
		Resolver: resolver,
		Router:   rt,
		Invoker:  registry,
		Cases:    machine,
		Profile:  autopilot.ProfileFromConfig(assistant.AutoPilot.Profile),
	})
	m.RegisterGauges(sessionTable.Resident, machine.Runners, hub.Subscribers)

	// Background jobs
	jobScheduler := jobs.NewJobScheduler()
	jobScheduler.Register("maintenance", jobs.NewMaintenanceJob(jobs.Maintenance{
		PruneGuard:    rateGuard.Prune,
		EvictRunners:  machine.EvictIdle,
		EvictSessions: sessionTable.EvictExpired,
	}, 5*time.Minute))
	jobScheduler.Start()

	var resumeLock jobs.Locker
	if redisClient != nil {
		resumeLock = jobs.NewRedisLock(redisClient, uuid.NewString())
	}
	resumer, err := jobs.NewResumeScheduler(machine, resumeLock)
	if err != nil {
		log.Fatalf("❌ Failed to create resume scheduler: %v", err)
	}
	if err := resumer.Schedule(assistant.AutoPilot.ResumeCron); err != nil {
		log.Printf("⚠️ [RESUME] %v", err)
	}
	resumer.Start()

	// Hot reload of assistant.yaml
	go func() {
		err := config.WatchAssistant(ctx, cfg.AssistantFile, func(a *config.AssistantConfig) {
			resolver.SetMarkers(a.Mode.VoiceMarkers)
			rt.SetIntents(a.Router.JobIntents)
			rt.SetCriteria(autopilot.CriteriaFromConfig(a.AutoPilot.Criteria))
			dispatcher.SetProfile(autopilot.ProfileFromConfig(a.AutoPilot.Profile))
			engine.Reconfigure(a.Negotiation)
			machine.Reconfigure(autopilot.SettingsFromConfig(a.AutoPilot))
			rateGuard.SetLimits(guard.LimitsFromConfig(a.Guard))
			applyTimeouts(registry, a.Capabilities)
			if err := resumer.Schedule(a.AutoPilot.ResumeCron); err != nil {
				log.Printf("⚠️ [RESUME] %v", err)
			}
			log.Println("🔄 [CONFIG] Assistant configuration reloaded")
		})
		if err != nil {
			log.Printf("⚠️ [CONFIG] Hot reload disabled: %v", err)
		}
	}()

	// Operator auth
	var operatorAuth *auth.OperatorAuth
	if cfg.JWTSecret != "" {
		operatorAuth, err = auth.NewOperatorAuth(cfg.JWTSecret, cfg.OperatorPassword, 12*time.Hour)
		if err != nil {
			log.Fatalf("❌ Failed to initialize operator auth: %v", err)
		}
		if cfg.OperatorPassword == "" {
			log.Println("⚠️ [AUTH] OPERATOR_PASSWORD_HASH not set, login is disabled")
		}
	} else {
		log.Println("⚠️ [AUTH] JWT_SECRET not set, operator API is open (development only)")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "magabot v1.0",
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    25 * 1024 * 1024, // voice notes and PDFs
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prom := fiberprometheus.New("magabot")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowCredentials := cfg.AllowedOrigins != "*"
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowCredentials,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/telegram/")
		},
	}))

	rateLimitConfig := middleware.LoadRateLimitConfig()
	routes := &handlers.Routes{
		Health:       handlers.NewHealthHandler(registry.Count, machine.Runners, sessionTable.Resident, hub.Subscribers),
		Events:       handlers.NewEventsHandler(countingDispatcher{next: dispatcher, metrics: m, transport: "http"}),
		Cases:        handlers.NewCasesHandler(machine, repo),
		Capabilities: handlers.NewCapabilitiesHandler(registry),
		Auth:         handlers.NewAuthHandler(operatorAuth),
		Progress:     handlers.NewProgressHandler(hub),
		OperatorAuth: operatorAuth,
		Production:   cfg.IsProduction(),
		RateLimits:   rateLimitConfig,
	}

	// Telegram transport
	if tgClient != nil {
		bot := telegram.NewBot(tgClient, countingDispatcher{next: dispatcher, metrics: m, transport: "telegram"}, cfg.TelegramAllowList())
		switch cfg.TelegramMode {
		case "webhook":
			if cfg.TelegramWebhookURL == "" {
				log.Fatal("❌ TELEGRAM_WEBHOOK_URL is required in webhook mode")
			}
			if cfg.TelegramWebhookSecret == "" {
				log.Println("⚠️ [TELEGRAM] TELEGRAM_WEBHOOK_SECRET not set, webhook requests are not authenticated")
			}
			routes.Webhook = handlers.NewTelegramWebhookHandler(bot, cfg.TelegramWebhookSecret)
			if err := tgClient.SetWebhook(ctx, cfg.TelegramWebhookURL, cfg.TelegramWebhookSecret); err != nil {
				log.Printf("⚠️ [TELEGRAM] %v", err)
			} else {
				log.Printf("✅ [TELEGRAM] Webhook registered at %s", cfg.TelegramWebhookURL)
			}
		default:
			go func() {
				if err := bot.Poll(ctx); err != nil && ctx.Err() == nil {
					log.Printf("❌ [TELEGRAM] Poller stopped: %v", err)
				}
			}()
		}
	}

	routes.Register(app)

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("🔌 Progress stream: ws://localhost:%s/ws/cases", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")
		cancel()

		jobScheduler.Stop()
		if err := resumer.Stop(); err != nil {
			log.Printf("⚠️ Error stopping resume scheduler: %v", err)
		}

		drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer drainCancel()
		if err := machine.Shutdown(drainCtx); err != nil {
			log.Printf("⚠️ Error draining auto-pilot: %v", err)
		}
		if err := repo.Close(drainCtx); err != nil {
			log.Printf("⚠️ Error closing store: %v", err)
		}
		if redisClient != nil {
			redisClient.Close()
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
