package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/api"
	"github.com/pastpapers-ai/explainer-api/config"
	"github.com/pastpapers-ai/explainer-api/database"
	"github.com/pastpapers-ai/explainer-api/router"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/pastpapers-ai/explainer-api/services/cron"
	"github.com/pastpapers-ai/explainer-api/services/llm"
	"github.com/pastpapers-ai/explainer-api/services/papercrawler"
	"github.com/pastpapers-ai/explainer-api/services/storage"
	"github.com/pastpapers-ai/explainer-api/services/studysession"
	"github.com/pastpapers-ai/explainer-api/utils/auth"
	"github.com/pastpapers-ai/explainer-api/utils/cache"
	"github.com/pastpapers-ai/explainer-api/utils/middleware"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	cfg, err := config.Load(nil)
	if err != nil {
		return err
	}

	// Initialize GORM database connection
	store, err := database.StartGORM(cfg)
	if err != nil {
		log.Error("Check whether Postgres is running: make docker-up (Docker) or make db-up (local)")
		return err
	}

	if err := store.Init(); err != nil {
		log.Error("Failed to initialize database tables")
		return err
	}

	db := store.GetDB()

	if err := database.NewSeeder(db).SeedAll(cfg.ADMIN_EMAIL, cfg.ADMIN_PASSWORD); err != nil {
		return err
	}

	// Redis backs study sessions and login lockouts; without it both fall
	// back to in-process behaviour
	var redisCache *cache.RedisCache
	var sessionStore studysession.Store
	if redisCache, err = cache.NewRedisCache(cfg.REDIS_URL); err != nil {
		log.Warnf("Failed to connect to Redis: %v. Using in-memory sessions, brute force protection disabled", err)
		redisCache = nil
		sessionStore = studysession.NewMemoryStore(cfg.SESSION_TTL)
	} else {
		sessionStore = studysession.NewRedisStore(redisCache, cfg.SESSION_TTL)
	}

	paperStore, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to open paper storage: %w", err)
	}

	explainer, err := llm.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure explainer: %w", err)
	}

	settingsService := services.NewSettingsService(db)
	paperService := services.NewPaperService(db, paperStore, settingsService, cfg.ONLY_MODERATED)
	explainService := services.NewExplainService(db, paperService, paperStore, explainer, services.ExplainOptions{
		PrefixMatch: cfg.EXTRACT_PREFIX_MATCH,
		Enhanced:    cfg.EXPLAIN_ENHANCED,
		LLMTimeout:  cfg.LLM_TIMEOUT,
	})

	crawlers := papercrawler.NewFactory()
	if cfg.CRAWLER_INDEX_URL != "" {
		crawlers.Register(papercrawler.NewIndexCrawler(cfg.CRAWLER_INDEX_URL))
	}

	// Upload whatever is already sitting in DATA_DIR
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if report, err := paperService.ImportDir(ctx, cfg.DATA_DIR); err != nil {
			log.Warnf("Startup import from %s failed: %v", cfg.DATA_DIR, err)
		} else {
			log.Infof("Startup import from %s: %d found, %d imported", cfg.DATA_DIR, report.Found, report.Imported)
		}
	}()

	// Initialize Cron Manager (only if enabled)
	var cronManager *cron.CronManager
	if cfg.CRON_ENABLED {
		cronManager = cron.NewCronManager(db, paperService, auth.NewBlacklistService(db), cron.Config{
			DataDir:       cfg.DATA_DIR,
			RetentionDays: cfg.EXPLANATION_LOG_RETENTION_DAYS,
		})
		if err := cronManager.Start(); err != nil {
			// Don't fail the app, just log the warning
			log.Warnf("Failed to start cron jobs: %v", err)
		}
	}

	// Defer Closing DB, Redis and stopping cron jobs
	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
		if redisCache != nil {
			redisCache.Close()
		}
		store.Close()
	}()

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", cfg.PORT))
	app := server.GetEngine()

	// Setup Routes
	router.SetupRoutes(app, store, &router.Services{
		Config:     cfg,
		Sessions:   studysession.NewManager(sessionStore, cfg.FREE_SEARCH_LIMIT),
		Papers:     paperService,
		Explain:    explainService,
		Billing:    services.NewBillingService(db, cfg),
		Ratings:    services.NewRatingService(db),
		Crawlers:   crawlers,
		JWT:        auth.NewJWTManager(auth.DefaultJWTConfig(cfg.JWT_SECRET, cfg.JWT_ISSUER)),
		BruteForce: middleware.NewBruteForceProtection(redisCache),
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down API Server")
		if err := server.Shutdown(30 * time.Second); err != nil {
			log.Errorf("Shutdown failed: %v", err)
		}
	}()

	// Get the PORT & Start the Server
	return server.Run()
}
