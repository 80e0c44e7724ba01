package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/config"
	"github.com/pastpapers-ai/explainer-api/database"
	"github.com/pastpapers-ai/explainer-api/handlers"
	admin_handlers "github.com/pastpapers-ai/explainer-api/handlers/admin"
	auth_handlers "github.com/pastpapers-ai/explainer-api/handlers/auth"
	billing_handlers "github.com/pastpapers-ai/explainer-api/handlers/billing"
	explanation_handlers "github.com/pastpapers-ai/explainer-api/handlers/explanation"
	paper_handlers "github.com/pastpapers-ai/explainer-api/handlers/paper"
	rating_handlers "github.com/pastpapers-ai/explainer-api/handlers/rating"
	session_handlers "github.com/pastpapers-ai/explainer-api/handlers/session"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/pastpapers-ai/explainer-api/services/papercrawler"
	"github.com/pastpapers-ai/explainer-api/services/studysession"
	"github.com/pastpapers-ai/explainer-api/utils"
	"github.com/pastpapers-ai/explainer-api/utils/auth"
	"github.com/pastpapers-ai/explainer-api/utils/middleware"
)

// Services are the long-lived components the routes are wired to
type Services struct {
	Config     *config.Config
	Sessions   *studysession.Manager
	Papers     *services.PaperService
	Explain    *services.ExplainService
	Billing    *services.BillingService
	Ratings    *services.RatingService
	Crawlers   *papercrawler.Factory
	JWT        *auth.JWTManager
	BruteForce *middleware.BruteForceProtection
}

func SetupRoutes(app *fiber.App, store database.Storage, svc *Services) {
	db := store.GetDB()

	authMiddleware := middleware.NewAuthMiddleware(svc.JWT, db)
	audit := middleware.DBAuditRecorder(db)

	authHandler := auth_handlers.NewAuthHandler(db, svc.JWT, svc.BruteForce)
	sessionHandler := session_handlers.NewSessionHandler(svc.Sessions)
	paperHandler := paper_handlers.NewPaperHandler(svc.Papers)
	explanationHandler := explanation_handlers.NewExplanationHandler(svc.Explain, svc.Sessions, svc.Billing)
	ratingHandler := rating_handlers.NewRatingHandler(svc.Ratings)
	billingHandler := billing_handlers.NewBillingHandler(svc.Billing)
	paperAdminHandler := admin_handlers.NewPaperAdminHandler(svc.Papers, svc.Crawlers, svc.Config.DATA_DIR)

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    svc.Config.ALLOWED_ORIGINS,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Health check endpoints (public)
	app.Get("/ping", utils.MakeHTTPHandleFunc(handlers.HandlePing, store))
	app.Get("/health", utils.MakeHTTPHandleFunc(handlers.HandleCheckHealth, store))

	// API v1 group
	api := app.Group("/api/v1")
	api.Get("/settings", utils.MakeHTTPHandleFunc(admin_handlers.ListPublicSettings, store))

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/login", svc.BruteForce.CheckLockout(), authHandler.Login)
	authGroup.Post("/refresh", authHandler.RefreshToken)
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)
	authGroup.Get("/me", authMiddleware.Required(), authHandler.GetProfile)
	authGroup.Put("/password", authMiddleware.Required(), authHandler.ChangePassword)

	// ==================== Study sessions ====================

	requireSession := middleware.RequireStudySession(svc.Sessions)

	sessions := api.Group("/sessions")
	sessions.Post("/", sessionHandler.CreateSession)
	current := sessions.Group("/current", requireSession)
	current.Get("/", sessionHandler.GetCurrent)
	current.Put("/email", sessionHandler.SetEmail)
	current.Put("/page", sessionHandler.Navigate)
	current.Post("/dismiss-popup", sessionHandler.DismissPopup)
	current.Delete("/", sessionHandler.EndSession)

	// ==================== Papers and explanations ====================

	papers := api.Group("/papers")
	papers.Get("/sessions", paperHandler.ListSessions)
	papers.Get("/:filename", paperHandler.GetPaper)
	papers.Get("/:filename/download", paperHandler.DownloadPaper)

	explanations := api.Group("/explanations")
	explanations.Post("/", requireSession, explanationHandler.Explain) // 402 once the free searches are used up
	explanations.Get("/related", explanationHandler.Related)

	ratings := api.Group("/ratings")
	ratings.Post("/", optionalSession(svc.Sessions), ratingHandler.Rate)
	ratings.Get("/", ratingHandler.GetAverage)
	ratings.Get("/:question_id", ratingHandler.GetAverage)

	// ==================== Billing ====================

	billing := api.Group("/billing")
	billing.Get("/plans", billingHandler.ListPlans)
	billing.Post("/checkout", optionalSession(svc.Sessions), billingHandler.CreateCheckout)
	billing.Get("/subscription", optionalSession(svc.Sessions), billingHandler.GetSubscription)
	billing.Post("/webhook", billingHandler.Webhook) // Stripe signs the raw body

	// ==================== Admin console ====================

	admin := api.Group("/admin", authMiddleware.Required(), authMiddleware.RequireAdmin())

	// Papers
	admin.Get("/papers", paperAdminHandler.ListPapers)
	admin.Get("/papers/sources", paperAdminHandler.ListSources)
	admin.Post("/papers", middleware.AdminAuditLog(audit, "paper_upload", "papers"), paperAdminHandler.UploadPaper)
	admin.Post("/papers/import", middleware.AdminAuditLog(audit, "paper_import", "papers"), paperAdminHandler.ImportDirectory)
	admin.Post("/papers/crawl", middleware.AdminAuditLog(audit, "paper_crawl", "papers"), paperAdminHandler.Crawl)
	admin.Patch("/papers/:id", middleware.AdminAuditLog(audit, "paper_update", "papers"), paperAdminHandler.UpdatePaper)
	admin.Post("/papers/:id/moderate", middleware.AdminAuditLog(audit, "paper_moderate", "papers"), paperAdminHandler.ToggleModeration)
	admin.Delete("/papers/:id", middleware.AdminAuditLog(audit, "paper_delete", "papers"), paperAdminHandler.DeletePaper)

	// Analytics
	admin.Get("/analytics", utils.MakeHTTPHandleFunc(admin_handlers.GetDashboard, store))
	admin.Get("/analytics/explanations", utils.MakeHTTPHandleFunc(admin_handlers.GetExplanationSeries, store))
	admin.Get("/analytics/top-papers", utils.MakeHTTPHandleFunc(admin_handlers.GetTopPapers, store))

	// Settings
	admin.Get("/settings", utils.MakeHTTPHandleFunc(admin_handlers.ListSettings, store))
	admin.Put("/settings", middleware.AdminAuditLog(audit, "settings_update", "settings"), utils.MakeHTTPHandleFunc(admin_handlers.UpdateSettings, store))

	// Audit logs
	admin.Get("/audit-logs", utils.MakeHTTPHandleFunc(admin_handlers.ListAuditLogs, store))
	admin.Get("/audit-logs/:id", utils.MakeHTTPHandleFunc(admin_handlers.GetAuditLog, store))
}

// optionalSession loads the study session when the header is present
func optionalSession(manager *studysession.Manager) fiber.Handler {
	require := middleware.RequireStudySession(manager)
	return func(c *fiber.Ctx) error {
		if c.Get(studysession.HeaderName) == "" {
			return c.Next()
		}
		return require(c)
	}
}
