package admin

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/database"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/pastpapers-ai/explainer-api/utils/response"
)

// GetDashboard retrieves the admin dashboard statistics
// GET /admin/analytics
func GetDashboard(c *fiber.Ctx, store database.Storage) error {
	stats, err := services.NewAnalyticsService(store.GetDB()).GetDashboardStats(c.Context())
	if err != nil {
		log.Errorf("Analytics: %v", err)
		return response.InternalServerError(c, "Failed to fetch analytics")
	}
	return response.Success(c, stats)
}

// GetExplanationSeries retrieves daily explanation counts
// GET /admin/analytics/explanations?days=30
func GetExplanationSeries(c *fiber.Ctx, store database.Storage) error {
	days := c.QueryInt("days", 30)
	if days < 1 || days > 365 {
		return response.BadRequest(c, "days must be between 1 and 365")
	}

	series, err := services.NewAnalyticsService(store.GetDB()).GetExplanationTimeSeries(c.Context(), days)
	if err != nil {
		log.Errorf("Analytics: %v", err)
		return response.InternalServerError(c, "Failed to fetch explanation series")
	}
	return response.Success(c, series)
}

// GetTopPapers retrieves the most explained papers
// GET /admin/analytics/top-papers?limit=10
func GetTopPapers(c *fiber.Ctx, store database.Storage) error {
	limit := c.QueryInt("limit", 10)
	if limit < 1 || limit > 100 {
		limit = 10
	}

	papers, err := services.NewAnalyticsService(store.GetDB()).GetTopPapers(c.Context(), limit)
	if err != nil {
		log.Errorf("Analytics: %v", err)
		return response.InternalServerError(c, "Failed to fetch top papers")
	}
	return response.Success(c, papers)
}
