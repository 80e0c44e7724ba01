package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pastpapers-ai/explainer-api/model"
	"gorm.io/gorm"
)

// AnalyticsService handles analytics and reporting
type AnalyticsService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{
		db:  db,
		now: time.Now,
	}
}

// DashboardStats represents overall platform statistics
type DashboardStats struct {
	TotalPapers         int64                 `json:"total_papers"`
	ModeratedPapers     int64                 `json:"moderated_papers"`
	TotalRatings        int64                 `json:"total_ratings"`
	AverageRating       float64               `json:"average_rating"`
	ActiveSubscriptions int64                 `json:"active_subscriptions"`
	PapersByBoard       map[string]int64      `json:"papers_by_board"`
	SubscriptionsByPlan map[string]int64      `json:"subscriptions_by_plan"`
	RecentUploads       []model.PaperResponse `json:"recent_uploads"`
	Explanations7d      int64                 `json:"explanations_7d"`
	AnswersFound7d      int64                 `json:"answers_found_7d"`
	AnswersNotFound7d   int64                 `json:"answers_not_found_7d"`
}

// TimeSeriesPoint represents a data point in a time series
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type groupCount struct {
	Name  string
	Count int64
}

// GetDashboardStats retrieves overall platform statistics
func (s *AnalyticsService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &DashboardStats{
		PapersByBoard:       map[string]int64{},
		SubscriptionsByPlan: map[string]int64{},
	}

	// Papers
	if err := db.Model(&model.Paper{}).Count(&stats.TotalPapers).Error; err != nil {
		return nil, fmt.Errorf("failed to count papers: %w", err)
	}
	if err := db.Model(&model.Paper{}).Where("moderated = ?", true).Count(&stats.ModeratedPapers).Error; err != nil {
		return nil, fmt.Errorf("failed to count moderated papers: %w", err)
	}

	var boards []groupCount
	if err := db.Model(&model.Paper{}).
		Select("exam_board AS name, COUNT(*) AS count").
		Group("exam_board").
		Scan(&boards).Error; err != nil {
		return nil, fmt.Errorf("failed to group papers: %w", err)
	}
	for _, b := range boards {
		stats.PapersByBoard[b.Name] = b.Count
	}

	// Ratings
	var ratings struct {
		Avg   float64
		Count int64
	}
	if err := db.Model(&model.ExplanationRating{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Scan(&ratings).Error; err != nil {
		return nil, fmt.Errorf("failed to summarise ratings: %w", err)
	}
	stats.TotalRatings = ratings.Count
	stats.AverageRating = RoundRating(ratings.Avg)

	// Subscriptions
	var plans []groupCount
	if err := db.Model(&model.Subscription{}).
		Select("plan AS name, COUNT(*) AS count").
		Where("status = ?", model.SubscriptionActive).
		Group("plan").
		Scan(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to group subscriptions: %w", err)
	}
	for _, p := range plans {
		stats.SubscriptionsByPlan[p.Name] = p.Count
		stats.ActiveSubscriptions += p.Count
	}

	// Recent uploads
	var recent []model.Paper
	if err := db.Order("created_at DESC").Limit(5).Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent uploads: %w", err)
	}
	stats.RecentUploads = make([]model.PaperResponse, 0, len(recent))
	for i := range recent {
		stats.RecentUploads = append(stats.RecentUploads, recent[i].ToResponse())
	}

	// Explanations in the last 7 days
	since := s.now().AddDate(0, 0, -7)
	var outcomes []groupCount
	if err := db.Model(&model.ExplanationLog{}).
		Select("answer_status AS name, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("answer_status").
		Scan(&outcomes).Error; err != nil {
		return nil, fmt.Errorf("failed to count explanations: %w", err)
	}
	for _, o := range outcomes {
		stats.Explanations7d += o.Count
		if o.Name == "found" {
			stats.AnswersFound7d += o.Count
		} else {
			stats.AnswersNotFound7d += o.Count
		}
	}

	return stats, nil
}

// GetExplanationTimeSeries returns daily explanation counts
func (s *AnalyticsService) GetExplanationTimeSeries(ctx context.Context, days int) ([]TimeSeriesPoint, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	startDate := s.now().AddDate(0, 0, -days)

	var results []TimeSeriesPoint
	if err := s.db.WithContext(ctx).Model(&model.ExplanationLog{}).
		Select("TO_CHAR(DATE(created_at), 'YYYY-MM-DD') AS date, COUNT(*) AS count").
		Where("created_at >= ?", startDate).
		Group("DATE(created_at)").
		Order("DATE(created_at) ASC").
		Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to get explanation time series: %w", err)
	}

	return results, nil
}

// TopPaper is a frequently explained paper
type TopPaper struct {
	PaperFilename string `json:"paper_filename"`
	Explanations  int64  `json:"explanations"`
}

// GetTopPapers returns the most explained papers
func (s *AnalyticsService) GetTopPapers(ctx context.Context, limit int) ([]TopPaper, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	var results []TopPaper
	if err := s.db.WithContext(ctx).Model(&model.ExplanationLog{}).
		Select("paper_filename, COUNT(*) AS explanations").
		Group("paper_filename").
		Order("explanations DESC").
		Limit(limit).
		Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to get top papers: %w", err)
	}

	return results, nil
}
