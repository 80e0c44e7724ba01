package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/pastpapers-ai/explainer-api/model"
	"gorm.io/gorm"
)

var (
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
	ErrInvalidQuestionID = errors.New("question id must look like <filename>#<label>")
)

// RatingService stores and summarises explanation ratings
type RatingService struct {
	db *gorm.DB
}

// NewRatingService creates a new rating service
func NewRatingService(db *gorm.DB) *RatingService {
	return &RatingService{db: db}
}

// RatingSummary is the average star rating of one question
type RatingSummary struct {
	QuestionID string  `json:"question_id"`
	Average    float64 `json:"average"`
	Count      int64   `json:"count"`
}

// QuestionID builds the rating key for a paper and label
func QuestionID(filename, label string) string {
	return filename + "#" + label
}

// SplitQuestionID is the inverse of QuestionID
func SplitQuestionID(id string) (filename, label string, err error) {
	i := strings.LastIndex(id, "#")
	if i <= 0 || i == len(id)-1 {
		return "", "", ErrInvalidQuestionID
	}
	return id[:i], id[i+1:], nil
}

// RoundRating rounds an average to one decimal place
func RoundRating(avg float64) float64 {
	return math.Round(avg*10) / 10
}

// Rate records one rating
func (s *RatingService) Rate(ctx context.Context, questionID string, rating int, feedback, sessionID, email string) (*model.ExplanationRating, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	filename, label, err := SplitQuestionID(questionID)
	if err != nil {
		return nil, err
	}

	r := &model.ExplanationRating{
		QuestionID:    questionID,
		PaperFilename: filename,
		Label:         label,
		Rating:        rating,
		Feedback:      strings.TrimSpace(feedback),
		SessionID:     sessionID,
		UserEmail:     email,
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, fmt.Errorf("failed to save rating: %w", err)
	}
	return r, nil
}

// Average returns the rounded mean rating and the number of ratings
func (s *RatingService) Average(ctx context.Context, questionID string) (*RatingSummary, error) {
	var result struct {
		Avg   float64
		Count int64
	}
	err := s.db.WithContext(ctx).Model(&model.ExplanationRating{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Where("question_id = ?", questionID).
		Scan(&result).Error
	if err != nil {
		return nil, fmt.Errorf("failed to average ratings: %w", err)
	}

	return &RatingSummary{
		QuestionID: questionID,
		Average:    RoundRating(result.Avg),
		Count:      result.Count,
	}, nil
}
