package model

import "time"

// ExplanationRating is a student's 1-5 star rating of an explanation
type ExplanationRating struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	QuestionID    string    `gorm:"type:varchar(300);not null;index" json:"question_id"` // <filename>#<label>
	PaperFilename string    `gorm:"type:varchar(255);index" json:"paper_filename"`
	Label         string    `gorm:"type:varchar(50)" json:"label"`
	Rating        int       `gorm:"not null" json:"rating"`
	Feedback      string    `gorm:"type:text" json:"feedback,omitempty"`
	SessionID     string    `gorm:"type:varchar(64)" json:"-"`
	UserEmail     string    `gorm:"type:varchar(255)" json:"user_email,omitempty"`
}

// TableName specifies the table name for ExplanationRating
func (ExplanationRating) TableName() string {
	return "explanation_ratings"
}

// ExplanationLog records one explanation request and its outcome
type ExplanationLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	SessionID      string    `gorm:"type:varchar(64);index" json:"session_id"`
	UserEmail      string    `gorm:"type:varchar(255)" json:"user_email,omitempty"`
	PaperFilename  string    `gorm:"type:varchar(255);index" json:"paper_filename"`
	Label          string    `gorm:"type:varchar(50)" json:"label"`
	QuestionStatus string    `gorm:"type:varchar(20)" json:"question_status"`
	AnswerStatus   string    `gorm:"type:varchar(20)" json:"answer_status"`
	Provider       string    `gorm:"type:varchar(50)" json:"provider"`
	Succeeded      bool      `gorm:"index" json:"succeeded"`
	LatencyMs      int64     `json:"latency_ms"`
	ErrorMsg       string    `gorm:"type:text" json:"error_msg,omitempty"`
}

// TableName specifies the table name for ExplanationLog
func (ExplanationLog) TableName() string {
	return "explanation_logs"
}
