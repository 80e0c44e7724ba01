package model

import (
	"time"

	"github.com/lib/pq"
	"github.com/pastpapers-ai/explainer-api/services/paperindex"
)

// Difficulty levels an admin can assign to a paper
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// Paper is a stored past-paper PDF (question paper or mark scheme)
type Paper struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Filename    string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"filename"`
	StorageKey  string         `gorm:"type:varchar(512);not null" json:"-"`
	ExamBoard   string         `gorm:"type:varchar(20);index" json:"exam_board"` // syllabus code, e.g. 9702
	Subject     string         `gorm:"type:varchar(100);default:'Physics'" json:"subject"`
	Year        int            `gorm:"index" json:"year"`
	Session     string         `gorm:"type:varchar(20)" json:"session"` // March, May-June, Oct-Nov
	SessionCode string         `gorm:"type:varchar(10);index" json:"session_code"`
	DocType     string         `gorm:"type:varchar(10);index" json:"doc_type"` // qp, ms
	PaperNumber string         `gorm:"type:varchar(10)" json:"paper_number"`
	Version     int            `gorm:"default:1" json:"version"`
	Moderated   bool           `gorm:"default:false" json:"moderated"`
	Difficulty  string         `gorm:"type:varchar(10);default:'Medium'" json:"difficulty"`
	Topics      pq.StringArray `gorm:"type:text[]" json:"topics"`
	PageCount   int            `json:"page_count"`
	SizeBytes   int64          `json:"size_bytes"`
	UploadedBy  *uint          `gorm:"index" json:"uploaded_by,omitempty"`
}

// TableName specifies the table name for Paper
func (Paper) TableName() string {
	return "papers"
}

// PaperResponse adds the derived fields clients need for navigation
type PaperResponse struct {
	Paper
	SessionLabel string  `json:"session_label"`
	Kind         string  `json:"kind"`
	MarkScheme   string  `json:"mark_scheme,omitempty"`
	SizeKB       float64 `json:"size_kb"`
}

// ToResponse converts a Paper to its API representation
func (p *Paper) ToResponse() PaperResponse {
	label, _ := paperindex.SessionLabel(p.SessionCode)

	res := PaperResponse{
		Paper:        *p,
		SessionLabel: label,
		Kind:         paperindex.Kind(p.Filename),
		SizeKB:       float64(p.SizeBytes*100/1024) / 100,
	}
	if p.DocType == paperindex.DocTypeQuestionPaper {
		res.MarkScheme = paperindex.MarkSchemeFor(p.Filename)
	}
	return res
}
