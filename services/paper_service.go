package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/lib/pq"
	"github.com/pastpapers-ai/explainer-api/model"
	"github.com/pastpapers-ai/explainer-api/services/papercrawler"
	"github.com/pastpapers-ai/explainer-api/services/paperindex"
	"github.com/pastpapers-ai/explainer-api/services/pdftext"
	"github.com/pastpapers-ai/explainer-api/services/storage"
	"github.com/pastpapers-ai/explainer-api/utils/query"
	"gorm.io/gorm"
)

var (
	ErrPaperNotFound      = errors.New("paper not found")
	ErrNotQuestionPaper   = errors.New("paper is not a question paper")
	ErrInvalidDifficulty  = errors.New("difficulty must be Easy, Medium or Hard")
	ErrMarkSchemeNotFound = errors.New("mark scheme not found for this paper")
)

// PaperService manages the paper catalogue and its stored PDFs
type PaperService struct {
	db            *gorm.DB
	store         storage.PaperStore
	settings      *SettingsService
	onlyModerated bool
}

// NewPaperService creates a new paper service
func NewPaperService(db *gorm.DB, store storage.PaperStore, settings *SettingsService, onlyModerated bool) *PaperService {
	return &PaperService{
		db:            db,
		store:         store,
		settings:      settings,
		onlyModerated: onlyModerated,
	}
}

// UploadInput is a PDF plus the metadata an admin may supply with it
type UploadInput struct {
	Filename   string
	Data       []byte
	Subject    string
	Difficulty string
	Topics     []string
	Moderated  bool
	UploadedBy *uint
}

// PaperFilter narrows List results
type PaperFilter struct {
	ExamBoard   string
	Year        int
	SessionCode string
	DocType     string
	Moderated   *bool
	Search      string
}

// MetadataUpdate holds the editable paper fields; nil means unchanged
type MetadataUpdate struct {
	Subject    *string
	Difficulty *string
	Topics     []string
	ExamBoard  *string
}

// ImportReport summarises a bulk import
type ImportReport struct {
	Source   string   `json:"source"`
	Found    int      `json:"found"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Failed   []string `json:"failed,omitempty"`
}

// Upload validates and stores a paper, creating its row or bumping the
// version of an existing one.
func (s *PaperService) Upload(ctx context.Context, in UploadInput) (*model.Paper, error) {
	name, err := paperindex.ParseFilename(in.Filename)
	if err != nil {
		return nil, err
	}
	if in.Difficulty != "" && !IsDifficulty(in.Difficulty) {
		return nil, ErrInvalidDifficulty
	}

	info, err := pdftext.Validate(in.Data, pdftext.PaperLimits)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, in.Filename, in.Data); err != nil {
		return nil, fmt.Errorf("failed to store paper: %w", err)
	}

	year, session := paperindex.SessionDetails(name.SessionCode)

	var paper model.Paper
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("filename = ?", in.Filename).First(&paper).Error
		isNew := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !isNew {
			return err
		}

		paper.Filename = in.Filename
		paper.StorageKey = in.Filename
		paper.ExamBoard = name.Code
		paper.Year = year
		paper.Session = session
		paper.SessionCode = name.SessionCode
		paper.DocType = name.DocType
		paper.PaperNumber = name.PaperNumber
		paper.PageCount = info.Pages
		paper.SizeBytes = info.Size
		paper.UploadedBy = in.UploadedBy

		if in.Subject != "" {
			paper.Subject = in.Subject
		} else if paper.Subject == "" {
			paper.Subject = "Physics"
		}
		if in.Topics != nil {
			paper.Topics = pq.StringArray(in.Topics)
		}

		if isNew {
			paper.Version = 1
			paper.Moderated = in.Moderated
			paper.Difficulty = in.Difficulty
			if paper.Difficulty == "" {
				paper.Difficulty = s.settings.DefaultDifficulty(ctx)
			}
			return tx.Create(&paper).Error
		}

		paper.Version++
		if in.Difficulty != "" {
			paper.Difficulty = in.Difficulty
		}
		return tx.Save(&paper).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save paper %s: %w", in.Filename, err)
	}

	log.Infof("PaperService: stored %s (version %d, %d pages)", paper.Filename, paper.Version, paper.PageCount)
	return &paper, nil
}

// ImportDir uploads every *.pdf in dir that is not already catalogued
func (s *PaperService) ImportDir(ctx context.Context, dir string) (*ImportReport, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Source: dir, Found: len(matches)}
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := filepath.Base(path)
		if exists, err := s.exists(ctx, name); err != nil {
			return report, err
		} else if exists {
			report.Skipped++
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("PaperService: cannot read %s: %v", path, err)
			report.Failed = append(report.Failed, name)
			continue
		}

		if _, err := s.Upload(ctx, UploadInput{Filename: name, Data: data, Moderated: true}); err != nil {
			log.Warnf("PaperService: import of %s failed: %v", name, err)
			report.Failed = append(report.Failed, name)
			continue
		}
		report.Imported++
	}

	return report, nil
}

// ImportFromCrawler downloads and uploads every new paper a crawler finds.
// Crawled papers start unmoderated.
func (s *PaperService) ImportFromCrawler(ctx context.Context, crawler papercrawler.Crawler, uploadedBy *uint) (*ImportReport, error) {
	remote, err := crawler.FetchPapers(ctx)
	if err != nil {
		return nil, fmt.Errorf("crawler %s: %w", crawler.Name(), err)
	}

	report := &ImportReport{Source: crawler.Name(), Found: len(remote)}
	for _, rp := range remote {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if exists, err := s.exists(ctx, rp.Filename); err != nil {
			return report, err
		} else if exists {
			report.Skipped++
			continue
		}

		data, err := crawler.DownloadPDF(ctx, rp.URL)
		if err != nil {
			log.Warnf("PaperService: download of %s failed: %v", rp.URL, err)
			report.Failed = append(report.Failed, rp.Filename)
			continue
		}

		if _, err := s.Upload(ctx, UploadInput{Filename: rp.Filename, Data: data, UploadedBy: uploadedBy}); err != nil {
			log.Warnf("PaperService: import of %s failed: %v", rp.Filename, err)
			report.Failed = append(report.Failed, rp.Filename)
			continue
		}
		report.Imported++
	}

	return report, nil
}

func (s *PaperService) exists(ctx context.Context, filename string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Paper{}).Where("filename = ?", filename).Count(&count).Error
	return count > 0, err
}

// List returns a page of papers matching filter, newest sessions first
func (s *PaperService) List(ctx context.Context, filter PaperFilter, page query.Pagination) ([]model.Paper, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Paper{})

	if filter.ExamBoard != "" {
		q = q.Where("exam_board = ?", filter.ExamBoard)
	}
	if filter.Year != 0 {
		q = q.Where("year = ?", filter.Year)
	}
	if filter.SessionCode != "" {
		q = q.Where("session_code = ?", filter.SessionCode)
	}
	if filter.DocType != "" {
		q = q.Where("doc_type = ?", strings.ToLower(filter.DocType))
	}
	if filter.Moderated != nil {
		q = q.Where("moderated = ?", *filter.Moderated)
	}
	if filter.Search != "" {
		q = q.Where("filename ILIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count papers: %w", err)
	}

	var papers []model.Paper
	if err := q.Scopes(page.Scope()).Order("year DESC, session_code DESC, filename ASC").Find(&papers).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list papers: %w", err)
	}
	return papers, total, nil
}

// Sessions buckets the catalogued question papers by exam period
func (s *PaperService) Sessions(ctx context.Context) ([]paperindex.SessionBucket, error) {
	q := s.db.WithContext(ctx).Model(&model.Paper{}).Where("doc_type = ?", paperindex.DocTypeQuestionPaper)
	if s.onlyModerated {
		q = q.Where("moderated = ?", true)
	}

	var names []string
	if err := q.Pluck("filename", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to load paper names: %w", err)
	}
	return paperindex.BucketBySession(names), nil
}

// FindByFilename loads a paper visible to students
func (s *PaperService) FindByFilename(ctx context.Context, filename string) (*model.Paper, error) {
	var paper model.Paper
	q := s.db.WithContext(ctx).Where("filename = ?", filename)
	if s.onlyModerated {
		q = q.Where("moderated = ?", true)
	}
	if err := q.First(&paper).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaperNotFound
		}
		return nil, err
	}
	return &paper, nil
}

// Get loads a paper by id regardless of moderation (admin view)
func (s *PaperService) Get(ctx context.Context, id uint) (*model.Paper, error) {
	var paper model.Paper
	if err := s.db.WithContext(ctx).First(&paper, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaperNotFound
		}
		return nil, err
	}
	return &paper, nil
}

// Download returns the stored PDF of a visible paper
func (s *PaperService) Download(ctx context.Context, filename string) ([]byte, *model.Paper, error) {
	paper, err := s.FindByFilename(ctx, filename)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.store.Get(ctx, paper.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, ErrPaperNotFound
		}
		return nil, nil, err
	}
	return data, paper, nil
}

// Info returns page count and size of a visible paper
func (s *PaperService) Info(ctx context.Context, filename string) (pdftext.Info, error) {
	paper, err := s.FindByFilename(ctx, filename)
	if err != nil {
		return pdftext.Info{}, err
	}
	return pdftext.Info{Pages: paper.PageCount, Size: paper.SizeBytes}, nil
}

// UpdateMetadata edits the admin-managed fields of a paper
func (s *PaperService) UpdateMetadata(ctx context.Context, id uint, upd MetadataUpdate) (*model.Paper, error) {
	paper, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Difficulty != nil {
		if !IsDifficulty(*upd.Difficulty) {
			return nil, ErrInvalidDifficulty
		}
		paper.Difficulty = *upd.Difficulty
	}
	if upd.Subject != nil {
		paper.Subject = *upd.Subject
	}
	if upd.ExamBoard != nil {
		paper.ExamBoard = *upd.ExamBoard
	}
	if upd.Topics != nil {
		paper.Topics = pq.StringArray(upd.Topics)
	}

	if err := s.db.WithContext(ctx).Save(paper).Error; err != nil {
		return nil, fmt.Errorf("failed to update paper: %w", err)
	}
	return paper, nil
}

// ToggleModeration flips the moderated flag
func (s *PaperService) ToggleModeration(ctx context.Context, id uint) (*model.Paper, error) {
	paper, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	paper.Moderated = !paper.Moderated
	if err := s.db.WithContext(ctx).Model(paper).Update("moderated", paper.Moderated).Error; err != nil {
		return nil, fmt.Errorf("failed to update moderation: %w", err)
	}
	return paper, nil
}

// Delete removes the row and the stored PDF
func (s *PaperService) Delete(ctx context.Context, id uint) (*model.Paper, error) {
	paper, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Delete(paper).Error; err != nil {
		return nil, fmt.Errorf("failed to delete paper: %w", err)
	}
	if err := s.store.Delete(ctx, paper.StorageKey); err != nil {
		log.Warnf("PaperService: row for %s deleted but object removal failed: %v", paper.Filename, err)
	}
	return paper, nil
}

// Store exposes the object store for callers that stream PDFs
func (s *PaperService) Store() storage.PaperStore {
	return s.store
}
