package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/model"
	"github.com/pastpapers-ai/explainer-api/services/llm"
	"github.com/pastpapers-ai/explainer-api/services/paperindex"
	"github.com/pastpapers-ai/explainer-api/services/pdftext"
	"github.com/pastpapers-ai/explainer-api/services/questionblock"
	"github.com/pastpapers-ai/explainer-api/services/storage"
	"github.com/pastpapers-ai/explainer-api/utils/markdown"
	"gorm.io/gorm"
)

const tutorPrompt = `You are a helpful A-Level Physics tutor.

You will be given a question and its official marking scheme answer.

Your job is to:
- ONLY explain the official answer in simple, clear, step-by-step form.
- DO NOT add anything not already in the answer.
- Use easy language that a student can understand.

--- Question ---
%s

--- Official Answer ---
%s

-- FileName --
%s

if the FileName is MCQ then read the Question and suggest why it is the correct answer.
if the FileName is Question ... then read and explain answer only (Now explain the answer step-by-step, without adding anything extra.)

If the answer is only a single letter, then it is a MCQ Question. In that case, you have to read the question and suggest why it is the correct answer.

Always format mathematical equations using LaTeX, and enclose them between double dollar signs ($$ ... $$) instead of square brackets.
All other math related stuff that requires special display also needs to be enclosed between double dollar signs ($$ ... $$) as well, since the output is rendered as markdown.`

const enhancedSections = `

Structure your explanation with these markdown headings, in this order:
## Understanding the Question
## Step-by-Step Solution
## Key Physics Concepts
## Final Answer`

// BuildPrompt fills the tutor prompt. kind is paperindex.KindMCQ or
// paperindex.KindQuestion.
func BuildPrompt(question, answer, kind string, enhanced bool) string {
	prompt := fmt.Sprintf(tutorPrompt, question, answer, kind)
	if enhanced {
		prompt += enhancedSections
	}
	return prompt
}

// BlockNotFoundError is returned when the mark scheme has no block for the
// label. The model is not called in that case.
type BlockNotFoundError struct {
	Filename       string
	Label          string
	QuestionStatus questionblock.Status
	AnswerStatus   questionblock.Status
}

func (e *BlockNotFoundError) Error() string {
	return fmt.Sprintf("no answer block for %s in %s (question: %s, answer: %s)",
		e.Label, e.Filename, e.QuestionStatus, e.AnswerStatus)
}

// PaperFinder looks up a student-visible paper row
type PaperFinder interface {
	FindByFilename(ctx context.Context, filename string) (*model.Paper, error)
}

// ExplainRequest identifies the question to explain
type ExplainRequest struct {
	Filename  string
	Label     string
	SessionID string
	UserEmail string
}

// ExplainResult is a rendered explanation plus the blocks it was built from
type ExplainResult struct {
	Filename       string   `json:"filename"`
	Label          string   `json:"label"`
	Kind           string   `json:"kind"`
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	QuestionStatus string   `json:"question_status"`
	AnswerStatus   string   `json:"answer_status"`
	Explanation    string   `json:"explanation"`
	HTML           string   `json:"html"`
	Related        []string `json:"related"`
	Provider       string   `json:"provider"`
}

// ExplainService runs the extract, prompt, explain and render pipeline
type ExplainService struct {
	db         *gorm.DB
	papers     PaperFinder
	store      storage.PaperStore
	explainer  llm.Explainer
	extractor  *questionblock.Extractor
	enhanced   bool
	llmTimeout time.Duration

	textOf func(ctx context.Context, content []byte) (string, error)
	now    func() time.Time
}

// ExplainOptions configures an ExplainService
type ExplainOptions struct {
	PrefixMatch bool
	Enhanced    bool
	LLMTimeout  time.Duration
}

// NewExplainService creates the explanation pipeline. db may be nil, in
// which case requests are not logged.
func NewExplainService(db *gorm.DB, papers PaperFinder, store storage.PaperStore, explainer llm.Explainer, opts ExplainOptions) *ExplainService {
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = 60 * time.Second
	}

	return &ExplainService{
		db:         db,
		papers:     papers,
		store:      store,
		explainer:  explainer,
		extractor:  questionblock.New(questionblock.Options{PrefixMatch: opts.PrefixMatch}),
		enhanced:   opts.Enhanced,
		llmTimeout: opts.LLMTimeout,
		textOf:     pdftext.ExtractText,
		now:        time.Now,
	}
}

// Explain explains one labelled question of a question paper using its
// mark scheme.
func (s *ExplainService) Explain(ctx context.Context, req ExplainRequest) (*ExplainResult, error) {
	started := s.now()
	entry := model.ExplanationLog{
		SessionID:     req.SessionID,
		UserEmail:     req.UserEmail,
		PaperFilename: req.Filename,
		Label:         req.Label,
		Provider:      s.explainer.Name(),
	}

	result, err := s.explain(ctx, req, &entry)

	entry.LatencyMs = s.now().Sub(started).Milliseconds()
	entry.Succeeded = err == nil
	if err != nil {
		entry.ErrorMsg = err.Error()
	}
	s.record(&entry)

	return result, err
}

func (s *ExplainService) explain(ctx context.Context, req ExplainRequest, entry *model.ExplanationLog) (*ExplainResult, error) {
	paper, err := s.papers.FindByFilename(ctx, req.Filename)
	if err != nil {
		return nil, err
	}
	if paper.DocType != paperindex.DocTypeQuestionPaper {
		return nil, ErrNotQuestionPaper
	}

	qpText, err := s.documentText(ctx, paper.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("question paper %s: %w", paper.Filename, err)
	}

	msName := paperindex.MarkSchemeFor(paper.StorageKey)
	msText, err := s.documentText(ctx, msName)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrMarkSchemeNotFound
		}
		return nil, fmt.Errorf("mark scheme %s: %w", msName, err)
	}

	question := s.extractor.Extract(qpText, req.Label)
	answer := s.extractor.Extract(msText, req.Label)
	entry.QuestionStatus = question.Status.String()
	entry.AnswerStatus = answer.Status.String()

	if !answer.Found() {
		return nil, &BlockNotFoundError{
			Filename:       req.Filename,
			Label:          req.Label,
			QuestionStatus: question.Status,
			AnswerStatus:   answer.Status,
		}
	}

	kind := paperindex.Kind(paper.Filename)
	prompt := BuildPrompt(question.String(), answer.String(), kind, s.enhanced)

	llmCtx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	defer cancel()

	explanation, err := s.explainer.Explain(llmCtx, prompt)
	if err != nil {
		return nil, fmt.Errorf("explanation failed: %w", err)
	}
	explanation = strings.TrimSpace(explanation)

	rendered, err := markdown.ToHTML(explanation)
	if err != nil {
		return nil, err
	}

	return &ExplainResult{
		Filename:       paper.Filename,
		Label:          req.Label,
		Kind:           kind,
		Question:       question.String(),
		Answer:         answer.String(),
		QuestionStatus: question.Status.String(),
		AnswerStatus:   answer.Status.String(),
		Explanation:    explanation,
		HTML:           rendered,
		Related:        paperindex.RelatedQuestions(req.Label),
		Provider:       s.explainer.Name(),
	}, nil
}

func (s *ExplainService) documentText(ctx context.Context, name string) (string, error) {
	data, err := s.store.Get(ctx, name)
	if err != nil {
		return "", err
	}
	return s.textOf(ctx, data)
}

func (s *ExplainService) record(entry *model.ExplanationLog) {
	if s.db == nil {
		return
	}
	if err := s.db.Create(entry).Error; err != nil {
		log.Warnf("ExplainService: failed to log explanation for %s %s: %v", entry.PaperFilename, entry.Label, err)
	}
}
