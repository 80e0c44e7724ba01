package cron

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/model"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// PaperImporter uploads new PDFs from a local folder
type PaperImporter interface {
	ImportDir(ctx context.Context, dir string) (*services.ImportReport, error)
}

// TokenCleaner removes expired blacklist entries
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// Config holds the inputs of the scheduled jobs
type Config struct {
	DataDir       string
	RetentionDays int
}

// Job is one scheduled task
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) (string, error)
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron      *cron.Cron
	db        *gorm.DB
	papers    PaperImporter
	blacklist TokenCleaner
	cfg       Config
	now       func() time.Time
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, papers PaperImporter, blacklist TokenCleaner, cfg Config) *CronManager {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}

	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron:      c,
		db:        db,
		papers:    papers,
		blacklist: blacklist,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Jobs lists the scheduled jobs
func (m *CronManager) Jobs() []Job {
	return []Job{
		{
			Name:     "import_local_papers",
			Schedule: "0 */15 * * * *",
			Timeout:  10 * time.Minute,
			Run:      m.ImportLocalPapers,
		},
		{
			Name:     "cleanup_token_blacklist",
			Schedule: "0 0 3 * * *",
			Timeout:  5 * time.Minute,
			Run:      m.CleanupTokenBlacklist,
		},
		{
			Name:     "prune_explanation_logs",
			Schedule: "0 30 3 * * *",
			Timeout:  10 * time.Minute,
			Run:      m.PruneExplanationLogs,
		},
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Info("[CRON] Starting cron jobs...")

	for _, job := range m.Jobs() {
		job := job
		if _, err := m.cron.AddFunc(job.Schedule, func() {
			_ = m.RunJob(job)
		}); err != nil {
			return err
		}
	}

	m.cron.Start()

	log.Infof("[CRON] %d jobs started", len(m.cron.Entries()))
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (m *CronManager) Stop() {
	log.Info("[CRON] Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Info("[CRON] Cron jobs stopped")
}

// RunJob executes one job now, recording it in the job log
func (m *CronManager) RunJob(job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), job.Timeout)
	defer cancel()

	entry := m.logJobStart(job.Name)

	message, err := job.Run(ctx)
	if err != nil {
		m.logJobError(entry, err)
		return err
	}

	m.logJobComplete(entry, message)
	return nil
}

// logJobStart logs the start of a cron job
func (m *CronManager) logJobStart(jobName string) *model.CronJobLog {
	log.Infof("[CRON] Starting job: %s", jobName)

	entry := &model.CronJobLog{
		JobName:   jobName,
		Status:    model.CronStatusStarted,
		StartedAt: m.now(),
	}
	if m.db != nil {
		if err := m.db.Create(entry).Error; err != nil {
			log.Warnf("[CRON] Failed to record start of %s: %v", jobName, err)
		}
	}
	return entry
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(entry *model.CronJobLog, message string) {
	log.Infof("[CRON] Completed job: %s - %s", entry.JobName, message)
	m.finish(entry, map[string]interface{}{
		"status":  model.CronStatusCompleted,
		"message": message,
	})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(entry *model.CronJobLog, err error) {
	log.Errorf("[CRON] Error in job: %s - %v", entry.JobName, err)
	m.finish(entry, map[string]interface{}{
		"status":    model.CronStatusFailed,
		"error_msg": err.Error(),
	})
}

func (m *CronManager) finish(entry *model.CronJobLog, updates map[string]interface{}) {
	if m.db == nil || entry.ID == 0 {
		return
	}

	completed := m.now()
	updates["completed_at"] = completed
	updates["duration"] = int(completed.Sub(entry.StartedAt).Milliseconds())

	if err := m.db.Model(entry).Updates(updates).Error; err != nil {
		log.Warnf("[CRON] Failed to record end of %s: %v", entry.JobName, err)
	}
}
