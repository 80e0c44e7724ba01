package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/model"
)

var errNotConfigured = errors.New("job dependency not configured")

// ImportLocalPapers uploads PDFs dropped into DATA_DIR that are not yet
// catalogued. Runs every 15 minutes.
func (m *CronManager) ImportLocalPapers(ctx context.Context) (string, error) {
	if m.papers == nil {
		return "", errNotConfigured
	}
	if m.cfg.DataDir == "" {
		return "DATA_DIR not set, nothing to import", nil
	}

	report, err := m.papers.ImportDir(ctx, m.cfg.DataDir)
	if err != nil {
		return "", fmt.Errorf("import from %s: %w", m.cfg.DataDir, err)
	}

	if len(report.Failed) > 0 {
		log.Warnf("[CRON] %d papers failed to import: %v", len(report.Failed), report.Failed)
	}
	return fmt.Sprintf("Found %d, imported %d, skipped %d, failed %d",
		report.Found, report.Imported, report.Skipped, len(report.Failed)), nil
}

// CleanupTokenBlacklist deletes revoked tokens that have expired anyway.
// Runs daily.
func (m *CronManager) CleanupTokenBlacklist(ctx context.Context) (string, error) {
	if m.blacklist == nil {
		return "", errNotConfigured
	}

	removed, err := m.blacklist.CleanupExpiredTokens(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to clean token blacklist: %w", err)
	}
	return fmt.Sprintf("Removed %d expired tokens", removed), nil
}

// PruneExplanationLogs deletes explanation logs past the retention period.
// Runs daily.
func (m *CronManager) PruneExplanationLogs(ctx context.Context) (string, error) {
	if m.db == nil {
		return "", errNotConfigured
	}

	cutoff := m.now().AddDate(0, 0, -m.cfg.RetentionDays)
	result := m.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.ExplanationLog{})
	if result.Error != nil {
		return "", fmt.Errorf("failed to prune explanation logs: %w", result.Error)
	}

	// job logs share the retention period
	jobs := m.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.CronJobLog{})
	if jobs.Error != nil {
		log.Warnf("[CRON] Failed to prune cron job logs: %v", jobs.Error)
	}

	return fmt.Sprintf("Pruned %d explanation logs and %d job logs older than %d days",
		result.RowsAffected, jobs.RowsAffected, m.cfg.RetentionDays), nil
}
