package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/persistence/models"
)

// GormSyncRunRepository implements the integration.SyncRunRepository interface
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new sync run repository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

var _ integration.SyncRunRepository = (*GormSyncRunRepository)(nil)

// Create persists a newly started run.
func (r *GormSyncRunRepository) Create(ctx context.Context, run *integration.SyncRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	model := models.SyncRunModelFromDomain(run)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create sync run for %s: %w", run.Channel, err)
	}
	return nil
}

// Finish persists the outcome of a run created earlier.
func (r *GormSyncRunRepository) Finish(ctx context.Context, run *integration.SyncRun) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"pulled":      run.Pulled,
			"failed":      run.Failed,
			"status":      string(run.Status),
			"error":       run.Error,
			"finished_at": run.FinishedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish sync run %s: %w", run.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("sync run %s not found", run.ID)
	}
	return nil
}

// ListRecent returns the latest runs for a channel, newest first.
func (r *GormSyncRunRepository) ListRecent(ctx context.Context, channel integration.ChannelCode, limit int) ([]*integration.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.SyncRunModel
	err := r.db.WithContext(ctx).
		Where("channel = ?", string(channel)).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs for %s: %w", channel, err)
	}

	runs := make([]*integration.SyncRun, 0, len(rows))
	for i := range rows {
		runs = append(runs, rows[i].ToDomain())
	}
	return runs, nil
}

// LastSuccessFor returns the Until of the channel's most recent successful
// run. Partial and failed runs do not advance the cursor, so orders a broken
// run missed are re-pulled on the next window.
func (r *GormSyncRunRepository) LastSuccessFor(ctx context.Context, channel integration.ChannelCode) (*time.Time, error) {
	var model models.SyncRunModel
	err := r.db.WithContext(ctx).
		Where("channel = ? AND status = ?", string(channel), string(integration.SyncStatusSuccess)).
		Order("until_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find last success for %s: %w", channel, err)
	}
	until := model.UntilAt
	return &until, nil
}
