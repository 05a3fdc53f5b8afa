package repo

import (
	"context"
	"time"

	"autoflow"
	"autoflow/internal/api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WorkflowRepository struct {
	Db *gorm.DB
}

func NewWorkflowRepository() *WorkflowRepository {
	return &WorkflowRepository{Db: autoflow.DB}
}

// Upsert inserts the workflow or replaces its editable columns. An id held by
// another user is left untouched and reported as gorm.ErrRecordNotFound.
func (slf *WorkflowRepository) Upsert(ctx context.Context, wf *models.Workflow) error {
	result := slf.Db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "graph", "schedule", "active", "next_run_at", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: `"workflows"."user_id" = excluded."user_id"`},
			}},
		}).
		Create(wf)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (slf *WorkflowRepository) FindByID(ctx context.Context, userID, id string) (models.Workflow, error) {
	var wf models.Workflow
	err := slf.Db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&wf).Error
	return wf, err
}

// FindDue returns active scheduled workflows whose next run is not after now,
// oldest first.
func (slf *WorkflowRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]models.Workflow, error) {
	var workflows []models.Workflow
	err := slf.Db.WithContext(ctx).
		Where("active = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&workflows).Error
	return workflows, err
}

// MarkFired records a scheduled run and its next activation. A nil next
// takes the workflow off the schedule.
func (slf *WorkflowRepository) MarkFired(ctx context.Context, id string, firedAt time.Time, next *time.Time) error {
	return slf.Db.WithContext(ctx).
		Model(&models.Workflow{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_at": firedAt,
			"next_run_at": next,
		}).Error
}
