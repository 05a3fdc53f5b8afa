package repo

import (
	"context"

	"autoflow"
	"autoflow/internal/api/models"

	"gorm.io/gorm"
)

const defaultRunListLimit = 20

type WorkflowRunRepository struct {
	Db *gorm.DB
}

func NewWorkflowRunRepository() *WorkflowRunRepository {
	return &WorkflowRunRepository{Db: autoflow.DB}
}

func (slf *WorkflowRunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	return slf.Db.WithContext(ctx).Create(run).Error
}

func (slf *WorkflowRunRepository) FindLatest(ctx context.Context, userID, workflowID string) (models.WorkflowRun, error) {
	var run models.WorkflowRun
	err := slf.Db.WithContext(ctx).
		Where("workflow_id = ? AND user_id = ?", workflowID, userID).
		Order("started_at DESC").
		First(&run).Error
	return run, err
}

// ListByWorkflow returns the most recent runs of userID first. A non positive
// limit falls back to the default page size.
func (slf *WorkflowRunRepository) ListByWorkflow(ctx context.Context, userID, workflowID string, limit int) ([]models.WorkflowRun, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	var runs []models.WorkflowRun
	err := slf.Db.WithContext(ctx).
		Where("workflow_id = ? AND user_id = ?", workflowID, userID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
