package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"timetracker/internal/model"
)

// TaskRepository reads the task directory. Task CRUD belongs to the rest
// of the platform; the tracker only needs existence checks and the
// deletion hook that keeps timers and shortcuts consistent.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *TaskRepository) WithTx(tx *gorm.DB) *TaskRepository {
	return &TaskRepository{db: tx}
}

// FindByID returns the task, or nil when absent.
func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).First(&task, id).Error
	switch {
	case err == nil:
		return &task, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find task %d: %w", id, err)
	}
}

// ExistingIDs filters ids down to tasks that still exist.
func (r *TaskRepository) ExistingIDs(ctx context.Context, ids []uint) (map[uint]bool, error) {
	existing := make(map[uint]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}
	var found []uint
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("check task ids: %w", err)
	}
	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}

// Delete removes the task row.
func (r *TaskRepository) Delete(ctx context.Context, id uint) error {
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Delete(&model.Task{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
