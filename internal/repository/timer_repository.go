package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"timetracker/internal/model"
)

// TimerRepository persists the one-per-user ActiveTimer records.
type TimerRepository struct {
	db *gorm.DB
}

func NewTimerRepository(db *gorm.DB) *TimerRepository {
	return &TimerRepository{db: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *TimerRepository) WithTx(tx *gorm.DB) *TimerRepository {
	return &TimerRepository{db: tx}
}

// Create inserts the timer, failing with model.ErrConflict when the user
// already has one running. The unique index on user_id makes this safe
// against concurrent starts: the second writer fails, it does not overwrite.
func (r *TimerRepository) Create(ctx context.Context, timer *model.ActiveTimer) error {
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Create(timer).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("timer already running for user %d: %w", timer.UserID, model.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create timer: %w", err)
	}
	return nil
}

// FindByUser returns the user's running timer, or nil when idle.
func (r *TimerRepository) FindByUser(ctx context.Context, userID uint) (*model.ActiveTimer, error) {
	var timer model.ActiveTimer
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&timer).Error
	switch {
	case err == nil:
		return &timer, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find timer: %w", err)
	}
}

// Save persists in-place edits to a running timer.
func (r *TimerRepository) Save(ctx context.Context, timer *model.ActiveTimer) error {
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Save(timer).Error
	})
	if err != nil {
		return fmt.Errorf("save timer: %w", err)
	}
	return nil
}

// DeleteByUser removes the user's timer and reports whether one existed.
func (r *TimerRepository) DeleteByUser(ctx context.Context, userID uint) (bool, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.ActiveTimer{})
	if res.Error != nil {
		return false, fmt.Errorf("delete timer: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListByTask returns all running timers pointing at the given task.
func (r *TimerRepository) ListByTask(ctx context.Context, taskID uint) ([]model.ActiveTimer, error) {
	var timers []model.ActiveTimer
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Find(&timers).Error; err != nil {
		return nil, fmt.Errorf("list timers by task: %w", err)
	}
	return timers, nil
}
