package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"timetracker/internal/model"
)

// ShortcutRepository persists timer shortcuts.
type ShortcutRepository struct {
	db *gorm.DB
}

func NewShortcutRepository(db *gorm.DB) *ShortcutRepository {
	return &ShortcutRepository{db: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *ShortcutRepository) WithTx(tx *gorm.DB) *ShortcutRepository {
	return &ShortcutRepository{db: tx}
}

func (r *ShortcutRepository) Create(ctx context.Context, shortcut *model.TimerShortcut) error {
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Create(shortcut).Error
	})
	if err != nil {
		return fmt.Errorf("create shortcut: %w", err)
	}
	return nil
}

// ListByUser returns the user's shortcuts, pinned first, then by sort
// order.
func (r *ShortcutRepository) ListByUser(ctx context.Context, userID uint) ([]model.TimerShortcut, error) {
	var shortcuts []model.TimerShortcut
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("pinned DESC, sort_order ASC, id ASC").
		Find(&shortcuts).Error; err != nil {
		return nil, fmt.Errorf("list shortcuts: %w", err)
	}
	return shortcuts, nil
}

// ListByTask returns every shortcut referencing the task, across users.
func (r *ShortcutRepository) ListByTask(ctx context.Context, taskID uint) ([]model.TimerShortcut, error) {
	var shortcuts []model.TimerShortcut
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Find(&shortcuts).Error; err != nil {
		return nil, fmt.Errorf("list shortcuts by task: %w", err)
	}
	return shortcuts, nil
}

// FindByID returns the shortcut, or nil when absent.
func (r *ShortcutRepository) FindByID(ctx context.Context, id uint) (*model.TimerShortcut, error) {
	var shortcut model.TimerShortcut
	err := r.db.WithContext(ctx).First(&shortcut, id).Error
	switch {
	case err == nil:
		return &shortcut, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find shortcut %d: %w", id, err)
	}
}

func (r *ShortcutRepository) Save(ctx context.Context, shortcut *model.TimerShortcut) error {
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Save(shortcut).Error
	})
	if err != nil {
		return fmt.Errorf("save shortcut: %w", err)
	}
	return nil
}

func (r *ShortcutRepository) Delete(ctx context.Context, id uint) error {
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Delete(&model.TimerShortcut{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("delete shortcut: %w", err)
	}
	return nil
}

// MaxSortOrder returns the highest sort order among a user's shortcuts,
// 0 when they have none.
func (r *ShortcutRepository) MaxSortOrder(ctx context.Context, userID uint) (int, error) {
	var max sql.NullInt64
	if err := r.db.WithContext(ctx).Model(&model.TimerShortcut{}).
		Where("user_id = ?", userID).
		Select("MAX(sort_order)").Scan(&max).Error; err != nil {
		return 0, fmt.Errorf("max sort order: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}
