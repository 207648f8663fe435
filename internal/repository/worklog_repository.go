package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"timetracker/internal/model"
)

// WorkDayKey is the natural key a work day is unique on.
type WorkDayKey struct {
	UserID uint
	TaskID uint
	Day    string
}

// WorklogRepository persists work days and their sessions.
type WorklogRepository struct {
	db *gorm.DB
}

func NewWorklogRepository(db *gorm.DB) *WorklogRepository {
	return &WorklogRepository{db: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *WorklogRepository) WithTx(tx *gorm.DB) *WorklogRepository {
	return &WorklogRepository{db: tx}
}

// Create inserts a work day (and any attached sessions), failing with
// model.ErrConflict when the (user, task, day) key is already taken.
func (r *WorklogRepository) Create(ctx context.Context, day *model.WorkDay) error {
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Create(day).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("work day %s exists for user %d task %d: %w",
			day.Day, day.UserID, day.TaskID, model.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create work day: %w", err)
	}
	return nil
}

// FindByKey returns the work day for the natural key, or nil when absent.
func (r *WorklogRepository) FindByKey(ctx context.Context, key WorkDayKey) (*model.WorkDay, error) {
	var day model.WorkDay
	err := r.db.WithContext(ctx).Preload("Sessions").
		Where("user_id = ? AND task_id = ? AND day = ?", key.UserID, key.TaskID, key.Day).
		First(&day).Error
	switch {
	case err == nil:
		return &day, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find work day: %w", err)
	}
}

// FindByID returns the work day with its sessions, or nil when absent.
func (r *WorklogRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.WorkDay, error) {
	var day model.WorkDay
	err := r.db.WithContext(ctx).Preload("Sessions").Where("id = ?", id).First(&day).Error
	switch {
	case err == nil:
		return &day, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find work day %s: %w", id, err)
	}
}

// SaveTotals rewrites the cached sums of an already-loaded work day.
func (r *WorklogRepository) SaveTotals(ctx context.Context, day *model.WorkDay) error {
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Model(&model.WorkDay{}).Where("id = ?", day.ID).
			Updates(map[string]interface{}{
				"total_hours":    day.TotalHours,
				"billable_hours": day.BillableHours,
			}).Error
	})
	if err != nil {
		return fmt.Errorf("save totals: %w", err)
	}
	return nil
}

// DeleteDay removes a work day and whatever sessions still hang off it.
// The delete is explicit rather than left to the FK cascade, which SQLite
// only honors when foreign keys are enabled on the connection.
func (r *WorklogRepository) DeleteDay(ctx context.Context, id uuid.UUID) error {
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("work_day_id = ?", id).Delete(&model.WorkSession{}).Error; err != nil {
				return err
			}
			return tx.Where("id = ?", id).Delete(&model.WorkDay{}).Error
		})
	})
	if err != nil {
		return fmt.Errorf("delete work day: %w", err)
	}
	return nil
}

// ListRange returns a user's work days with day in [from, to], oldest first.
func (r *WorklogRepository) ListRange(ctx context.Context, userID uint, from, to string) ([]model.WorkDay, error) {
	var days []model.WorkDay
	if err := r.db.WithContext(ctx).Preload("Sessions").
		Where("user_id = ? AND day >= ? AND day <= ?", userID, from, to).
		Order("day ASC, task_id ASC").
		Find(&days).Error; err != nil {
		return nil, fmt.Errorf("list work days: %w", err)
	}
	return days, nil
}

// CreateSession inserts one session row. Totals are the caller's job and
// must be rewritten in the same transaction.
func (r *WorklogRepository) CreateSession(ctx context.Context, session *model.WorkSession) error {
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Create(session).Error
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// SessionByID returns a session, or nil when absent.
func (r *WorklogRepository) SessionByID(ctx context.Context, id uuid.UUID) (*model.WorkSession, error) {
	var session model.WorkSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	switch {
	case err == nil:
		return &session, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find session %s: %w", id, err)
	}
}

// SaveSession persists edits to a session row.
func (r *WorklogRepository) SaveSession(ctx context.Context, session *model.WorkSession) error {
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Save(session).Error
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession removes one session row.
func (r *WorklogRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.WorkSession{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SessionsForDay returns a day's sessions, oldest first.
func (r *WorklogRepository) SessionsForDay(ctx context.Context, dayID uuid.UUID) ([]model.WorkSession, error) {
	var sessions []model.WorkSession
	if err := r.db.WithContext(ctx).Where("work_day_id = ?", dayID).
		Order("start_time ASC, id ASC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// LoggedHoursByUser sums total_hours per user over [from, to]. Users with
// nothing logged are simply absent from the map.
func (r *WorklogRepository) LoggedHoursByUser(ctx context.Context, from, to string, userIDs []uint) (map[uint]decimal.Decimal, error) {
	type row struct {
		UserID uint
		Hours  decimal.Decimal
	}
	q := r.db.WithContext(ctx).Model(&model.WorkDay{}).
		Select("user_id, SUM(total_hours) AS hours").
		Where("day >= ? AND day <= ?", from, to).
		Group("user_id")
	if len(userIDs) > 0 {
		q = q.Where("user_id IN ?", userIDs)
	}
	var rows []row
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("sum logged hours: %w", err)
	}
	logged := make(map[uint]decimal.Decimal, len(rows))
	for _, rw := range rows {
		logged[rw.UserID] = rw.Hours
	}
	return logged, nil
}

// DuplicateKeys lists every (user, task, day) key held by more than one
// work day. Empty on a consolidated dataset.
func (r *WorklogRepository) DuplicateKeys(ctx context.Context) ([]WorkDayKey, error) {
	var keys []WorkDayKey
	if err := r.db.WithContext(ctx).Model(&model.WorkDay{}).
		Select("user_id, task_id, day").
		Group("user_id, task_id, day").
		Having("COUNT(*) > 1").
		Scan(&keys).Error; err != nil {
		return nil, fmt.Errorf("find duplicate keys: %w", err)
	}
	return keys, nil
}

// Group returns every work day holding the key, survivor order first
// (earliest created_at, ties broken by id).
func (r *WorklogRepository) Group(ctx context.Context, key WorkDayKey) ([]model.WorkDay, error) {
	var days []model.WorkDay
	if err := r.db.WithContext(ctx).Preload("Sessions").
		Where("user_id = ? AND task_id = ? AND day = ?", key.UserID, key.TaskID, key.Day).
		Order("created_at ASC, id ASC").
		Find(&days).Error; err != nil {
		return nil, fmt.Errorf("load work day group: %w", err)
	}
	return days, nil
}

// ReparentSessions moves every session of one day onto another and returns
// how many moved. Consolidation is the only caller; nothing else may move
// a session between days.
func (r *WorklogRepository) ReparentSessions(ctx context.Context, fromDayID, toDayID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.WorkSession{}).
		Where("work_day_id = ?", fromDayID).
		Update("work_day_id", toDayID)
	if res.Error != nil {
		return 0, fmt.Errorf("reparent sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
