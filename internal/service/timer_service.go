package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"timetracker/internal/model"
	"timetracker/internal/repository"
)

// maxSessionHours rejects stops that would record an absurd interval —
// most likely a forgotten timer or clock skew. The timer is kept so the
// user can discard it.
var maxSessionHours = decimal.NewFromInt(24)

// TimerPatch carries in-place edits to a running timer. StartTime is
// deliberately not editable.
type TimerPatch struct {
	TaskID *uint
	Note   *string
}

// TimerService is the timer state machine: Idle → Running via Start,
// Running → Idle via Stop (which writes the worked interval into the
// user's work day) or Discard (which drops it).
type TimerService struct {
	db     *gorm.DB
	timers *repository.TimerRepository
	days   *repository.WorklogRepository
	tasks  *repository.TaskRepository
	users  *repository.UserRepository
	loc    *time.Location

	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

func NewTimerService(
	db *gorm.DB,
	timers *repository.TimerRepository,
	days *repository.WorklogRepository,
	tasks *repository.TaskRepository,
	users *repository.UserRepository,
	loc *time.Location,
) *TimerService {
	if loc == nil {
		loc = time.Local
	}
	return &TimerService{
		db:     db,
		timers: timers,
		days:   days,
		tasks:  tasks,
		users:  users,
		loc:    loc,
		Now:    time.Now,
	}
}

// Start begins a timer for the user. A user already running a timer gets
// model.ErrConflict; there is no implicit stop-and-restart.
func (s *TimerService) Start(ctx context.Context, userID, taskID uint, note string) (*model.ActiveTimer, error) {
	if err := s.checkTask(ctx, taskID); err != nil {
		return nil, err
	}
	timer := &model.ActiveTimer{
		UserID:    userID,
		TaskID:    taskID,
		StartTime: s.Now(),
		Note:      note,
	}
	if err := s.timers.Create(ctx, timer); err != nil {
		return nil, err
	}
	return timer, nil
}

// Active returns the user's running timer, nil when idle.
func (s *TimerService) Active(ctx context.Context, userID uint) (*model.ActiveTimer, error) {
	return s.timers.FindByUser(ctx, userID)
}

// UpdateRunning patches the task or note of a running timer without
// touching its start time or any work day.
func (s *TimerService) UpdateRunning(ctx context.Context, userID uint, patch TimerPatch) (*model.ActiveTimer, error) {
	timer, err := s.timers.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if timer == nil {
		return nil, fmt.Errorf("no timer running for user %d: %w", userID, model.ErrNotFound)
	}
	if patch.TaskID != nil {
		if err := s.checkTask(ctx, *patch.TaskID); err != nil {
			return nil, err
		}
		timer.TaskID = *patch.TaskID
	}
	if patch.Note != nil {
		timer.Note = *patch.Note
	}
	if err := s.timers.Save(ctx, timer); err != nil {
		return nil, err
	}
	return timer, nil
}

// Stop ends the user's timer and records the interval on the work day of
// the start time's calendar date (in the user's timezone). Find-or-create
// of the day, the session insert, the total recompute and the timer delete
// all happen in one transaction, so a concurrent manual entry for the same
// key cannot produce a second day and readers never observe stale totals.
func (s *TimerService) Stop(ctx context.Context, userID uint) (*model.WorkDay, error) {
	now := s.Now()
	var result *model.WorkDay
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		timers := s.timers.WithTx(tx)
		days := s.days.WithTx(tx)

		timer, err := timers.FindByUser(ctx, userID)
		if err != nil {
			return err
		}
		if timer == nil {
			return fmt.Errorf("no timer running for user %d: %w", userID, model.ErrNotFound)
		}

		duration := decimal.NewFromFloat(now.Sub(timer.StartTime).Hours()).Round(4)
		if !duration.IsPositive() {
			return fmt.Errorf("timer for user %d spans %s hours: %w", userID, duration, model.ErrInvalidInterval)
		}
		if duration.GreaterThan(maxSessionHours) {
			return fmt.Errorf("timer for user %d ran %s hours: %w", userID, duration, model.ErrInvalidInterval)
		}

		key := repository.WorkDayKey{
			UserID: userID,
			TaskID: timer.TaskID,
			Day:    timer.StartTime.In(s.locationFor(ctx, userID)).Format(model.DayLayout),
		}
		day, err := s.findOrCreateDay(ctx, days, key)
		if err != nil {
			return err
		}

		session := &model.WorkSession{
			WorkDayID:     day.ID,
			StartTime:     timer.StartTime,
			EndTime:       now,
			DurationHours: duration,
			Billable:      true,
			Note:          timer.Note,
		}
		if err := days.CreateSession(ctx, session); err != nil {
			return err
		}

		day.Sessions, err = days.SessionsForDay(ctx, day.ID)
		if err != nil {
			return err
		}
		day.RecomputeTotals()
		if err := days.SaveTotals(ctx, day); err != nil {
			return err
		}

		if _, err := timers.DeleteByUser(ctx, userID); err != nil {
			return err
		}
		result = day
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Discard drops the user's running timer without recording anything.
// Intentional data loss for time the user does not want counted.
func (s *TimerService) Discard(ctx context.Context, userID uint) error {
	existed, err := s.timers.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("no timer running for user %d: %w", userID, model.ErrNotFound)
	}
	return nil
}

// findOrCreateDay resolves the work day for the key, creating a fresh
// timer-based one when none exists. A conflict on create means another
// writer got there first; re-fetch and use theirs.
func (s *TimerService) findOrCreateDay(ctx context.Context, days *repository.WorklogRepository, key repository.WorkDayKey) (*model.WorkDay, error) {
	day, err := days.FindByKey(ctx, key)
	if err != nil || day != nil {
		return day, err
	}
	day = &model.WorkDay{
		UserID:     key.UserID,
		TaskID:     key.TaskID,
		Day:        key.Day,
		TimerBased: true,
	}
	err = days.Create(ctx, day)
	if errors.Is(err, model.ErrConflict) {
		return days.FindByKey(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	return day, nil
}

func (s *TimerService) checkTask(ctx context.Context, taskID uint) error {
	if taskID == 0 {
		return nil
	}
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %d: %w", taskID, model.ErrNotFound)
	}
	return nil
}

func (s *TimerService) locationFor(ctx context.Context, userID uint) *time.Location {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return s.loc
	}
	return user.Location(s.loc)
}
