package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"timetracker/internal/model"
	"timetracker/internal/repository"
)

// SessionPatch carries the editable fields of a session. Start time is
// fixed; an interval that started wrong should be deleted and re-added.
type SessionPatch struct {
	EndTime  *time.Time
	Billable *bool
	Note     *string
}

// WorklogService manages manual entries and session-level edits. It never
// touches the ActiveTimer: manual writes bypass the state machine but still
// respect the one-day-per-(user, task, date) key.
type WorklogService struct {
	db    *gorm.DB
	days  *repository.WorklogRepository
	tasks *repository.TaskRepository
	users *repository.UserRepository
	loc   *time.Location
}

func NewWorklogService(
	db *gorm.DB,
	days *repository.WorklogRepository,
	tasks *repository.TaskRepository,
	users *repository.UserRepository,
	loc *time.Location,
) *WorklogService {
	if loc == nil {
		loc = time.Local
	}
	return &WorklogService{db: db, days: days, tasks: tasks, users: users, loc: loc}
}

// CreateManualEntry records a hand-entered total for (user, task, day).
// The day gets one synthetic session carrying the total so downstream
// consumers can treat every day uniformly. An existing day for the key is
// model.ErrConflict — callers edit the existing day instead.
func (s *WorklogService) CreateManualEntry(ctx context.Context, userID, taskID uint, day string, hours decimal.Decimal, billable bool) (*model.WorkDay, error) {
	date, err := time.ParseInLocation(model.DayLayout, day, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("bad day %q: %w", day, model.ErrInvalidInterval)
	}
	if !hours.IsPositive() || hours.GreaterThan(maxSessionHours) {
		return nil, fmt.Errorf("manual entry of %s hours: %w", hours, model.ErrInvalidInterval)
	}
	if taskID != 0 {
		task, err := s.tasks.FindByID(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task == nil {
			return nil, fmt.Errorf("task %d: %w", taskID, model.ErrNotFound)
		}
	}

	billableHours := decimal.Zero
	if billable {
		billableHours = hours
	}
	entry := &model.WorkDay{
		UserID:        userID,
		TaskID:        taskID,
		Day:           day,
		TotalHours:    hours,
		BillableHours: billableHours,
		TimerBased:    false,
		Sessions: []model.WorkSession{{
			StartTime:     date,
			EndTime:       date.Add(time.Duration(hours.InexactFloat64() * float64(time.Hour))),
			DurationHours: hours,
			Billable:      billable,
			Note:          "manual entry",
		}},
	}
	if err := s.days.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// WorkDayByID returns the caller's work day with sessions.
func (s *WorklogService) WorkDayByID(ctx context.Context, userID uint, dayID uuid.UUID) (*model.WorkDay, error) {
	day, err := s.days.FindByID(ctx, dayID)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, fmt.Errorf("work day %s: %w", dayID, model.ErrNotFound)
	}
	if day.UserID != userID {
		return nil, fmt.Errorf("work day %s belongs to user %d: %w", dayID, day.UserID, model.ErrNotPermitted)
	}
	return day, nil
}

// ListWorkDays returns the user's days with day in [from, to].
func (s *WorklogService) ListWorkDays(ctx context.Context, userID uint, from, to string) ([]model.WorkDay, error) {
	return s.days.ListRange(ctx, userID, from, to)
}

// AddSession appends a worked interval to an existing day and recomputes
// its totals in the same transaction. From here on the day's totals are
// derived, manual or not.
func (s *WorklogService) AddSession(ctx context.Context, userID uint, dayID uuid.UUID, start, end time.Time, billable bool, note string) (*model.WorkDay, error) {
	duration := decimal.NewFromFloat(end.Sub(start).Hours()).Round(4)
	if !duration.IsPositive() || duration.GreaterThan(maxSessionHours) {
		return nil, fmt.Errorf("session of %s hours: %w", duration, model.ErrInvalidInterval)
	}

	var result *model.WorkDay
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		days := s.days.WithTx(tx)
		day, err := s.ownedDay(ctx, days, userID, dayID)
		if err != nil {
			return err
		}
		if got := start.In(s.locationFor(ctx, userID)).Format(model.DayLayout); got != day.Day {
			return fmt.Errorf("session starts on %s, day is %s: %w", got, day.Day, model.ErrInvalidInterval)
		}
		session := &model.WorkSession{
			WorkDayID:     day.ID,
			StartTime:     start,
			EndTime:       end,
			DurationHours: duration,
			Billable:      billable,
			Note:          note,
		}
		if err := days.CreateSession(ctx, session); err != nil {
			return err
		}
		result, err = s.refreshTotals(ctx, days, day)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EditSession updates end time, billable flag or note of a session and
// recomputes the owning day's totals transactionally.
func (s *WorklogService) EditSession(ctx context.Context, userID uint, sessionID uuid.UUID, patch SessionPatch) (*model.WorkDay, error) {
	var result *model.WorkDay
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		days := s.days.WithTx(tx)
		session, err := days.SessionByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return fmt.Errorf("session %s: %w", sessionID, model.ErrNotFound)
		}
		day, err := s.ownedDay(ctx, days, userID, session.WorkDayID)
		if err != nil {
			return err
		}

		if patch.EndTime != nil {
			duration := decimal.NewFromFloat(patch.EndTime.Sub(session.StartTime).Hours()).Round(4)
			if !duration.IsPositive() || duration.GreaterThan(maxSessionHours) {
				return fmt.Errorf("session of %s hours: %w", duration, model.ErrInvalidInterval)
			}
			session.EndTime = *patch.EndTime
			session.DurationHours = duration
		}
		if patch.Billable != nil {
			session.Billable = *patch.Billable
		}
		if patch.Note != nil {
			session.Note = *patch.Note
		}
		if err := days.SaveSession(ctx, session); err != nil {
			return err
		}
		result, err = s.refreshTotals(ctx, days, day)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteSession removes a session. Removing the last one deletes the day
// itself, in which case the returned day is nil.
func (s *WorklogService) DeleteSession(ctx context.Context, userID uint, sessionID uuid.UUID) (*model.WorkDay, error) {
	var result *model.WorkDay
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		days := s.days.WithTx(tx)
		session, err := days.SessionByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return fmt.Errorf("session %s: %w", sessionID, model.ErrNotFound)
		}
		day, err := s.ownedDay(ctx, days, userID, session.WorkDayID)
		if err != nil {
			return err
		}
		if err := days.DeleteSession(ctx, sessionID); err != nil {
			return err
		}
		remaining, err := days.SessionsForDay(ctx, day.ID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			return days.DeleteDay(ctx, day.ID)
		}
		day.Sessions = remaining
		day.RecomputeTotals()
		if err := days.SaveTotals(ctx, day); err != nil {
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

// DeleteWorkDay removes a whole day; its sessions cascade.
func (s *WorklogService) DeleteWorkDay(ctx context.Context, userID uint, dayID uuid.UUID) error {
	day, err := s.WorkDayByID(ctx, userID, dayID)
	if err != nil {
		return err
	}
	return s.days.DeleteDay(ctx, day.ID)
}

func (s *WorklogService) ownedDay(ctx context.Context, days *repository.WorklogRepository, userID uint, dayID uuid.UUID) (*model.WorkDay, error) {
	day, err := days.FindByID(ctx, dayID)
	if err != nil {
		return nil, err
	}
	if day == nil {
		return nil, fmt.Errorf("work day %s: %w", dayID, model.ErrNotFound)
	}
	if day.UserID != userID {
		return nil, fmt.Errorf("work day %s belongs to user %d: %w", dayID, day.UserID, model.ErrNotPermitted)
	}
	return day, nil
}

func (s *WorklogService) refreshTotals(ctx context.Context, days *repository.WorklogRepository, day *model.WorkDay) (*model.WorkDay, error) {
	sessions, err := days.SessionsForDay(ctx, day.ID)
	if err != nil {
		return nil, err
	}
	day.Sessions = sessions
	day.RecomputeTotals()
	if err := days.SaveTotals(ctx, day); err != nil {
		return nil, err
	}
	return day, nil
}

func (s *WorklogService) locationFor(ctx context.Context, userID uint) *time.Location {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return s.loc
	}
	return user.Location(s.loc)
}
