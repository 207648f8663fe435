package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timetracker/internal/model"
)

func TestStartStopRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, model.User{})
	task := f.seedTask(t, "billing")
	svc := f.timerService(t)

	start := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return start }

	timer, err := svc.Start(ctx, user.ID, task.ID, "invoice run")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !timer.StartTime.Equal(start) {
		t.Fatalf("start time = %v, want %v", timer.StartTime, start)
	}

	svc.Now = func() time.Time { return start.Add(90 * time.Minute) }
	day, err := svc.Stop(ctx, user.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	if len(day.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(day.Sessions))
	}
	wantHours(t, day.Sessions[0].DurationHours, 1.5, "session duration")
	wantHours(t, day.TotalHours, 1.5, "total hours")
	wantHours(t, day.BillableHours, 1.5, "billable hours")
	if day.Day != "2024-03-12" {
		t.Fatalf("day = %s, want 2024-03-12", day.Day)
	}
	if !day.TimerBased {
		t.Fatal("day should be timer based")
	}

	active, err := svc.Active(ctx, user.ID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active != nil {
		t.Fatal("timer should be gone after stop")
	}
}

func TestStartConflictKeepsFirstTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, model.User{})
	taskA := f.seedTask(t, "a")
	taskB := f.seedTask(t, "b")
	svc := f.timerService(t)

	if _, err := svc.Start(ctx, user.ID, taskA.ID, ""); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := svc.Start(ctx, user.ID, taskB.ID, "")
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("second start err = %v, want ErrConflict", err)
	}

	active, err := svc.Active(ctx, user.ID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil || active.TaskID != taskA.ID {
		t.Fatalf("active timer = %+v, want task %d unchanged", active, taskA.ID)
	}
}

// Two goroutines race to start a timer for the same user; the unique
// index decides the winner and the loser gets a conflict, never a second
// timer row.
func TestStartRaceAdmitsSingleTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, model.User{})
	taskA := f.seedTask(t, "a")
	taskB := f.seedTask(t, "b")
	svc := f.timerService(t)

	// One pooled connection serializes the writes at the database, so
	// the loser hits the unique index instead of a transient lock.
	sqlDB, err := f.db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, taskID := range []uint{taskA.ID, taskB.ID} {
		wg.Add(1)
		go func(i int, taskID uint) {
			defer wg.Done()
			_, errs[i] = svc.Start(ctx, user.ID, taskID, "")
		}(i, taskID)
	}
	wg.Wait()

	var started, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			started++
		case errors.Is(err, model.ErrConflict):
			conflicted++
		default:
			t.Fatalf("start err = %v, want nil or ErrConflict", err)
		}
	}
	if started != 1 || conflicted != 1 {
		t.Fatalf("started = %d, conflicted = %d, want exactly one of each", started, conflicted)
	}

	var count int64
	if err := f.db.Model(&model.ActiveTimer{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count timers: %v", err)
	}
	if count != 1 {
		t.Fatalf("timers = %d, want 1", count)
	}
}

func TestStopWithoutTimer(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, model.User{})
	svc := f.timerService(t)

	if _, err := svc.Stop(context.Background(), user.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("stop err = %v, want ErrNotFound", err)
	}
}

func TestStopRejectsNonPositiveDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, model.User{})
	svc := f.timerService(t)

	start := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return start }
	if _, err := svc.Start(ctx, user.ID, 0, ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Clock skew: stop observes a time before the start.
	svc.Now = func() time.Time { return start.Add(-time.Minute) }
	if _, err := svc.Stop(ctx, user.ID); !errors.Is(err, model.ErrInvalidInterval) {
		t.Fatalf("stop err = %v, want ErrInvalidInterval", err)
	}

	// The timer survives a failed stop so the user can discard it.
	active, err := svc.Active(ctx, user.ID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil {
		t.Fatal("timer should survive an invalid stop")
	}
}

func TestStopRejectsAbsurdDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, model.User{})
	svc := f.timerService(t)

	start := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return start }
	if _, err := svc.Start(ctx, user.ID, 0, ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	svc.Now = func() time.Time { return start.Add(30 * 24 * time.Hour) }
	if _, err := svc.Stop(ctx, user.ID); !errors.Is(err, model.ErrInvalidInterval) {
		t.Fatalf("stop err = %v, want ErrInvalidInterval", err)
	}
}

func TestDiscardDropsTimerWithoutRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, model.User{})
	svc := f.timerService(t)

	if _, err := svc.Start(ctx, user.ID, 0, "scratch"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Discard(ctx, user.ID); err != nil {
		t.Fatalf("discard: %v", err)
	}

	active, err := svc.Active(ctx, user.ID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active != nil {
		t.Fatal("timer should be gone after discard")
	}

	days, err := f.days.ListRange(ctx, user.ID, "2000-01-01", "2100-01-01")
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(days) != 0 {
		t.Fatalf("days = %d, want 0 (discard records nothing)", len(days))
	}

	if err := svc.Discard(ctx, user.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("second discard err = %v, want ErrNotFound", err)
	}
}

func TestUpdateRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, model.User{})
	taskA := f.seedTask(t, "a")
	taskB := f.seedTask(t, "b")
	svc := f.timerService(t)

	if _, err := svc.UpdateRunning(ctx, user.ID, TimerPatch{}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("update idle err = %v, want ErrNotFound", err)
	}

	start := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return start }
	if _, err := svc.Start(ctx, user.ID, taskA.ID, "old"); err != nil {
		t.Fatalf("start: %v", err)
	}

	note := "new"
	updated, err := svc.UpdateRunning(ctx, user.ID, TimerPatch{TaskID: &taskB.ID, Note: &note})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.TaskID != taskB.ID || updated.Note != "new" {
		t.Fatalf("updated = %+v", updated)
	}
	if !updated.StartTime.Equal(start) {
		t.Fatalf("start time changed to %v", updated.StartTime)
	}

	days, err := f.days.ListRange(ctx, user.ID, "2000-01-01", "2100-01-01")
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(days) != 0 {
		t.Fatal("update of a running timer must not touch work days")
	}
}

func TestStartUnknownTask(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, model.User{})
	svc := f.timerService(t)

	if _, err := svc.Start(context.Background(), user.ID, 999, ""); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("start err = %v, want ErrNotFound", err)
	}
}

func TestStopAppendsToExistingDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, model.User{})
	task := f.seedTask(t, "support")
	svc := f.timerService(t)

	start := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	for i, span := range []time.Duration{time.Hour, 30 * time.Minute} {
		at := start.Add(time.Duration(i) * 3 * time.Hour)
		svc.Now = func() time.Time { return at }
		if _, err := svc.Start(ctx, user.ID, task.ID, ""); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		svc.Now = func() time.Time { return at.Add(span) }
		if _, err := svc.Stop(ctx, user.ID); err != nil {
			t.Fatalf("stop %d: %v", i, err)
		}
	}

	days, err := f.days.ListRange(ctx, user.ID, "2024-03-12", "2024-03-12")
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("days = %d, want exactly one per (user, task, date)", len(days))
	}
	if len(days[0].Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(days[0].Sessions))
	}
	wantHours(t, days[0].TotalHours, 1.5, "total hours")
}
