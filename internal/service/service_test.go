package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"timetracker/internal/model"
	"timetracker/internal/repository"
)

// newTestDB opens a throwaway in-memory database. cache=shared keeps the
// schema alive across the pooled connections gorm opens; the test name
// keeps databases isolated from each other.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := repository.NewDB(dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := repository.EnsureWorkDayKey(db); err != nil {
		t.Fatalf("install work day key: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	db        *gorm.DB
	users     *repository.UserRepository
	tasks     *repository.TaskRepository
	timers    *repository.TimerRepository
	days      *repository.WorklogRepository
	shortcuts *repository.ShortcutRepository
}

func newFixture(t *testing.T) *fixture {
	db := newTestDB(t)
	return &fixture{
		db:        db,
		users:     repository.NewUserRepository(db),
		tasks:     repository.NewTaskRepository(db),
		timers:    repository.NewTimerRepository(db),
		days:      repository.NewWorklogRepository(db),
		shortcuts: repository.NewShortcutRepository(db),
	}
}

func (f *fixture) timerService(t *testing.T) *TimerService {
	t.Helper()
	return NewTimerService(f.db, f.timers, f.days, f.tasks, f.users, time.UTC)
}

func (f *fixture) worklogService(t *testing.T) *WorklogService {
	t.Helper()
	return NewWorklogService(f.db, f.days, f.tasks, f.users, time.UTC)
}

var telegramIDSeq int64

func (f *fixture) seedUser(t *testing.T, user model.User) model.User {
	t.Helper()
	if user.WeeklyHours.IsZero() {
		user.WeeklyHours = decimal.NewFromInt(40)
	}
	if user.TelegramID == 0 {
		// TelegramID is uniquely indexed; keep seeded users distinct.
		user.TelegramID = atomic.AddInt64(&telegramIDSeq, 1)
	}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (f *fixture) seedTask(t *testing.T, name string) model.Task {
	t.Helper()
	task := model.Task{Name: name}
	if err := f.db.Create(&task).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

func wantHours(t *testing.T, got decimal.Decimal, want float64, label string) {
	t.Helper()
	if !got.Equal(decimal.NewFromFloat(want)) {
		t.Fatalf("%s = %s, want %v", label, got, want)
	}
}

// recordingNotifier captures sent messages for assertions.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	ChatID int64
	Text   string
}

func (n *recordingNotifier) Send(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}
