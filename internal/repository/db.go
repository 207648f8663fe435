package repository

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"timetracker/internal/model"
)

// NewDB opens a SQLite database and runs migrations. TranslateError is on
// so unique-key violations surface as gorm.ErrDuplicatedKey, which the
// repositories map onto model.ErrConflict.
func NewDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "timetracker.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Department{},
		&model.User{},
		&model.Task{},
		&model.TimeOff{},
		&model.ActiveTimer{},
		&model.TimerShortcut{},
		&model.WorkDay{},
		&model.WorkSession{},
	); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return db, nil
}

// EnsureWorkDayKey installs the unique (user_id, task_id, day) index on
// work days. Deliberately not part of NewDB: on a database that predates
// the constraint the index can only be created once the consolidation
// routine has merged duplicate rows, so the caller runs the repair first
// and installs the constraint last.
func EnsureWorkDayKey(db *gorm.DB) error {
	err := db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_workday_key ON work_days(user_id, task_id, day)",
	).Error
	if err != nil {
		return fmt.Errorf("install work day key: %w", err)
	}
	return nil
}

// ensureDirForSQLite creates the parent dir for a SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

// withRetry runs fn once more if it fails transiently (sqlite busy or
// locked). A second failure is wrapped in model.ErrUnavailable so callers
// can tell storage trouble from business outcomes.
func withRetry(fn func() error) error {
	err := fn()
	if err == nil || !isTransient(err) {
		return err
	}
	if err = fn(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrUnavailable, err)
	}
	return nil
}

func isTransient(err error) bool {
	if err == nil || errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
