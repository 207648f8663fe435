package model

import "time"

// ActiveTimer is the single in-flight timer a user may have. The unique
// index on UserID is the concurrency contract: a second concurrent start
// hits the constraint instead of silently overwriting. The record is
// working state, not history; stop converts it into a WorkSession and
// discard drops it.
type ActiveTimer struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"uniqueIndex"`
	TaskID    uint `gorm:"index"`
	StartTime time.Time
	Note      string
	CreatedAt time.Time
}

// Elapsed is the running duration measured at now. The timer is a stored
// timestamp, not a clock in memory.
func (t *ActiveTimer) Elapsed(now time.Time) time.Duration {
	return now.Sub(t.StartTime)
}

// TimerShortcut is an ordered, user-owned start template. It points at a
// task but never at a work day or session; deleting the task leaves the
// shortcut orphaned rather than cascading.
type TimerShortcut struct {
	ID         uint `gorm:"primaryKey"`
	UserID     uint `gorm:"index"`
	TaskID     uint `gorm:"index"`
	Label      string
	SortOrder  int
	Pinned     bool `gorm:"default:false"`
	UseCount   int  `gorm:"default:0"`
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
