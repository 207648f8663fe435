package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DayLayout is the storage format for calendar days. Lexical order equals
// chronological order, so range scans work on plain string comparison.
const DayLayout = "2006-01-02"

// WorkDay is the unique container of everything a user logged against one
// task on one calendar day. TaskID 0 means "no task": SQLite treats NULLs
// in a unique index as pairwise distinct, so a zero sentinel is what makes
// the composite key actually enforce one task-less day per user per date.
//
// The unique (user_id, task_id, day) index is deliberately absent from
// the gorm tags: the constraint was retrofitted over data that predates
// it, so schema migration must not install it before the consolidation
// routine has merged duplicate rows. repository.EnsureWorkDayKey installs
// it once the data is clean.
//
// TotalHours and BillableHours are cached sums over Sessions, rewritten
// inside every transaction that touches the session set. Manual entries
// (TimerBased false) may carry an entered total instead; see WorklogService.
type WorkDay struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID        uint            `gorm:"index"`
	TaskID        uint            `gorm:"index"`
	Day           string          `gorm:"size:10;index"`
	TotalHours    decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	BillableHours decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	TimerBased    bool            `gorm:"default:false"`
	Sessions      []WorkSession   `gorm:"foreignKey:WorkDayID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (d *WorkDay) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// RecomputeTotals rewrites the cached sums from the loaded session set.
func (d *WorkDay) RecomputeTotals() {
	total, billable := decimal.Zero, decimal.Zero
	for _, s := range d.Sessions {
		total = total.Add(s.DurationHours)
		if s.Billable {
			billable = billable.Add(s.DurationHours)
		}
	}
	d.TotalHours = total
	d.BillableHours = billable
}

// WorkSession is one contiguous worked interval inside a WorkDay.
// DurationHours is always EndTime minus StartTime in hours and always
// positive. Only EndTime, Billable and Note are editable after creation.
type WorkSession struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	WorkDayID     uuid.UUID `gorm:"type:uuid;index"`
	StartTime     time.Time
	EndTime       time.Time
	DurationHours decimal.Decimal `gorm:"type:decimal(20,4)"`
	Billable      bool            `gorm:"default:true"`
	Note          string
	CreatedAt     time.Time
}

func (s *WorkSession) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
