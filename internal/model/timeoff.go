package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Time-off request statuses. Only approved requests reduce availability.
const (
	TimeOffPending  = "pending"
	TimeOffApproved = "approved"
	TimeOffRejected = "rejected"
)

// TimeOff is an approved-or-pending absence over an inclusive day range.
// HoursPerDay is how much of the daily baseline each covered day consumes.
type TimeOff struct {
	ID          uint            `gorm:"primaryKey"`
	UserID      uint            `gorm:"index"`
	StartDay    string          `gorm:"size:10"`
	EndDay      string          `gorm:"size:10"`
	HoursPerDay decimal.Decimal `gorm:"type:decimal(20,4)"`
	Status      string          `gorm:"default:pending;index"`
	Reason      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Covers reports whether day (YYYY-MM-DD) falls inside the request range.
func (t *TimeOff) Covers(day string) bool {
	return t.StartDay <= day && day <= t.EndDay
}
