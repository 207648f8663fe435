package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// User stores the directory data the tracker needs: notification address,
// timezone for day attribution and the weekly-hours baseline for capacity.
type User struct {
	ID           uint  `gorm:"primaryKey"`
	TelegramID   int64 `gorm:"uniqueIndex"`
	FirstName    string
	LastName     string
	Username     string
	Timezone     string
	WeeklyHours  decimal.Decimal `gorm:"type:decimal(20,4);default:40"`
	DepartmentID uint            `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Location resolves the user's timezone, falling back to the given default
// when unset or unparsable.
func (u *User) Location(fallback *time.Location) *time.Location {
	if u == nil || u.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// DisplayName returns the best human-readable name available.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return "user"
}

// Department groups users for capacity rollups.
type Department struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Users     []User `gorm:"foreignKey:DepartmentID"`
}
