package model

import "time"

// Task is the minimal directory entity the tracker references. Full task
// management lives elsewhere in the platform; time records only need a
// stable id to point at.
type Task struct {
	ID        uint `gorm:"primaryKey"`
	Name      string
	Archived  bool `gorm:"default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
