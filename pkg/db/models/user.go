package models

import "time"

// User carries the cached per-address running totals. PendingCredits is
// recomputed transactionally on settlement; CalculatedCredits is a
// lifetime counter and never decreases.
type User struct {
	Address           string    `gorm:"column:address;primaryKey;size:42"`
	PendingCredits    int64     `gorm:"column:pending_credits;not null;default:0"`
	CalculatedCredits int64     `gorm:"column:calculated_credits;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }
