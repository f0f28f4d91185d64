package models

import "time"

// AppLock is a lease row used to elect one instance for background jobs
// when several replicas share the database.
type AppLock struct {
	LockName   string    `gorm:"primaryKey;size:255"`
	InstanceID string    `gorm:"size:255;not null"`
	AcquiredAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName specifies the table name for GORM
func (AppLock) TableName() string {
	return "app_locks"
}
