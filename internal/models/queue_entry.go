package models

import (
	"time"

	"github.com/google/uuid"
)

type QueueEntry struct {
	QueueID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Rank        int64     `gorm:"not null;index"`
	HasPriority bool      `gorm:"not null;default:false"` // Зарезервировано, на порядок не влияет
	IsHeld      bool      `gorm:"not null;default:false"`
	JoinedAt    time.Time `gorm:"not null"`
}
