package models

import (
	"time"

	"github.com/google/uuid"
)

type Queue struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"not null"`
	Description  string    `gorm:"not null;default:''"`
	OrganizerID  uuid.UUID `gorm:"type:uuid;index;not null"` // Владелец очереди
	CreatedAt    time.Time `gorm:"not null"`
	ExistsBefore time.Time `gorm:"index;not null"` // После этого момента очередь считается неактивной
	// NextRank получит следующий вступивший участник.
	// Только растёт, меняется в одной транзакции со вставкой записи.
	NextRank int64 `gorm:"not null;default:0"`
}
