package storage

import (
	"context"
	"database/sql"
	"time"

	"oqueue/internal/models"
	"oqueue/internal/ordering"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MembershipGateway хранит участников очередей в SQL через gorm.
type MembershipGateway struct {
	db *gorm.DB
}

var _ ordering.Gateway = (*MembershipGateway)(nil)

func NewMembershipGateway(db *gorm.DB) *MembershipGateway {
	return &MembershipGateway{db: db}
}

// AppendNext выполняет всё в одной транзакции. Строка очереди блокируется
// (SELECT ... FOR UPDATE), поэтому вступления в одну очередь идут строго
// друг за другом и не видят один и тот же максимум.
func (g *MembershipGateway) AppendNext(ctx context.Context, queueID, userID uuid.UUID, joinedAt time.Time) (ordering.Entry, error) {
	var entry models.QueueEntry
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var queue models.Queue
		err := lockRow(tx, "UPDATE").
			Select("id", "next_rank").
			Where("id = ?", queueID).
			Take(&queue).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ordering.ErrQueueNotFound
		}
		if err != nil {
			return ordering.Unavailable(err, "lock queue")
		}

		var taken int64
		if err := tx.Model(&models.QueueEntry{}).
			Where("queue_id = ? AND user_id = ?", queueID, userID).
			Count(&taken).Error; err != nil {
			return ordering.Unavailable(err, "check membership")
		}
		if taken > 0 {
			return ordering.ErrAlreadyMember
		}

		var highest sql.NullInt64
		if err := tx.Model(&models.QueueEntry{}).
			Select("MAX(rank)").
			Where("queue_id = ?", queueID).
			Row().Scan(&highest); err != nil {
			return ordering.Unavailable(err, "read max rank")
		}
		var current *int64
		if highest.Valid {
			current = &highest.Int64
		}
		rank := ordering.JoinRankAfter(current)
		// Счётчик не даёт повторно выдать ранг ушедшего последним участника.
		if queue.NextRank > rank {
			rank = queue.NextRank
		}

		entry = models.QueueEntry{
			QueueID:  queueID,
			UserID:   userID,
			Rank:     rank,
			JoinedAt: joinedAt,
		}
		if err := tx.Create(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ordering.ErrAlreadyMember
			}
			return ordering.Unavailable(err, "insert entry")
		}

		if err := tx.Model(&models.Queue{}).
			Where("id = ?", queueID).
			Update("next_rank", rank+1).Error; err != nil {
			return ordering.Unavailable(err, "advance rank")
		}
		return nil
	})
	if err != nil {
		return ordering.Entry{}, classify(err, "append entry")
	}
	return toEntry(entry), nil
}

func (g *MembershipGateway) DeleteEntry(ctx context.Context, queueID, userID uuid.UUID) error {
	res := g.db.WithContext(ctx).
		Where("queue_id = ? AND user_id = ?", queueID, userID).
		Delete(&models.QueueEntry{})
	if res.Error != nil {
		return ordering.Unavailable(res.Error, "delete entry")
	}
	if res.RowsAffected == 0 {
		return ordering.ErrNotMember
	}
	return nil
}

// ListEntries читает очередь и её участников в одной транзакции. Строка
// очереди берётся FOR SHARE, поэтому каскадное удаление не может пройти между
// проверкой и чтением: либо список целиком, либо ErrQueueNotFound.
func (g *MembershipGateway) ListEntries(ctx context.Context, queueID uuid.UUID) ([]ordering.Entry, error) {
	var rows []models.QueueEntry
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var queue models.Queue
		err := lockRow(tx, "SHARE").Select("id").Where("id = ?", queueID).Take(&queue).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ordering.ErrQueueNotFound
		}
		if err != nil {
			return ordering.Unavailable(err, "find queue")
		}
		if err := tx.Where("queue_id = ?", queueID).Find(&rows).Error; err != nil {
			return ordering.Unavailable(err, "list entries")
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "list entries")
	}
	entries := make([]ordering.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, toEntry(r))
	}
	return entries, nil
}

func (g *MembershipGateway) QueueExists(ctx context.Context, queueID uuid.UUID) (bool, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&models.Queue{}).Where("id = ?", queueID).Count(&n).Error; err != nil {
		return false, ordering.Unavailable(err, "find queue")
	}
	return n > 0, nil
}

// lockRow добавляет FOR UPDATE / FOR SHARE там, где они есть. В sqlite
// блокировок строк нет: писатель один, и транзакция и так держит базу целиком.
func lockRow(tx *gorm.DB, strength string) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: strength})
}

func toEntry(m models.QueueEntry) ordering.Entry {
	return ordering.Entry{
		QueueID:     m.QueueID,
		UserID:      m.UserID,
		Rank:        m.Rank,
		HasPriority: m.HasPriority,
		IsHeld:      m.IsHeld,
		JoinedAt:    m.JoinedAt,
	}
}
