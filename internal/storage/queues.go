package storage

import (
	"context"
	"time"

	"oqueue/internal/models"
	"oqueue/internal/ordering"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// QueueRepository хранит метаданные очередей. Порядка участников не касается.
type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// MemberQueue связывает очередь с записью участника в ней.
type MemberQueue struct {
	Queue models.Queue
	Entry models.QueueEntry
}

func (r *QueueRepository) Create(ctx context.Context, q *models.Queue) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(q).Error; err != nil {
		return ordering.Unavailable(err, "create queue")
	}
	return nil
}

func (r *QueueRepository) ByID(ctx context.Context, id uuid.UUID) (models.Queue, error) {
	var q models.Queue
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Queue{}, ordering.ErrQueueNotFound
	}
	if err != nil {
		return models.Queue{}, ordering.Unavailable(err, "get queue")
	}
	return q, nil
}

// Delete удаляет очередь вместе с её участниками в одной транзакции.
func (r *QueueRepository) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteQueues(tx, []uuid.UUID{id})
	})
	return classify(err, "delete queue")
}

// DeleteExpired удаляет очереди с истёкшим exists_before и возвращает их id.
func (r *QueueRepository) DeleteExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Queue{}).
			Where("exists_before < ?", now).
			Pluck("id", &ids).Error; err != nil {
			return ordering.Unavailable(err, "find expired queues")
		}
		if len(ids) == 0 {
			return nil
		}
		return deleteQueues(tx, ids)
	})
	if err != nil {
		return nil, classify(err, "delete expired queues")
	}
	return ids, nil
}

func deleteQueues(tx *gorm.DB, ids []uuid.UUID) error {
	if err := tx.Where("queue_id IN ?", ids).Delete(&models.QueueEntry{}).Error; err != nil {
		return ordering.Unavailable(err, "delete entries")
	}
	res := tx.Where("id IN ?", ids).Delete(&models.Queue{})
	if res.Error != nil {
		return ordering.Unavailable(res.Error, "delete queues")
	}
	if res.RowsAffected == 0 {
		return ordering.ErrQueueNotFound
	}
	return nil
}

// Available возвращает очереди, которые пользователь организует или в которых стоит.
// Сначала свои, без повторов.
func (r *QueueRepository) Available(ctx context.Context, userID uuid.UUID) ([]models.Queue, error) {
	db := r.db.WithContext(ctx)

	var organized []models.Queue
	if err := db.Where("organizer_id = ?", userID).Order("created_at").Find(&organized).Error; err != nil {
		return nil, ordering.Unavailable(err, "list organized queues")
	}

	var joined []models.Queue
	if err := db.
		Joins("JOIN queue_entries ON queue_entries.queue_id = queues.id").
		Where("queue_entries.user_id = ?", userID).
		Order("queue_entries.joined_at").
		Find(&joined).Error; err != nil {
		return nil, ordering.Unavailable(err, "list joined queues")
	}

	seen := make(map[uuid.UUID]bool, len(organized)+len(joined))
	out := make([]models.Queue, 0, len(organized)+len(joined))
	for _, q := range append(organized, joined...) {
		if seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		out = append(out, q)
	}
	return out, nil
}

// WithMember возвращает очереди, где стоит пользователь, с его записью.
func (r *QueueRepository) WithMember(ctx context.Context, userID uuid.UUID) ([]MemberQueue, error) {
	db := r.db.WithContext(ctx)

	var entries []models.QueueEntry
	if err := db.Where("user_id = ?", userID).Order("joined_at").Find(&entries).Error; err != nil {
		return nil, ordering.Unavailable(err, "list user entries")
	}
	if len(entries) == 0 {
		return []MemberQueue{}, nil
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.QueueID)
	}
	var queues []models.Queue
	if err := db.Where("id IN ?", ids).Find(&queues).Error; err != nil {
		return nil, ordering.Unavailable(err, "list queues")
	}
	byID := make(map[uuid.UUID]models.Queue, len(queues))
	for _, q := range queues {
		byID[q.ID] = q
	}

	out := make([]MemberQueue, 0, len(entries))
	for _, e := range entries {
		q, ok := byID[e.QueueID]
		if !ok {
			continue
		}
		out = append(out, MemberQueue{Queue: q, Entry: e})
	}
	return out, nil
}
