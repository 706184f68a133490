package tasks

import (
	"context"
	"time"

	"oqueue/internal/events"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ExpiredQueueStore описывает, что планировщику нужно от хранилища очередей.
type ExpiredQueueStore interface {
	DeleteExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type Planner struct {
	queues  ExpiredQueueStore
	events  events.Publisher
	log     *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

func NewPlanner(queues ExpiredQueueStore, pub events.Publisher, log *zap.Logger) *Planner {
	return &Planner{
		queues:  queues,
		events:  pub,
		log:     log.Named("tasks"),
		now:     func() time.Time { return time.Now().UTC() },
		timeout: time.Minute,
	}
}

// PurgeExpiredQueues удаляет очереди, у которых прошёл exists_before, вместе
// с участниками и оповещает подписчиков.
func (p *Planner) PurgeExpiredQueues(ctx context.Context) error {
	ids, err := p.queues.DeleteExpired(ctx, p.now())
	if err != nil {
		return errors.Wrap(err, "purge expired queues")
	}
	if len(ids) == 0 {
		p.log.Debug("no expired queues")
		return nil
	}
	for _, id := range ids {
		if err := p.events.Publish(ctx, events.Event{EventType: events.QueueDeleted, QueueID: id.String()}); err != nil {
			p.log.Warn("publish queue_deleted", zap.Stringer("queue_id", id), zap.Error(err))
		}
	}
	p.log.Info("expired queues removed", zap.Int("count", len(ids)))
	return nil
}

// InitScheduler инициализирует планировщик cron-задач и запускает его.
func (p *Planner) InitScheduler(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.PurgeExpiredQueues(ctx); err != nil {
			p.log.Error("cron job failed", zap.String("job", "purge_expired_queues"), zap.Error(err))
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "schedule purge %q", spec)
	}

	c.Start()
	p.log.Info("cron scheduler started", zap.String("purge_schedule", spec))
	return c, nil
}
