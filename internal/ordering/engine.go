package ordering

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gateway описывает, что движку нужно от постоянного хранилища. Каждый метод
// атомарен сам по себе: AppendNext выбирает ранг и вставляет запись за один
// шаг, чтобы два одновременных вступления в очередь не увидели один максимум.
type Gateway interface {
	// AppendNext выдаёт пользователю следующий ранг очереди и сохраняет
	// запись. Ошибки: ErrQueueNotFound, ErrAlreadyMember.
	AppendNext(ctx context.Context, queueID, userID uuid.UUID, joinedAt time.Time) (Entry, error)
	// DeleteEntry возвращает ErrNotMember, если удалять нечего.
	DeleteEntry(ctx context.Context, queueID, userID uuid.UUID) error
	// ListEntries возвращает записи очереди в произвольном порядке или
	// ErrQueueNotFound. Проверка очереди и чтение записей атомарны.
	ListEntries(ctx context.Context, queueID uuid.UUID) ([]Entry, error)
	QueueExists(ctx context.Context, queueID uuid.UUID) (bool, error)
}

// Engine применяет правила членства поверх Gateway. Состояния между вызовами
// не хранит, повторов не делает.
type Engine struct {
	store Gateway
	log   *zap.Logger
	now   func() time.Time
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock подменяет источник времени для joined_at.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Gateway, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   zap.NewNop(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Join ставит пользователя в конец очереди и возвращает сохранённую запись.
func (e *Engine) Join(ctx context.Context, queueID, userID uuid.UUID) (Entry, error) {
	entry, err := e.store.AppendNext(ctx, queueID, userID, e.now())
	if err != nil {
		e.log.Debug("join rejected",
			zap.Stringer("queue_id", queueID), zap.Stringer("user_id", userID), zap.Error(err))
		return Entry{}, err
	}
	e.log.Info("member joined",
		zap.Stringer("queue_id", queueID), zap.Stringer("user_id", userID), zap.Int64("rank", entry.Rank))
	return entry, nil
}

// Leave убирает пользователя из очереди. Ранги остальных не меняются.
func (e *Engine) Leave(ctx context.Context, queueID, userID uuid.UUID) error {
	if err := e.store.DeleteEntry(ctx, queueID, userID); err != nil {
		return err
	}
	e.log.Info("member left", zap.Stringer("queue_id", queueID), zap.Stringer("user_id", userID))
	return nil
}

// ListOrdered возвращает участников очереди в порядке обслуживания.
func (e *Engine) ListOrdered(ctx context.Context, queueID uuid.UUID) ([]Entry, error) {
	entries, err := e.store.ListEntries(ctx, queueID)
	if err != nil {
		return nil, err
	}
	return OrderEntries(entries), nil
}
