package storage

import (
	"context"
	"strings"

	"oqueue/internal/models"
	"oqueue/internal/ordering"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.Wrap(ordering.ErrNotFound, "user")
	ErrEmailTaken   = errors.Wrap(ordering.ErrConflict, "email already registered")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// NormalizeEmail приводит email к виду, в котором он хранится.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = NormalizeEmail(u.Email)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("email = ?", u.Email).Count(&n).Error; err != nil {
			return ordering.Unavailable(err, "check email")
		}
		if n > 0 {
			return ErrEmailTaken
		}
		if err := tx.Create(u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return ordering.Unavailable(err, "create user")
		}
		return nil
	})
	return classify(err, "create user")
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (models.User, error) {
	return r.take(ctx, "email = ?", NormalizeEmail(email))
}

func (r *UserRepository) ByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return r.take(ctx, "id = ?", id)
}

func (r *UserRepository) take(ctx context.Context, query string, arg interface{}) (models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where(query, arg).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, ordering.Unavailable(err, "get user")
	}
	return u, nil
}
