package response

import (
	"time"

	"github.com/google/uuid"
)

// SuccessResponse представляет успешный ответ API
type SuccessResponse struct {
	Message string `json:"message" example:"Операция успешно выполнена"`
}

// ErrorResponse представляет ответ с ошибкой API
type ErrorResponse struct {
	// Код ошибки для программной обработки
	// example: VALIDATION_ERROR
	Code string `json:"code"`

	// Человекочитаемое сообщение об ошибке
	// example: Ошибка валидации данных
	Message string `json:"message"`

	// Дополнительные детали об ошибке (опционально)
	// example: поле email должно быть валидным email адресом
	Details string `json:"details,omitempty"`

	// Можно ли повторить запрос позже
	Retryable bool `json:"retryable,omitempty"`
}

// TokenResponse представляет ответ с токенами авторизации
type TokenResponse struct {
	// JWT токен для доступа к защищенным эндпоинтам
	// example: eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...
	AccessToken string `json:"access_token"`

	// JWT токен для обновления access токена
	// example: eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...
	RefreshToken string `json:"refresh_token"`
}

type UserInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type QueueInfo struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	OrganizerID  uuid.UUID `json:"organizer_id"`
	CreatedAt    time.Time `json:"created_at"`
	ExistsBefore time.Time `json:"exists_before"`
}

// MemberInfo описывает участника очереди. Position считается от 1 в порядке
// обслуживания, Rank хранится и после выхода других участников не меняется.
type MemberInfo struct {
	UserID      uuid.UUID `json:"user_id"`
	Position    int       `json:"position"`
	Rank        int64     `json:"rank"`
	HasPriority bool      `json:"has_priority"`
	IsHeld      bool      `json:"is_held"`
	JoinedAt    time.Time `json:"joined_at"`
}

// JoinResponse возвращается при вступлении в очередь.
type JoinResponse struct {
	Message string `json:"message"`
	Rank    int64  `json:"rank"`
}

// UserQueueItem описывает очередь, в которой стоит пользователь.
type UserQueueItem struct {
	Queue    QueueInfo `json:"queue"`
	Rank     int64     `json:"rank"`
	IsHeld   bool      `json:"is_held"`
	JoinedAt time.Time `json:"joined_at"`
}
