package handlers

import (
	"context"
	"net/http"
	"time"

	"oqueue/internal/auth"
	"oqueue/internal/events"
	"oqueue/internal/ordering"
	"oqueue/internal/response"
	"oqueue/internal/storage"
	"oqueue/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Handler собирает зависимости HTTP-слоя.
type Handler struct {
	Engine        *ordering.Engine
	Queues        *storage.QueueRepository
	Users         *storage.UserRepository
	Tokens        *auth.Tokens
	Events        events.Publisher
	Hub           *ws.Hub
	Log           *zap.Logger
	QueueLifetime time.Duration
	Now           func() time.Time
}

// Routes регистрирует маршруты. protected оборачивает всё под /api.
func (h *Handler) Routes(r gin.IRouter, protected ...gin.HandlerFunc) {
	r.GET("/ping", Ping)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.RefreshToken)
	}

	// Лента событий очереди открыта без токена, как и раньше.
	r.GET("/api/queues/:id/ws", h.QueueWebSocketHandler)

	api := r.Group("/api", protected...)
	{
		api.GET("/users/me", h.MeHandler)
		api.GET("/users/:id", h.UserHandler)

		api.POST("/queues", h.CreateQueueHandler)
		api.GET("/queues", h.ListQueuesHandler)
		api.GET("/queues/:id", h.GetQueueHandler)
		api.DELETE("/queues/:id", h.DeleteQueueHandler)

		api.GET("/queues/:id/members", h.QueueMembersHandler)
		api.POST("/queues/:id/members/me", h.JoinQueueHandler)
		api.DELETE("/queues/:id/members/me", h.LeaveQueueHandler)
		api.POST("/queues/:id/members/:user_id", h.AddMemberHandler)
		api.DELETE("/queues/:id/members/:user_id", h.RemoveMemberHandler)

		api.GET("/profile/queues", h.GetUserQueuesHandler)
	}
}

// Ping godoc
// @Summary	Проверка доступности
// @Tags		service
// @Produce	plain
// @Success	200	{string}	string	"Pong!"
// @Router		/ping [get]
func Ping(c *gin.Context) {
	c.String(http.StatusOK, "Pong!")
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *Handler) publish(ctx context.Context, ev events.Event) {
	if h.Events == nil {
		return
	}
	if err := h.Events.Publish(ctx, ev); err != nil {
		h.Log.Warn("publish event", zap.String("event_type", ev.EventType), zap.String("queue_id", ev.QueueID), zap.Error(err))
	}
}

func paramUUID(c *gin.Context, name, code, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    code,
			Message: message,
		})
		return uuid.Nil, false
	}
	return id, true
}

func queueIDParam(c *gin.Context) (uuid.UUID, bool) {
	return paramUUID(c, "id", "INVALID_QUEUE_ID", "Неверный идентификатор очереди")
}

// writeError переводит доменные ошибки в HTTP-ответ.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		status = http.StatusInternalServerError
		body   = response.ErrorResponse{Code: "INTERNAL_ERROR", Message: "Внутренняя ошибка сервера"}
	)
	switch {
	case errors.Is(err, ordering.ErrQueueNotFound):
		status, body = http.StatusNotFound, response.ErrorResponse{Code: "QUEUE_NOT_FOUND", Message: "Очередь не найдена"}
	case errors.Is(err, ordering.ErrNotMember):
		status, body = http.StatusNotFound, response.ErrorResponse{Code: "NOT_IN_QUEUE", Message: "Запись в очереди не найдена"}
	case errors.Is(err, storage.ErrUserNotFound):
		status, body = http.StatusNotFound, response.ErrorResponse{Code: "USER_NOT_FOUND", Message: "Пользователь не найден"}
	case errors.Is(err, ordering.ErrAlreadyMember):
		status, body = http.StatusConflict, response.ErrorResponse{Code: "ALREADY_IN_QUEUE", Message: "Пользователь уже состоит в этой очереди"}
	case errors.Is(err, storage.ErrEmailTaken):
		status, body = http.StatusConflict, response.ErrorResponse{Code: "EMAIL_EXISTS", Message: "Пользователь с таким email уже существует"}
	case ordering.Retryable(err):
		status, body = http.StatusServiceUnavailable, response.ErrorResponse{
			Code:      "STORAGE_UNAVAILABLE",
			Message:   "Хранилище временно недоступно, повторите запрос",
			Retryable: true,
		}
		c.Header("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}
