package handlers

import (
	"net/http"

	"oqueue/internal/auth"
	"oqueue/internal/events"
	"oqueue/internal/models"
	"oqueue/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CreateQueueRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=1000"`
}

func queueInfo(q models.Queue) response.QueueInfo {
	return response.QueueInfo{
		ID:           q.ID,
		Name:         q.Name,
		Description:  q.Description,
		OrganizerID:  q.OrganizerID,
		CreatedAt:    q.CreatedAt,
		ExistsBefore: q.ExistsBefore,
	}
}

// CreateQueueHandler создаёт очередь, организатором становится текущий пользователь
// @Summary		Создание очереди
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			queue	body	CreateQueueRequest	true	"Название и описание"
// @Security		BearerAuth
// @Success		201	{object}	response.QueueInfo
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		503	{object}	response.ErrorResponse	"Хранилище недоступно (STORAGE_UNAVAILABLE)"
// @Router			/api/queues [post]
func (h *Handler) CreateQueueHandler(c *gin.Context) {
	var req CreateQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	now := h.now()
	queue := models.Queue{
		Name:         req.Name,
		Description:  req.Description,
		OrganizerID:  auth.UserID(c),
		CreatedAt:    now,
		ExistsBefore: now.Add(h.QueueLifetime),
	}
	if err := h.Queues.Create(c.Request.Context(), &queue); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, queueInfo(queue))
}

// ListQueuesHandler godoc
// @Summary		Доступные очереди
// @Description	Очереди, которые пользователь организует или в которых стоит
// @Tags			queue
// @Produce		json
// @Security		BearerAuth
// @Success		200	{array}	response.QueueInfo
// @Router			/api/queues [get]
func (h *Handler) ListQueuesHandler(c *gin.Context) {
	queues, err := h.Queues.Available(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]response.QueueInfo, 0, len(queues))
	for _, q := range queues {
		out = append(out, queueInfo(q))
	}
	c.JSON(http.StatusOK, out)
}

// GetQueueHandler godoc
// @Summary	Информация об очереди
// @Tags		queue
// @Produce	json
// @Param		id	path	string	true	"ID очереди"
// @Security	BearerAuth
// @Success	200	{object}	response.QueueInfo
// @Failure	400	{object}	response.ErrorResponse	"Ошибка валидации (INVALID_QUEUE_ID)"
// @Failure	404	{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Router		/api/queues/{id} [get]
func (h *Handler) GetQueueHandler(c *gin.Context) {
	queueID, ok := queueIDParam(c)
	if !ok {
		return
	}
	queue, err := h.Queues.ByID(c.Request.Context(), queueID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, queueInfo(queue))
}

// DeleteQueueHandler удаляет очередь вместе со всеми участниками
// @Summary	Удаление очереди
// @Tags		queue
// @Produce	json
// @Param		id	path	string	true	"ID очереди"
// @Security	BearerAuth
// @Success	200	{object}	response.SuccessResponse
// @Failure	403	{object}	response.ErrorResponse	"Не организатор (NOT_ORGANIZER)"
// @Failure	404	{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Router		/api/queues/{id} [delete]
func (h *Handler) DeleteQueueHandler(c *gin.Context) {
	queueID, ok := queueIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	queue, err := h.Queues.ByID(ctx, queueID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if queue.OrganizerID != auth.UserID(c) {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "NOT_ORGANIZER",
			Message: "Удалить очередь может только организатор",
		})
		return
	}

	if err := h.Queues.Delete(ctx, queueID); err != nil {
		h.writeError(c, err)
		return
	}

	h.publish(ctx, events.Event{EventType: events.QueueDeleted, QueueID: queueID.String()})
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Очередь удалена"})
}

// QueueMembersHandler возвращает участников в порядке обслуживания
// @Summary		Участники очереди
// @Description	Сначала удержанные участники, затем остальные по рангу
// @Tags			queue
// @Produce		json
// @Param			id	path	string	true	"ID очереди"
// @Security		BearerAuth
// @Success		200	{array}		response.MemberInfo
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (INVALID_QUEUE_ID)"
// @Failure		404	{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Failure		503	{object}	response.ErrorResponse	"Хранилище недоступно (STORAGE_UNAVAILABLE)"
// @Router			/api/queues/{id}/members [get]
func (h *Handler) QueueMembersHandler(c *gin.Context) {
	queueID, ok := queueIDParam(c)
	if !ok {
		return
	}

	entries, err := h.Engine.ListOrdered(c.Request.Context(), queueID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	members := make([]response.MemberInfo, 0, len(entries))
	for i, e := range entries {
		members = append(members, response.MemberInfo{
			UserID:      e.UserID,
			Position:    i + 1,
			Rank:        e.Rank,
			HasPriority: e.HasPriority,
			IsHeld:      e.IsHeld,
			JoinedAt:    e.JoinedAt,
		})
	}
	c.JSON(http.StatusOK, members)
}

// JoinQueueHandler обрабатывает запрос на вступление в очередь
// @Summary		Вступление в очередь
// @Description	Добавляет пользователя в конец очереди и уведомляет других участников
// @Tags			queue
// @Produce		json
// @Param			id	path		string	true	"ID очереди"
// @Security		BearerAuth
// @Success		200	{object}	response.JoinResponse	"Успешное вступление в очередь с указанием ранга"
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (INVALID_QUEUE_ID)"
// @Failure		404	{object}	response.ErrorResponse	"Очередь не найдена (QUEUE_NOT_FOUND)"
// @Failure		409	{object}	response.ErrorResponse	"Уже в очереди (ALREADY_IN_QUEUE)"
// @Failure		503	{object}	response.ErrorResponse	"Хранилище недоступно (STORAGE_UNAVAILABLE)"
// @Router			/api/queues/{id}/members/me [post]
func (h *Handler) JoinQueueHandler(c *gin.Context) {
	queueID, ok := queueIDParam(c)
	if !ok {
		return
	}
	h.join(c, queueID, auth.UserID(c))
}

// LeaveQueueHandler обрабатывает запрос на выход из очереди
// @Summary		Выход из очереди
// @Description	Удаляет пользователя из очереди и уведомляет других участников
// @Tags			queue
// @Produce		json
// @Param			id	path		string	true	"ID очереди"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse	"Успешный выход из очереди"
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (INVALID_QUEUE_ID)"
// @Failure		404	{object}	response.ErrorResponse	"Не в очереди (NOT_IN_QUEUE)"
// @Failure		503	{object}	response.ErrorResponse	"Хранилище недоступно (STORAGE_UNAVAILABLE)"
// @Router			/api/queues/{id}/members/me [delete]
func (h *Handler) LeaveQueueHandler(c *gin.Context) {
	queueID, ok := queueIDParam(c)
	if !ok {
		return
	}
	h.leave(c, queueID, auth.UserID(c))
}

// AddMemberHandler ставит в очередь другого пользователя (только организатор)
// @Summary	Добавление участника
// @Tags		queue
// @Produce	json
// @Param		id		path	string	true	"ID очереди"
// @Param		user_id	path	string	true	"ID пользователя"
// @Security	BearerAuth
// @Success	200	{object}	response.JoinResponse
// @Failure	403	{object}	response.ErrorResponse	"Не организатор (NOT_ORGANIZER)"
// @Failure	404	{object}	response.ErrorResponse	"Очередь или пользователь не найдены (QUEUE_NOT_FOUND, USER_NOT_FOUND)"
// @Failure	409	{object}	response.ErrorResponse	"Уже в очереди (ALREADY_IN_QUEUE)"
// @Router		/api/queues/{id}/members/{user_id} [post]
func (h *Handler) AddMemberHandler(c *gin.Context) {
	queueID, userID, ok := h.memberParams(c)
	if !ok {
		return
	}
	if _, err := h.Users.ByID(c.Request.Context(), userID); err != nil {
		h.writeError(c, err)
		return
	}
	h.join(c, queueID, userID)
}

// RemoveMemberHandler убирает пользователя из очереди (организатор или сам пользователь)
// @Summary	Удаление участника
// @Tags		queue
// @Produce	json
// @Param		id		path	string	true	"ID очереди"
// @Param		user_id	path	string	true	"ID пользователя"
// @Security	BearerAuth
// @Success	200	{object}	response.SuccessResponse
// @Failure	403	{object}	response.ErrorResponse	"Не организатор (NOT_ORGANIZER)"
// @Failure	404	{object}	response.ErrorResponse	"Очередь не найдена или пользователь не в ней (QUEUE_NOT_FOUND, NOT_IN_QUEUE)"
// @Router		/api/queues/{id}/members/{user_id} [delete]
func (h *Handler) RemoveMemberHandler(c *gin.Context) {
	queueID, userID, ok := h.memberParams(c)
	if !ok {
		return
	}
	h.leave(c, queueID, userID)
}

// memberParams разбирает путь и проверяет, что вызывающий является организатором
// очереди или сам пользователь.
func (h *Handler) memberParams(c *gin.Context) (queueID, userID uuid.UUID, ok bool) {
	if queueID, ok = queueIDParam(c); !ok {
		return
	}
	if userID, ok = paramUUID(c, "user_id", "INVALID_USER_ID", "Неверный идентификатор пользователя"); !ok {
		return
	}
	caller := auth.UserID(c)
	if caller == userID {
		return queueID, userID, true
	}

	queue, err := h.Queues.ByID(c.Request.Context(), queueID)
	if err != nil {
		h.writeError(c, err)
		return queueID, userID, false
	}
	if queue.OrganizerID != caller {
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "NOT_ORGANIZER",
			Message: "Управлять чужими записями может только организатор",
		})
		return queueID, userID, false
	}
	return queueID, userID, true
}

func (h *Handler) join(c *gin.Context, queueID, userID uuid.UUID) {
	ctx := c.Request.Context()
	entry, err := h.Engine.Join(ctx, queueID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.publish(ctx, events.Event{
		EventType: events.UserJoined,
		QueueID:   queueID.String(),
		Data: map[string]interface{}{
			"user_id": userID.String(),
			"rank":    entry.Rank,
		},
	})

	c.JSON(http.StatusOK, response.JoinResponse{
		Message: "Вступление в очередь прошло успешно",
		Rank:    entry.Rank,
	})
}

func (h *Handler) leave(c *gin.Context, queueID, userID uuid.UUID) {
	ctx := c.Request.Context()
	if err := h.Engine.Leave(ctx, queueID, userID); err != nil {
		h.writeError(c, err)
		return
	}

	h.publish(ctx, events.Event{
		EventType: events.UserLeft,
		QueueID:   queueID.String(),
		Data: map[string]interface{}{
			"user_id": userID.String(),
		},
	})

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Вы успешно вышли из очереди"})
}
