package handlers

import (
	"net/http"

	"oqueue/internal/auth"
	"oqueue/internal/response"

	"github.com/gin-gonic/gin"
)

// GetUserQueuesHandler godoc
// @Summary		Получение списка своих очередей
// @Description	Очереди, в которых пользователь стоит, с его рангом
// @Tags			profile
// @Produce		json
// @Security		BearerAuth
// @Success		200	{array}		response.UserQueueItem	"List of queues the user is part of"
// @Failure		503	{object}	response.ErrorResponse	"Storage unavailable (STORAGE_UNAVAILABLE)"
// @Router			/api/profile/queues [get]
func (h *Handler) GetUserQueuesHandler(c *gin.Context) {
	memberships, err := h.Queues.WithMember(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	result := make([]response.UserQueueItem, 0, len(memberships))
	for _, m := range memberships {
		result = append(result, response.UserQueueItem{
			Queue:    queueInfo(m.Queue),
			Rank:     m.Entry.Rank,
			IsHeld:   m.Entry.IsHeld,
			JoinedAt: m.Entry.JoinedAt,
		})
	}

	c.JSON(http.StatusOK, result)
}
