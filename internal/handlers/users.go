package handlers

import (
	"net/http"

	"oqueue/internal/auth"
	"oqueue/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MeHandler godoc
// @Summary	Текущий пользователь
// @Tags		users
// @Produce	json
// @Security	BearerAuth
// @Success	200	{object}	response.UserInfo
// @Failure	404	{object}	response.ErrorResponse	"Пользователь не найден (USER_NOT_FOUND)"
// @Router		/api/users/me [get]
func (h *Handler) MeHandler(c *gin.Context) {
	h.writeUser(c, auth.UserID(c))
}

// UserHandler godoc
// @Summary	Пользователь по id
// @Tags		users
// @Produce	json
// @Param		id	path	string	true	"ID пользователя"
// @Security	BearerAuth
// @Success	200	{object}	response.UserInfo
// @Failure	400	{object}	response.ErrorResponse	"Неверный идентификатор (INVALID_USER_ID)"
// @Failure	404	{object}	response.ErrorResponse	"Пользователь не найден (USER_NOT_FOUND)"
// @Router		/api/users/{id} [get]
func (h *Handler) UserHandler(c *gin.Context) {
	id, ok := paramUUID(c, "id", "INVALID_USER_ID", "Неверный идентификатор пользователя")
	if !ok {
		return
	}
	h.writeUser(c, id)
}

func (h *Handler) writeUser(c *gin.Context, id uuid.UUID) {
	user, err := h.Users.ByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.UserInfo{ID: user.ID, Name: user.Name})
}
