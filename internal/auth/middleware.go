package auth

import (
	"net/http"
	"strings"

	"oqueue/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserIDKey: ключ gin.Context, под которым лежит id пользователя.
const UserIDKey = "userID"

// AuthMiddleware проверяет валидность access токена
func AuthMiddleware(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorResponse{
				Code:    "NO_AUTH_HEADER",
				Message: "Требуется авторизация",
			})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := tokens.ParseAccess(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorResponse{
				Code:    "INVALID_TOKEN",
				Message: "Неверный или просроченный токен",
			})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID возвращает id пользователя, положенный AuthMiddleware.
func UserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
