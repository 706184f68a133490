package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QueueWebSocketHandler подписывает клиента на события очереди.
// URL-пример: /api/queues/{id}/ws
func (h *Handler) QueueWebSocketHandler(c *gin.Context) {
	queueID, ok := queueIDParam(c)
	if !ok {
		return
	}
	if _, err := h.Queues.ByID(c.Request.Context(), queueID); err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.Hub.Serve(c.Writer, c.Request, queueID.String()); err != nil {
		h.Log.Debug("websocket upgrade failed", zap.String("queue_id", queueID.String()), zap.Error(err))
	}
}
