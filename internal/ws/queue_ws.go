package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Hub хранит подключения клиентов, сгруппированные по queueID.
type Hub struct {
	// Для каждой очереди (queueID) храним множество подключений.
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan BroadcastMessage
	// Закрывается, когда Run завершился.
	done chan struct{}
	// Mutex для защиты карты клиентов.
	mu  sync.RWMutex
	log *zap.Logger
}

// BroadcastMessage представляет сообщение для рассылки в определённую очередь.
type BroadcastMessage struct {
	QueueID string
	Message []byte
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan BroadcastMessage, sendBuffer),
		done:       make(chan struct{}),
		log:        log.Named("ws"),
	}
}

// Run обрабатывает каналы хаба до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.QueueID] == nil {
				h.clients[client.QueueID] = make(map[*Client]bool)
			}
			h.clients[client.QueueID][client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[message.QueueID] {
				select {
				case client.Send <- message.Message:
				default:
					// клиент не успевает читать
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop вызывается под h.mu.
func (h *Hub) drop(client *Client) {
	clients, ok := h.clients[client.QueueID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.QueueID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.clients {
		for client := range clients {
			h.drop(client)
		}
	}
}

// Broadcast ставит сообщение в рассылку подписчикам очереди.
func (h *Hub) Broadcast(queueID string, message []byte) {
	select {
	case h.broadcast <- BroadcastMessage{QueueID: queueID, Message: message}:
	case <-h.done:
	}
}

// ClientCount возвращает число подключений к очереди.
func (h *Hub) ClientCount(queueID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[queueID])
}

// Client представляет одно подключение через WebSocket.
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	QueueID string
}

// readPump читает сообщения из WebSocket-соединения. Входящие сообщения не
// обрабатываются, отслеживаем только разрыв соединения.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.log.Debug("connection closed", zap.String("queue_id", c.QueueID), zap.Error(err))
			}
			return
		}
	}
}

// writePump отправляет сообщения клиенту из канала Send.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Канал закрыт.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			// Отправка ping-сообщения для поддержания соединения.
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Апгрейдер для WebSocket с разрешением всех источников.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Serve обновляет соединение до WebSocket и подписывает его на очередь.
// Возвращается, когда клиент отключился.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, queueID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &Client{
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		QueueID: queueID,
	}
	select {
	case h.register <- client:
	case <-h.done:
		return conn.Close()
	}

	go client.writePump()
	client.readPump()
	return nil
}
