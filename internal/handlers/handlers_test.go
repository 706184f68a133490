package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oqueue/internal/auth"
	"oqueue/internal/events"
	"oqueue/internal/models"
	"oqueue/internal/ordering"
	"oqueue/internal/response"
	"oqueue/internal/storage"
	"oqueue/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuthMiddlewareTest берёт пользователя из заголовка X-Test-UserID.
func AuthMiddlewareTest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := uuid.Parse(c.Request.Header.Get("X-Test-UserID")); err == nil {
			c.Set(auth.UserIDKey, id)
		}
		c.Next()
	}
}

type testServer struct {
	*httptest.Server
	db  *gorm.DB
	hub *ws.Hub
	h   *Handler
}

func setupTestServer(t *testing.T, authMW gin.HandlerFunc) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	db, err := storage.OpenSQLite("file::memory:", log)
	require.NoError(t, err, "Ошибка подключения к тестовой базе")
	require.NoError(t, storage.Migrate(db), "Ошибка при миграции")

	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub(log)
	go hub.Run(ctx)

	h := &Handler{
		Engine:        ordering.NewEngine(storage.NewMembershipGateway(db)),
		Queues:        storage.NewQueueRepository(db),
		Users:         storage.NewUserRepository(db),
		Tokens:        auth.NewTokens([]byte("access"), []byte("refresh"), 15*time.Minute, time.Hour),
		Events:        events.NewLocal(hub),
		Hub:           hub,
		Log:           log,
		QueueLifetime: 24 * time.Hour,
	}
	if authMW == nil {
		authMW = AuthMiddlewareTest()
	}
	r := gin.New()
	h.Routes(r, authMW)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		if sqldb, err := db.DB(); err == nil {
			sqldb.Close()
		}
	})
	return &testServer{Server: srv, db: db, hub: hub, h: h}
}

func (s *testServer) do(t *testing.T, method, path string, user uuid.UUID, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != uuid.Nil {
		req.Header.Set("X-Test-UserID", user.String())
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func (s *testServer) createUser(t *testing.T, name string) uuid.UUID {
	t.Helper()
	u := models.User{Name: name, Email: uuid.NewString() + "@example.com", PasswordHash: "x"}
	require.NoError(t, s.h.Users.Create(context.Background(), &u))
	return u.ID
}

func (s *testServer) members(t *testing.T, queueID, user uuid.UUID) []response.MemberInfo {
	t.Helper()
	var out []response.MemberInfo
	status := s.do(t, http.MethodGet, "/api/queues/"+queueID.String()+"/members", user, nil, &out)
	require.Equal(t, http.StatusOK, status)
	return out
}

func memberIDs(ms []response.MemberInfo) []uuid.UUID {
	out := make([]uuid.UUID, len(ms))
	for i, m := range ms {
		out[i] = m.UserID
	}
	return out
}

func TestQueueFlow(t *testing.T) {
	s := setupTestServer(t, nil)
	owner := s.createUser(t, "Организатор")
	u1 := s.createUser(t, "Иван Иванов")
	u2 := s.createUser(t, "Петр Петров")

	var queue response.QueueInfo
	status := s.do(t, http.MethodPost, "/api/queues", owner, CreateQueueRequest{Name: "Сдача практики", Description: "пара 3"}, &queue)
	require.Equal(t, http.StatusCreated, status, "Очередь не создана")
	assert.Equal(t, owner, queue.OrganizerID)
	assert.WithinDuration(t, queue.CreatedAt.Add(24*time.Hour), queue.ExistsBefore, time.Second)
	membersPath := "/api/queues/" + queue.ID.String() + "/members/me"

	assert.Empty(t, s.members(t, queue.ID, owner))

	var joined response.JoinResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, membersPath, u1, nil, &joined))
	assert.Equal(t, int64(0), joined.Rank)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, membersPath, u2, nil, &joined))
	assert.Equal(t, int64(1), joined.Rank)

	list := s.members(t, queue.ID, owner)
	assert.Equal(t, []uuid.UUID{u1, u2}, memberIDs(list))
	assert.Equal(t, 1, list[0].Position)
	assert.False(t, list[0].IsHeld)
	assert.False(t, list[0].HasPriority)

	// удержание выставляется снаружи, напрямую в базе
	require.NoError(t, s.db.Model(&models.QueueEntry{}).
		Where("queue_id = ? AND user_id = ?", queue.ID, u2).
		Update("is_held", true).Error)
	list = s.members(t, queue.ID, owner)
	assert.Equal(t, []uuid.UUID{u2, u1}, memberIDs(list))
	assert.True(t, list[0].IsHeld)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, membersPath, u1, nil, nil))
	assert.Equal(t, []uuid.UUID{u2}, memberIDs(s.members(t, queue.ID, owner)))

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, membersPath, u1, nil, &joined))
	assert.Equal(t, int64(2), joined.Rank, "ранг 0 не должен переиспользоваться")
	list = s.members(t, queue.ID, owner)
	assert.Equal(t, []uuid.UUID{u2, u1}, memberIDs(list))
	assert.Equal(t, int64(2), list[1].Rank)
}

func TestJoinAndLeaveErrors(t *testing.T) {
	s := setupTestServer(t, nil)
	owner := s.createUser(t, "Организатор")
	u := s.createUser(t, "Иван Иванов")

	var queue response.QueueInfo
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/queues", owner, CreateQueueRequest{Name: "Очередь"}, &queue))
	membersPath := "/api/queues/" + queue.ID.String() + "/members/me"

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, membersPath, u, nil, nil))

	var errResp response.ErrorResponse
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, membersPath, u, nil, &errResp))
	assert.Equal(t, "ALREADY_IN_QUEUE", errResp.Code)
	assert.Len(t, s.members(t, queue.ID, owner), 1)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, membersPath, u, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, membersPath, u, nil, &errResp))
	assert.Equal(t, "NOT_IN_QUEUE", errResp.Code)
	assert.Empty(t, s.members(t, queue.ID, owner))

	missing := "/api/queues/" + uuid.NewString()
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, missing+"/members/me", u, nil, &errResp))
	assert.Equal(t, "QUEUE_NOT_FOUND", errResp.Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, missing+"/members", u, nil, &errResp))
	assert.Equal(t, "QUEUE_NOT_FOUND", errResp.Code)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/queues/42/members/me", u, nil, &errResp))
	assert.Equal(t, "INVALID_QUEUE_ID", errResp.Code)
}

func TestManageOtherMembers(t *testing.T) {
	s := setupTestServer(t, nil)
	owner := s.createUser(t, "Организатор")
	u := s.createUser(t, "Иван Иванов")
	stranger := s.createUser(t, "Посторонний")

	var queue response.QueueInfo
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/queues", owner, CreateQueueRequest{Name: "Очередь"}, &queue))
	userPath := "/api/queues/" + queue.ID.String() + "/members/" + u.String()

	var errResp response.ErrorResponse
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, userPath, stranger, nil, &errResp))
	assert.Equal(t, "NOT_ORGANIZER", errResp.Code)

	var joined response.JoinResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, userPath, owner, nil, &joined))
	assert.Equal(t, int64(0), joined.Rank)

	ghost := "/api/queues/" + queue.ID.String() + "/members/" + uuid.NewString()
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, ghost, owner, nil, &errResp))
	assert.Equal(t, "USER_NOT_FOUND", errResp.Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, userPath, stranger, nil, nil))
	// сам пользователь может выйти по своему id
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, userPath, u, nil, nil))
	assert.Empty(t, s.members(t, queue.ID, owner))
}

func TestQueueListingAndDeletion(t *testing.T) {
	s := setupTestServer(t, nil)
	owner := s.createUser(t, "Организатор")
	u := s.createUser(t, "Иван Иванов")

	var queue response.QueueInfo
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/queues", owner, CreateQueueRequest{Name: "Очередь"}, &queue))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/queues/"+queue.ID.String()+"/members/me", u, nil, nil))

	var got response.QueueInfo
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/queues/"+queue.ID.String(), u, nil, &got))
	assert.Equal(t, queue.ID, got.ID)

	var available []response.QueueInfo
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/queues", u, nil, &available))
	require.Len(t, available, 1)
	assert.Equal(t, queue.ID, available[0].ID)

	var mine []response.UserQueueItem
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/profile/queues", u, nil, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, queue.ID, mine[0].Queue.ID)
	assert.Equal(t, int64(0), mine[0].Rank)

	var errResp response.ErrorResponse
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, "/api/queues/"+queue.ID.String(), u, nil, &errResp))
	assert.Equal(t, "NOT_ORGANIZER", errResp.Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/queues/"+queue.ID.String(), owner, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/queues/"+queue.ID.String()+"/members", owner, nil, nil))

	var left int64
	require.NoError(t, s.db.Model(&models.QueueEntry{}).Where("queue_id = ?", queue.ID).Count(&left).Error)
	assert.Zero(t, left)
}

func TestQueueWebSocketEvents(t *testing.T) {
	s := setupTestServer(t, nil)
	owner := s.createUser(t, "Организатор")
	u := s.createUser(t, "Иван Иванов")

	var queue response.QueueInfo
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/queues", owner, CreateQueueRequest{Name: "Очередь"}, &queue))

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/queues/" + queue.ID.String() + "/ws"
	wsConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "Ошибка подключения к WS")
	defer wsConn.Close()
	require.Eventually(t, func() bool { return s.hub.ClientCount(queue.ID.String()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/queues/"+queue.ID.String()+"/members/me", u, nil, nil))

	wsConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	require.NoError(t, wsConn.ReadJSON(&ev), "Ошибка чтения WS сообщения")
	assert.Equal(t, events.UserJoined, ev.EventType)
	assert.Equal(t, queue.ID.String(), ev.QueueID)
	assert.Equal(t, u.String(), ev.Data["user_id"])
	assert.EqualValues(t, 0, ev.Data["rank"])

	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/queues/"+queue.ID.String(), owner, nil, nil))
	require.NoError(t, wsConn.ReadJSON(&ev))
	assert.Equal(t, events.QueueDeleted, ev.EventType)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/api/queues/"+uuid.NewString()+"/ws", nil)
	assert.Error(t, err, "подписка на несуществующую очередь")
}

func TestStorageUnavailable(t *testing.T) {
	s := setupTestServer(t, nil)
	u := s.createUser(t, "Иван Иванов")

	sqldb, err := s.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqldb.Close())

	var errResp response.ErrorResponse
	status := s.do(t, http.MethodPost, "/api/queues/"+uuid.NewString()+"/members/me", u, nil, &errResp)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "STORAGE_UNAVAILABLE", errResp.Code)
	assert.True(t, errResp.Retryable)
}

func TestAuthFlow(t *testing.T) {
	tokens := auth.NewTokens([]byte("access"), []byte("refresh"), 15*time.Minute, time.Hour)
	s := setupTestServer(t, auth.AuthMiddleware(tokens))

	reg := RegisterRequest{Name: "Иван Иванов", Email: "ivan@example.com", Password: "secret1"}
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/auth/register", uuid.Nil, reg, nil))

	var errResp response.ErrorResponse
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/auth/register", uuid.Nil, reg, &errResp))
	assert.Equal(t, "EMAIL_EXISTS", errResp.Code)

	short := RegisterRequest{Name: "Ив", Email: "iv@example.com", Password: "secret1"}
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/auth/register", uuid.Nil, short, nil))

	assert.Equal(t, http.StatusUnauthorized,
		s.do(t, http.MethodPost, "/auth/login", uuid.Nil, LoginRequest{Email: reg.Email, Password: "wrong"}, nil))

	var tok response.TokenResponse
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodPost, "/auth/login", uuid.Nil, LoginRequest{Email: reg.Email, Password: reg.Password}, &tok))
	require.NotEmpty(t, tok.AccessToken)

	get := func(path, token string, out interface{}) int {
		req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer res.Body.Close()
		if out != nil {
			require.NoError(t, json.NewDecoder(res.Body).Decode(out))
		}
		return res.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, get("/api/users/me", "", nil))

	var me response.UserInfo
	require.Equal(t, http.StatusOK, get("/api/users/me", tok.AccessToken, &me))
	assert.Equal(t, "Иван Иванов", me.Name)

	var byID response.UserInfo
	require.Equal(t, http.StatusOK, get("/api/users/"+me.ID.String(), tok.AccessToken, &byID))
	assert.Equal(t, me, byID)
	assert.Equal(t, http.StatusNotFound, get("/api/users/"+uuid.NewString(), tok.AccessToken, nil))

	var refreshed response.TokenResponse
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodPost, "/auth/refresh", uuid.Nil, RefreshTokenRequest{RefreshToken: tok.RefreshToken}, &refreshed))
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, http.StatusUnauthorized,
		s.do(t, http.MethodPost, "/auth/refresh", uuid.Nil, RefreshTokenRequest{RefreshToken: tok.AccessToken}, nil))
}

func TestPing(t *testing.T) {
	s := setupTestServer(t, nil)
	res, err := http.Get(s.URL + "/ping")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
