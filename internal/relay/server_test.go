package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"school-collab/auth"
	"school-collab/internal/domain"
	"school-collab/internal/middleware"
	"school-collab/internal/protocol"
	"school-collab/internal/worker"
	collabRedis "school-collab/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	redisLib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "jwt-secret"
	testInternal = "internal-secret"
)

type recordingFeed struct {
	mutex  sync.Mutex
	events []protocol.RealtimeEvent
}

func (f *recordingFeed) Enqueue(ctx context.Context, ev protocol.RealtimeEvent) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *recordingFeed) Types() []protocol.MessageType {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	types := []protocol.MessageType{}
	for _, ev := range f.events {
		types = append(types, ev.Type)
	}
	return types
}

type relayFixture struct {
	server  *Server
	httpURL string
	wsURL   string
	feed    *recordingFeed
	mirror  *collabRedis.PresenceMirror
}

func setupRelay(t *testing.T, opts Options) *relayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	miniRedis := miniredis.RunT(t)
	rdb := redisLib.NewClient(&redisLib.Options{Addr: miniRedis.Addr()})
	t.Cleanup(func() { rdb.Close() })
	mirror := collabRedis.NewPresenceMirror(rdb, time.Minute)

	pool := worker.NewWorkerPool(2, time.Second)
	t.Cleanup(pool.Shutdown)

	feed := &recordingFeed{}
	if opts.Verifier == nil {
		opts.Verifier = auth.NewVerifier(testSecret)
	}
	if opts.InternalSecret == "" {
		opts.InternalSecret = testInternal
	}
	server := NewServer(NewHub(mirror, feed, pool), opts)

	router := gin.New()
	router.Use(middleware.ErrorHandler())
	server.Register(router)

	httpServer := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Hub().CloseAll()
		httpServer.Close()
	})

	return &relayFixture{
		server:  server,
		httpURL: httpServer.URL,
		wsURL:   "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws",
		feed:    feed,
		mirror:  mirror,
	}
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func profile(id string, name string) domain.CollaborationUser {
	return domain.CollaborationUser{ID: id, Name: name, Role: domain.RoleStudent}
}

func dialRaw(t *testing.T, f *relayFixture) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func write(t *testing.T, ws *websocket.Conn, ev protocol.RealtimeEvent) {
	t.Helper()
	data, err := protocol.Encode(ev)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

// next reads frames until one of messageType arrives
func next(t *testing.T, ws *websocket.Conn, messageType protocol.MessageType) protocol.RealtimeEvent {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, message, err := ws.ReadMessage()
		require.NoError(t, err)
		ev, err := protocol.Decode(message)
		require.NoError(t, err)
		if ev.Type == messageType {
			return ev
		}
	}
}

// connect authenticates as user and returns the socket after auth_success
func connect(t *testing.T, f *relayFixture, user domain.CollaborationUser, token string) *websocket.Conn {
	t.Helper()
	ws := dialRaw(t, f)
	write(t, ws, protocol.NewAuth(user, token))
	ev := next(t, ws, protocol.TypeAuthSuccess)
	assert.NotEmpty(t, ev.ConnectionID)
	return ws
}

func TestFirstFrameMustBeAuth(t *testing.T) {
	f := setupRelay(t, Options{})
	ws := dialRaw(t, f)

	write(t, ws, protocol.NewPing())
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	f := setupRelay(t, Options{RequireAuth: true})
	ws := dialRaw(t, f)

	write(t, ws, protocol.NewAuth(profile("a", "Ana"), ""))
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	assert.Equal(t, 0, f.server.Hub().ConnectionCount())
}

func TestInvalidTokenRejected(t *testing.T) {
	f := setupRelay(t, Options{})
	ws := dialRaw(t, f)

	write(t, ws, protocol.NewAuth(profile("a", "Ana"), "not-a-jwt"))
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestAuthTimeoutClosesSocket(t *testing.T) {
	f := setupRelay(t, Options{AuthTimeout: 50 * time.Millisecond})
	ws := dialRaw(t, f)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseAbnormalClosure), "got %v", err)
}

func TestTokenOverridesClaimedProfile(t *testing.T) {
	f := setupRelay(t, Options{RequireAuth: true})
	observer := connect(t, f, profile("obs", "Observer"), signToken(t, jwt.MapClaims{"user_id": "obs", "name": "Observer", "role": "admin"}))

	token := signToken(t, jwt.MapClaims{"user_id": 42, "name": "Mr. Grey", "role": "teacher"})
	connect(t, f, profile("spoofed", "Someone"), token)

	joined := next(t, observer, protocol.TypeUserJoined)
	require.NotNil(t, joined.User)
	assert.Equal(t, "42", joined.User.ID)
	assert.Equal(t, "Mr. Grey", joined.User.Name)
	assert.Equal(t, domain.RoleTeacher, joined.User.Role)
	assert.Equal(t, domain.StatusOnline, joined.User.Status)
}

func TestRegisterReplaysAndAnnounces(t *testing.T) {
	f := setupRelay(t, Options{})
	a := connect(t, f, profile("a", "Ana"), "")
	b := connect(t, f, profile("b", "Ben"), "")

	assert.Equal(t, "a", next(t, b, protocol.TypeUserJoined).User.ID)
	assert.Equal(t, "b", next(t, a, protocol.TypeUserJoined).User.ID)

	// a second tab for b is not announced again
	b2 := connect(t, f, profile("b", "Ben"), "")
	assert.Equal(t, "a", next(t, b2, protocol.TypeUserJoined).User.ID)
	write(t, a, protocol.NewPing())
	next(t, a, protocol.TypePong)
	assert.Equal(t, 3, f.server.Hub().ConnectionCount())
	assert.Len(t, f.server.Hub().OnlineUsers(), 2)

	b.Close()
	b2.Close()
	left := next(t, a, protocol.TypeUserLeft)
	assert.Equal(t, "b", left.User.ID)
	assert.Eventually(t, func() bool { return f.server.Hub().ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPresenceIsMirrored(t *testing.T) {
	f := setupRelay(t, Options{})
	a := connect(t, f, profile("a", "Ana"), "")

	assert.Eventually(t, func() bool {
		users, err := f.mirror.List(context.Background())
		return err == nil && len(users) == 1 && users[0].ID == "a"
	}, time.Second, 10*time.Millisecond)

	write(t, a, protocol.NewPresence(domain.PresenceInfo{UserID: "a", Page: "/grades", Activity: domain.ActivityActive, Timestamp: domain.Now()}))
	assert.Eventually(t, func() bool {
		info, ok, err := f.mirror.Presence(context.Background(), "a")
		return err == nil && ok && info.Page == "/grades"
	}, time.Second, 10*time.Millisecond)

	a.Close()
	assert.Eventually(t, func() bool {
		users, err := f.mirror.List(context.Background())
		return err == nil && len(users) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestEditOperationForwardedAndPublished(t *testing.T) {
	f := setupRelay(t, Options{})
	a := connect(t, f, profile("a", "Ana"), "")
	b := connect(t, f, profile("b", "Ben"), "")

	write(t, a, protocol.NewEditOperation(domain.EditOperation{
		ID:         "op1",
		Type:       domain.OperationUpdate,
		EntityType: "assignment",
		EntityID:   "hw-3",
		AuthorID:   "mallory",
		Timestamp:  domain.Now(),
	}))

	ev := next(t, b, protocol.TypeEditOperation)
	assert.Equal(t, "a", ev.UserID)
	assert.Equal(t, "a", ev.Operation.AuthorID)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]protocol.MessageType{protocol.TypeEditOperation}, f.feed.Types())
	}, time.Second, 5*time.Millisecond)
}

func TestNotificationDeliveredToTargetsOnly(t *testing.T) {
	f := setupRelay(t, Options{})
	a := connect(t, f, profile("a", "Ana"), "")
	b := connect(t, f, profile("b", "Ben"), "")
	c := connect(t, f, profile("c", "Cat"), "")

	write(t, a, protocol.NewNotification("a", domain.NotificationMessage{
		ID:          "n1",
		Type:        domain.NotificationInfo,
		Title:       "Grades posted",
		TargetUsers: []string{"b", "b"},
		Timestamp:   domain.Now(),
	}))

	ev := next(t, b, protocol.TypeNotification)
	assert.Equal(t, "n1", ev.Notification.ID)

	// c gets its pong without a notification in between
	write(t, c, protocol.NewPing())
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, message, err := c.ReadMessage()
		require.NoError(t, err)
		got, err := protocol.Decode(message)
		require.NoError(t, err)
		require.NotEqual(t, protocol.TypeNotification, got.Type)
		if got.Type == protocol.TypePong {
			break
		}
	}
}

func TestInternalEndpointsRequireSecret(t *testing.T) {
	f := setupRelay(t, Options{})

	resp, err := http.Post(f.httpURL+"/internal/sync", "application/json", strings.NewReader(`{"payload":{}}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func internalRequest(t *testing.T, f *relayFixture, method string, path string, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.httpURL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Secret", testInternal)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestPushDataSync(t *testing.T) {
	f := setupRelay(t, Options{})
	a := connect(t, f, profile("a", "Ana"), "")

	resp, body := internalRequest(t, f, http.MethodPost, "/internal/sync", `{"userId":"backend","payload":{"table":"grades","id":9}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, float64(1), body["delivered"])

	ev := next(t, a, protocol.TypeDataSync)
	assert.Equal(t, "backend", ev.UserID)
	assert.JSONEq(t, `{"table":"grades","id":9}`, string(ev.Payload))

	resp, _ = internalRequest(t, f, http.MethodPost, "/internal/sync", `{"userId":"backend"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPushSystemAlert(t *testing.T) {
	f := setupRelay(t, Options{})
	a := connect(t, f, profile("a", "Ana"), "")

	resp, body := internalRequest(t, f, http.MethodPost, "/internal/alerts", `{"severity":"warning","message":"no title"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "fields")

	resp, _ = internalRequest(t, f, http.MethodPost, "/internal/alerts", `{"severity":"warning","title":"Maintenance","message":"at 22:00"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	ev := next(t, a, protocol.TypeSystemAlert)
	var alert domain.SystemAlert
	require.NoError(t, ev.DecodePayload(&alert))
	assert.Equal(t, "Maintenance", alert.Title)
}

func TestListPresence(t *testing.T) {
	f := setupRelay(t, Options{})
	connect(t, f, profile("a", "Ana"), "")
	connect(t, f, profile("b", "Ben"), "")

	resp, err := http.Get(f.httpURL + "/presence")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, f.httpURL+"/presence?per_page=1&page=2", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"sub": "a"}))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Users []domain.CollaborationUser `json:"users"`
		Total int                        `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Users, 1)
	assert.Equal(t, "b", body.Users[0].ID)

	assert.Eventually(t, func() bool {
		_, mirrored := internalRequest(t, f, http.MethodGet, "/internal/presence", "")
		users, _ := mirrored["users"].([]any)
		return mirrored["source"] == "redis" && len(users) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	f := setupRelay(t, Options{})
	connect(t, f, profile("a", "Ana"), "")

	resp, err := http.Get(f.httpURL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["connections"])
}
