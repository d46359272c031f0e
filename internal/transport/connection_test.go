package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"school-collab/internal/domain"
	collabErrors "school-collab/internal/errors"
	"school-collab/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// newServer runs serve for every accepted socket
func newServer(t *testing.T, serve func(ws *websocket.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		serve(ws)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testSettings() *Settings {
	return &Settings{
		HandshakeTimeout: time.Second,
		AuthTimeout:      200 * time.Millisecond,
		WriteTimeout:     time.Second,
	}
}

func authFrame() protocol.RealtimeEvent {
	return protocol.NewAuth(domain.CollaborationUser{ID: "a", Name: "Ana", Role: domain.RoleTeacher}, "token-a")
}

func readEvent(t *testing.T, ws *websocket.Conn) protocol.RealtimeEvent {
	_, message, err := ws.ReadMessage()
	require.NoError(t, err)
	ev, err := protocol.Decode(message)
	require.NoError(t, err)
	return ev
}

func writeEvent(ws *websocket.Conn, ev protocol.RealtimeEvent) {
	data, _ := protocol.Encode(ev)
	ws.WriteMessage(websocket.TextMessage, data)
}

func TestDialAuthenticatesAndReplaysEarlyFrames(t *testing.T) {
	received := make(chan protocol.RealtimeEvent, 1)
	url := newServer(t, func(ws *websocket.Conn) {
		auth := readEvent(t, ws)
		assert.Equal(t, protocol.TypeAuth, auth.Type)
		assert.Equal(t, "token-a", auth.Token)
		assert.Equal(t, "a", auth.User.ID)

		writeEvent(ws, protocol.NewUserJoined(domain.CollaborationUser{ID: "b", Name: "Ben", Role: domain.RoleStudent}))
		writeEvent(ws, protocol.NewAuthSuccess("conn-1"))
		received <- readEvent(t, ws)
		ws.ReadMessage()
	})

	conn, err := Dial(context.Background(), url, authFrame(), testSettings())
	require.NoError(t, err)
	assert.Equal(t, "conn-1", conn.ConnectionID())

	frames := make(chan []byte, 4)
	runErr := make(chan error, 1)
	go func() {
		runErr <- conn.Run(func(message []byte) { frames <- message })
	}()

	select {
	case message := <-frames:
		ev, err := protocol.Decode(message)
		require.NoError(t, err)
		assert.Equal(t, protocol.TypeUserJoined, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("early frame not replayed")
	}

	require.NoError(t, conn.Send(protocol.NewPing()))
	assert.Equal(t, protocol.TypePing, (<-received).Type)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.NoError(t, <-runErr)
	assert.ErrorIs(t, conn.Send(protocol.NewPing()), collabErrors.ErrNotConnected)

	select {
	case <-conn.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestDialAuthTimeout(t *testing.T) {
	url := newServer(t, func(ws *websocket.Conn) {
		ws.ReadMessage()
		time.Sleep(time.Second)
	})

	start := time.Now()
	_, err := Dial(context.Background(), url, authFrame(), testSettings())

	assert.ErrorIs(t, err, collabErrors.ErrAuthTimeout)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestDialRefused(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws", authFrame(), testSettings())
	assert.ErrorIs(t, err, collabErrors.ErrTransport)
}

func TestDialCancelled(t *testing.T) {
	url := newServer(t, func(ws *websocket.Conn) {
		ws.ReadMessage()
		time.Sleep(time.Second)
	})
	settings := testSettings()
	settings.AuthTimeout = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err := Dial(ctx, url, authFrame(), settings)

	assert.ErrorIs(t, err, collabErrors.ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunReportsRemoteClose(t *testing.T) {
	url := newServer(t, func(ws *websocket.Conn) {
		ws.ReadMessage()
		writeEvent(ws, protocol.NewAuthSuccess("conn-2"))
	})

	conn, err := Dial(context.Background(), url, authFrame(), testSettings())
	require.NoError(t, err)

	err = conn.Run(func([]byte) {})
	assert.ErrorIs(t, err, collabErrors.ErrTransport)
	assert.ErrorIs(t, conn.Send(protocol.NewPing()), collabErrors.ErrNotConnected)
}
