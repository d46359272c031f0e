// Package transport owns a single authenticated websocket connection to the
// collaboration server.
package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	collabErrors "school-collab/internal/errors"
	"school-collab/internal/protocol"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// frames read before auth_success are held for the receive loop, up to this many
const maxPendingFrames = 256

type Settings struct {
	HandshakeTimeout time.Duration
	AuthTimeout      time.Duration
	WriteTimeout     time.Duration
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 10 * time.Second,
		AuthTimeout:      10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

type Connection struct {
	ws           *websocket.Conn
	connectionID string
	settings     *Settings

	writeMutex sync.Mutex
	closeOnce  sync.Once
	closed     atomic.Bool
	local      atomic.Bool
	done       chan struct{}

	pending [][]byte
}

// Dial opens the socket, sends auth immediately and waits for auth_success.
// Cancelling ctx aborts the dial and the auth wait.
func Dial(ctx context.Context, url string, auth protocol.RealtimeEvent, settings *Settings) (*Connection, error) {
	if settings == nil {
		settings = DefaultSettings()
	}

	authBytes, err := protocol.Encode(auth)
	if err != nil {
		return nil, collabErrors.Transport(err)
	}

	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: settings.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, collabErrors.Transport(err)
	}

	success := false
	stop := context.AfterFunc(ctx, func() {
		ws.Close()
	})
	defer func() {
		stop()
		if !success {
			ws.Close()
		}
	}()

	ws.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, authBytes); err != nil {
		return nil, collabErrors.Transport(err)
	}

	conn := &Connection{
		ws:       ws,
		settings: settings,
		done:     make(chan struct{}),
	}

	deadline := time.Now().Add(settings.AuthTimeout)
	ws.SetReadDeadline(deadline)
	for {
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, collabErrors.Transport(ctx.Err())
			}
			var netErr net.Error
			if collabErrors.As(err, &netErr) && netErr.Timeout() {
				return nil, collabErrors.AuthTimeout(err)
			}
			return nil, collabErrors.Transport(err)
		}
		if messageType != websocket.TextMessage {
			continue
		}

		ev, err := protocol.Decode(message)
		if err == nil && ev.Type == protocol.TypeAuthSuccess {
			conn.connectionID = ev.ConnectionID
			break
		}
		if len(conn.pending) < maxPendingFrames {
			conn.pending = append(conn.pending, message)
		} else {
			glog.Infof("[t]drop pre-auth frame")
		}
	}
	ws.SetReadDeadline(time.Time{})

	success = true
	glog.V(1).Infof("[t]authenticated connection=%s", conn.connectionID)
	return conn, nil
}

func (self *Connection) ConnectionID() string {
	return self.connectionID
}

// Done is closed once the connection is closed for any reason
func (self *Connection) Done() <-chan struct{} {
	return self.done
}

// Run dispatches inbound text frames to handler until the connection ends.
// It returns nil after a local Close and a transport error otherwise.
func (self *Connection) Run(handler func([]byte)) error {
	pending := self.pending
	self.pending = nil
	for _, message := range pending {
		handler(message)
	}

	for {
		messageType, message, err := self.ws.ReadMessage()
		if err != nil {
			self.shutdown()
			if self.local.Load() {
				return nil
			}
			glog.Infof("[tr]%s<- error = %s", self.connectionID, err)
			return collabErrors.Transport(err)
		}
		switch messageType {
		case websocket.TextMessage:
			handler(message)
		default:
			glog.V(2).Infof("[tr]other=%d %s<-", messageType, self.connectionID)
		}
	}
}

// Send writes one envelope. It never queues: a closed connection returns
// ErrNotConnected and a failed write closes the connection.
func (self *Connection) Send(ev protocol.RealtimeEvent) error {
	if self.closed.Load() {
		return collabErrors.NotConnected()
	}
	message, err := protocol.Encode(ev)
	if err != nil {
		return collabErrors.Transport(err)
	}

	self.writeMutex.Lock()
	self.ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	err = self.ws.WriteMessage(websocket.TextMessage, message)
	self.writeMutex.Unlock()

	if err != nil {
		glog.Infof("[ts]%s-> error = %s", self.connectionID, err)
		self.shutdown()
		return collabErrors.Transport(err)
	}
	glog.V(2).Infof("[ts]%s-> %s", self.connectionID, ev.Type)
	return nil
}

// Close sends a close frame and closes the socket. Safe to call repeatedly.
func (self *Connection) Close() error {
	self.local.Store(true)
	self.shutdown()
	return nil
}

func (self *Connection) shutdown() {
	self.closeOnce.Do(func() {
		self.closed.Store(true)
		close(self.done)

		self.writeMutex.Lock()
		self.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		self.writeMutex.Unlock()
		self.ws.Close()
	})
}
