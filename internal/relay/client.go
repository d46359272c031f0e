package relay

import (
	"sync"
	"time"

	"school-collab/internal/domain"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 256
	maxFrameSize   = 64 * 1024
	writeTimeout   = 5 * time.Second
	// connections that send nothing for this long are dropped; engines ping every 30s
	readTimeout = 90 * time.Second
)

// Client is one authenticated websocket connection
type Client struct {
	hub  *Hub
	ws   *websocket.Conn
	id   string
	user domain.CollaborationUser

	mutex  sync.Mutex
	closed bool
	send   chan []byte
}

func newClient(hub *Hub, ws *websocket.Conn, id string, user domain.CollaborationUser) *Client {
	return &Client{
		hub:  hub,
		ws:   ws,
		id:   id,
		user: user,
		send: make(chan []byte, sendBufferSize),
	}
}

// enqueue never blocks. A client that cannot keep up is disconnected.
func (c *Client) enqueue(data []byte) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		glog.Warningf("[relay]%s send buffer full, dropping connection", c.id)
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writeLoop drains the send queue and closes the socket when it ends
func (c *Client) writeLoop() {
	defer c.ws.Close()
	for message := range c.send {
		c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			glog.V(1).Infof("[relay]%s-> error = %s", c.id, err)
			c.close()
			// drain so enqueue never sees a full buffer of a dead client
			for range c.send {
			}
			return
		}
	}
	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
}

// readLoop hands every frame to the hub until the socket fails
func (c *Client) readLoop() {
	c.ws.SetReadLimit(maxFrameSize)
	for {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.V(1).Infof("[relay]%s<- error = %s", c.id, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.hub.handle(c, message)
	}
}
