package relay

import (
	"context"
	"sort"
	"sync"

	"school-collab/internal/domain"
	"school-collab/internal/protocol"
	"school-collab/internal/worker"

	"github.com/golang/glog"
)

// PresenceStore mirrors who is online outside the process
type PresenceStore interface {
	Online(ctx context.Context, user domain.CollaborationUser) error
	Touch(ctx context.Context, info domain.PresenceInfo) error
	Offline(ctx context.Context, userID string) error
	List(ctx context.Context) ([]domain.CollaborationUser, error)
}

// Feed receives relayed operations and notifications
type Feed interface {
	Enqueue(ctx context.Context, ev protocol.RealtimeEvent) error
}

// Hub tracks connections per user and fans frames out. Side effects on the
// mirror and the feed run on the worker pool so read loops never wait on them.
type Hub struct {
	mutex   sync.RWMutex
	clients map[string]*Client
	byUser  map[string]map[string]*Client

	mirror PresenceStore
	feed   Feed
	pool   *worker.WorkerPool
}

func NewHub(mirror PresenceStore, feed Feed, pool *worker.WorkerPool) *Hub {
	return &Hub{
		clients: map[string]*Client{},
		byUser:  map[string]map[string]*Client{},
		mirror:  mirror,
		feed:    feed,
		pool:    pool,
	}
}

// register adds c, replays a join for every other online user to c and, if
// this is the user's first connection, announces c's user to everyone else.
func (h *Hub) register(c *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for userID, conns := range h.byUser {
		if userID == c.user.ID {
			continue
		}
		for _, other := range conns {
			h.sendTo(c, protocol.NewUserJoined(other.user))
			break
		}
	}

	h.clients[c.id] = c
	conns, ok := h.byUser[c.user.ID]
	if !ok {
		conns = map[string]*Client{}
		h.byUser[c.user.ID] = conns
	}
	conns[c.id] = c

	if !ok {
		h.broadcastLocked(c, protocol.NewUserJoined(c.user), nil)
		user := c.user
		h.submit(func(ctx context.Context) error {
			if h.mirror == nil {
				return nil
			}
			return h.mirror.Online(ctx, user)
		})
	}
	glog.Infof("[relay]register user=%s connection=%s", c.user.ID, c.id)
}

// unregister removes c and announces the departure once the user's last
// connection is gone
func (h *Hub) unregister(c *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	c.close()

	conns := h.byUser[c.user.ID]
	delete(conns, c.id)
	if 0 < len(conns) {
		return
	}
	delete(h.byUser, c.user.ID)

	h.broadcastLocked(c, protocol.NewUserLeft(c.user), nil)
	userID := c.user.ID
	h.submit(func(ctx context.Context) error {
		if h.mirror == nil {
			return nil
		}
		return h.mirror.Offline(ctx, userID)
	})
	glog.Infof("[relay]unregister user=%s connection=%s", c.user.ID, c.id)
}

// handle processes one inbound frame from c
func (h *Hub) handle(c *Client, message []byte) {
	ev, err := protocol.Decode(message)
	if err != nil {
		glog.V(1).Infof("[relay]%s: %s", c.id, err)
		return
	}

	// the server is authoritative about who sent a frame
	ev.UserID = c.user.ID
	ev.Token = ""

	switch ev.Type {
	case protocol.TypePing:
		h.sendTo(c, protocol.NewPong())

	case protocol.TypeEditOperation:
		if ev.Operation == nil {
			return
		}
		ev.Operation.AuthorID = c.user.ID
		h.broadcast(c, ev, nil)
		h.publish(ev)

	case protocol.TypePresence:
		if ev.Presence == nil {
			return
		}
		ev.Presence.UserID = c.user.ID
		h.broadcast(c, ev, nil)
		info := *ev.Presence
		h.submit(func(ctx context.Context) error {
			if h.mirror == nil {
				return nil
			}
			return h.mirror.Touch(ctx, info)
		})

	case protocol.TypeNotification:
		if ev.Notification == nil {
			return
		}
		targets := ev.TargetUsers
		if len(targets) == 0 {
			targets = ev.Notification.TargetUsers
		}
		h.broadcast(c, ev, targets)
		h.publish(ev)

	default:
		glog.V(1).Infof("[relay]%s: ignore %s from client", c.id, ev.Type)
	}
}

// Broadcast sends ev to every connection and returns how many received it
func (h *Hub) Broadcast(ev protocol.RealtimeEvent) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.broadcastLocked(nil, ev, nil)
}

func (h *Hub) broadcast(from *Client, ev protocol.RealtimeEvent, targets []string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.broadcastLocked(from, ev, targets)
}

// broadcastLocked sends to every connection except from, restricted to the
// target users when targets is non-empty
func (h *Hub) broadcastLocked(from *Client, ev protocol.RealtimeEvent, targets []string) int {
	data, err := protocol.Encode(ev)
	if err != nil {
		glog.Errorf("[relay]encode %s: %s", ev.Type, err)
		return 0
	}

	delivered := 0
	deliver := func(c *Client) {
		if c == from {
			return
		}
		if c.enqueue(data) {
			delivered += 1
		}
	}
	if 0 < len(targets) {
		seen := map[string]bool{}
		for _, userID := range targets {
			if seen[userID] {
				continue
			}
			seen[userID] = true
			for _, c := range h.byUser[userID] {
				deliver(c)
			}
		}
	} else {
		for _, c := range h.clients {
			deliver(c)
		}
	}
	return delivered
}

func (h *Hub) sendTo(c *Client, ev protocol.RealtimeEvent) {
	data, err := protocol.Encode(ev)
	if err != nil {
		glog.Errorf("[relay]encode %s: %s", ev.Type, err)
		return
	}
	c.enqueue(data)
}

func (h *Hub) publish(ev protocol.RealtimeEvent) {
	if h.feed == nil {
		return
	}
	h.submit(func(ctx context.Context) error {
		return h.feed.Enqueue(ctx, ev)
	})
}

func (h *Hub) submit(task worker.Task) {
	if h.pool == nil {
		return
	}
	h.pool.Submit(task)
}

// OnlineUsers returns one profile per connected user ordered by id
func (h *Hub) OnlineUsers() []domain.CollaborationUser {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	users := make([]domain.CollaborationUser, 0, len(h.byUser))
	for _, conns := range h.byUser {
		for _, c := range conns {
			users = append(users, c.user.Clone())
			break
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].ID < users[j].ID
	})
	return users
}

func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// CloseAll closes every connection; used on shutdown
func (h *Hub) CloseAll() {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.RUnlock()

	for _, c := range clients {
		c.close()
	}
}
