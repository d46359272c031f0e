// Package engine is the real-time collaboration client: it keeps one
// authenticated connection alive, routes inbound frames to the roster,
// operation and notification stores, and publishes everything on a bus.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"school-collab/internal/domain"
	collabErrors "school-collab/internal/errors"
	"school-collab/internal/eventbus"
	"school-collab/internal/notification"
	"school-collab/internal/operation"
	"school-collab/internal/protocol"
	"school-collab/internal/roster"

	"github.com/golang/glog"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

var (
	ErrAlreadyInitialized = collabErrors.New("engine already initialized")
	ErrNotFailed          = collabErrors.New("engine is not in the failed state")
	ErrNoLocalUser        = collabErrors.New("engine has no local user")
)

type Engine struct {
	settings *Settings

	bus           *eventbus.Bus
	roster        *roster.Store
	operations    *operation.Coordinator
	notifications *notification.Center

	mutex     sync.Mutex
	state     State
	attempt   int
	localUser *domain.CollaborationUser
	section   string
	hidden    bool
	cursor    *domain.Cursor
	selection *domain.Selection
	conn      Conn
	cancel    context.CancelFunc
	// bumped whenever the supervisor is started or stopped; a superseded
	// supervisor leaves state alone
	session uint64

	// supervisor dispatches in progress
	dispatching atomic.Int32

	wg sync.WaitGroup
}

// New copies settings and fills every zero field and nil hook from
// DefaultSettings. A negative interval disables that scheduler.
func New(settings *Settings) *Engine {
	engine := &Engine{
		settings: settings.withDefaults(),
		bus:      eventbus.New(),
		roster:   roster.NewStore(),
		state:    StateDisconnected,
	}
	engine.operations = operation.NewCoordinator(engine.bus, engine)
	engine.notifications = notification.NewCenter(engine.bus, engine, engine.settings.AfterFunc)
	return engine
}

// Initialize sets the local user and starts connecting in the background.
// Progress is reported on the bus.
func (self *Engine) Initialize(ctx context.Context, user domain.CollaborationUser) error {
	if err := domain.Validate(user); err != nil {
		return err
	}

	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.cancel != nil {
		return ErrAlreadyInitialized
	}
	u := user.Clone()
	if u.Status == "" {
		u.Status = domain.StatusOnline
	}
	u.LastSeen = domain.Now()
	self.localUser = &u
	self.hidden = false
	self.attempt = 0
	self.notifications.SetLocalUser(u.ID)

	self.start(ctx)
	return nil
}

// Reinitialize restarts the supervisor after it gave up
func (self *Engine) Reinitialize(ctx context.Context) error {
	self.mutex.Lock()
	if self.state != StateFailed {
		self.mutex.Unlock()
		return ErrNotFailed
	}
	cancel := self.cancel
	self.session += 1
	self.mutex.Unlock()

	// the supervisor releases wg before it reports connection_failed, so a
	// handler of that event may land here
	cancel()
	self.wg.Wait()

	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.cancel == nil || self.localUser == nil {
		return ErrNoLocalUser
	}
	self.attempt = 0
	self.start(ctx)
	return nil
}

// start must be called with the mutex held
func (self *Engine) start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	self.cancel = cancel
	self.session += 1
	session := self.session
	self.state = StateConnecting
	self.wg.Add(1)
	go func() {
		attempts, failed := self.supervise(runCtx, session)
		self.wg.Done()
		if failed {
			self.bus.Emit(eventbus.ConnectionFailed{Attempts: attempts})
		}
	}()
}

// Disconnect stops reconnecting, closes the connection, waits for every
// goroutine the engine owns and clears all session state. Called from a bus
// handler running on the supervisor, it returns without waiting; the
// supervisor winds down once the handler returns.
func (self *Engine) Disconnect() {
	self.mutex.Lock()
	cancel := self.cancel
	self.cancel = nil
	self.session += 1
	self.mutex.Unlock()

	if cancel != nil {
		cancel()
		if self.dispatching.Load() == 0 {
			self.wg.Wait()
		}
	}

	self.notifications.Clear()
	self.notifications.SetLocalUser("")
	self.roster.Reset()

	self.mutex.Lock()
	self.localUser = nil
	self.conn = nil
	self.state = StateDisconnected
	self.attempt = 0
	self.mutex.Unlock()
	glog.V(1).Infof("[engine]disconnected")
}

// Send transmits on the live connection. It never blocks waiting for a
// connection and returns ErrNotConnected while down.
func (self *Engine) Send(ev protocol.RealtimeEvent) error {
	self.mutex.Lock()
	conn := self.conn
	self.mutex.Unlock()

	if conn == nil {
		return collabErrors.NotConnected()
	}
	return conn.Send(ev)
}

func (self *Engine) Bus() *eventbus.Bus {
	return self.bus
}

func (self *Engine) State() State {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.state
}

func (self *Engine) Attempt() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.attempt
}

func (self *Engine) LocalUser() (domain.CollaborationUser, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.localUser == nil {
		return domain.CollaborationUser{}, false
	}
	return self.localUser.Clone(), true
}

func (self *Engine) localUserID() string {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.localUser == nil {
		return ""
	}
	return self.localUser.ID
}

func (self *Engine) ConnectedUsers() []domain.CollaborationUser {
	return self.roster.ConnectedUsers()
}

func (self *Engine) UserPresence(userID string) (domain.PresenceInfo, bool) {
	return self.roster.Presence(userID)
}

func (self *Engine) Notifications() *notification.Center {
	return self.notifications
}

func (self *Engine) Operations() *operation.Coordinator {
	return self.operations
}

// SubmitOperation applies op locally and transmits it. When the transmit
// fails the operation stays applied and the error is returned.
func (self *Engine) SubmitOperation(op domain.EditOperation) (domain.EditOperation, error) {
	authorID := self.localUserID()
	if authorID == "" {
		return domain.EditOperation{}, ErrNoLocalUser
	}
	return self.operations.Submit(authorID, op)
}

func (self *Engine) ShowNotification(n domain.NotificationMessage) (domain.NotificationMessage, error) {
	return self.notifications.Show(n)
}

func (self *Engine) SendNotification(n domain.NotificationMessage) (domain.NotificationMessage, error) {
	if self.localUserID() == "" {
		return domain.NotificationMessage{}, ErrNoLocalUser
	}
	return self.notifications.Send(n)
}

// SetCurrentPage records where the local user is and broadcasts it
func (self *Engine) SetCurrentPage(page string, section string) {
	self.mutex.Lock()
	if self.localUser == nil {
		self.mutex.Unlock()
		return
	}
	self.localUser.CurrentPage = page
	self.section = section
	self.cursor = nil
	self.selection = nil
	self.mutex.Unlock()

	self.broadcastPresence()
}

// SetVisible reflects page visibility; hidden pages report as away
func (self *Engine) SetVisible(visible bool) {
	self.mutex.Lock()
	changed := self.hidden == visible
	self.hidden = !visible
	if self.localUser != nil {
		if visible {
			self.localUser.Status = domain.StatusOnline
		} else {
			self.localUser.Status = domain.StatusAway
		}
	}
	self.mutex.Unlock()

	if changed {
		self.broadcastPresence()
	}
}

// UpdateCursor broadcasts the local cursor and selection on the current page
func (self *Engine) UpdateCursor(cursor *domain.Cursor, selection *domain.Selection) {
	self.mutex.Lock()
	self.cursor = cursor
	self.selection = selection
	self.mutex.Unlock()

	self.broadcastPresence()
}
