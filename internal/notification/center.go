// Package notification stores the notices shown to the local user and
// removes them when they are dismissed or expire.
package notification

import (
	"sort"
	"sync"
	"time"

	"school-collab/internal/domain"
	"school-collab/internal/eventbus"
	"school-collab/internal/protocol"

	"github.com/golang/glog"
)

type Transmitter interface {
	Send(protocol.RealtimeEvent) error
}

// Timer is the part of *time.Timer the center needs
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d
type AfterFunc func(d time.Duration, f func()) Timer

func systemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type entry struct {
	message domain.NotificationMessage
	timer   Timer
	seq     uint64
}

type Center struct {
	bus         *eventbus.Bus
	transmitter Transmitter
	afterFunc   AfterFunc

	mutex       sync.Mutex
	localUserID string
	seq         uint64
	entries     map[string]*entry
}

// NewCenter creates a center. A nil afterFunc uses time.AfterFunc.
func NewCenter(bus *eventbus.Bus, transmitter Transmitter, afterFunc AfterFunc) *Center {
	if afterFunc == nil {
		afterFunc = systemAfterFunc
	}
	return &Center{
		bus:         bus,
		transmitter: transmitter,
		afterFunc:   afterFunc,
		entries:     map[string]*entry{},
	}
}

func (self *Center) SetLocalUser(userID string) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.localUserID = userID
}

// Show adds a notification for the local user only
func (self *Center) Show(n domain.NotificationMessage) (domain.NotificationMessage, error) {
	n.ID = domain.NewID()
	n.Timestamp = domain.Now()
	n.Read = false
	if err := domain.Validate(n); err != nil {
		return domain.NotificationMessage{}, err
	}
	self.insert(n)
	return n, nil
}

// Send adds the notification locally and propagates it to its targets.
// The local copy is kept even if transmission fails.
func (self *Center) Send(n domain.NotificationMessage) (domain.NotificationMessage, error) {
	n, err := self.Show(n)
	if err != nil {
		return n, err
	}

	self.mutex.Lock()
	from := self.localUserID
	self.mutex.Unlock()

	return n, self.transmitter.Send(protocol.NewNotification(from, n))
}

// Receive accepts a notification from the network when it is addressed to
// the local user and has not been seen yet.
func (self *Center) Receive(n domain.NotificationMessage) bool {
	self.mutex.Lock()
	local := self.localUserID
	_, seen := self.entries[n.ID]
	self.mutex.Unlock()

	if local == "" || !n.IsTargeted(local) {
		return false
	}
	if n.ID != "" && seen {
		return false
	}
	if n.ID == "" {
		n.ID = domain.NewID()
	}
	if n.Timestamp == 0 {
		n.Timestamp = domain.Now()
	}
	return self.insert(n)
}

func (self *Center) insert(n domain.NotificationMessage) bool {
	self.mutex.Lock()
	if _, ok := self.entries[n.ID]; ok {
		self.mutex.Unlock()
		return false
	}
	self.seq += 1
	e := &entry{message: n.Clone(), seq: self.seq}
	self.entries[n.ID] = e
	if 0 < n.AutoExpire {
		id := n.ID
		e.timer = self.afterFunc(n.ExpireAfter(), func() {
			self.expire(id, e)
		})
	}
	self.mutex.Unlock()

	self.bus.Emit(eventbus.NotificationAdded{Notification: n.Clone()})
	return true
}

// expire only removes the entry the timer was armed for
func (self *Center) expire(id string, armed *entry) {
	self.mutex.Lock()
	current, ok := self.entries[id]
	if !ok || current != armed {
		self.mutex.Unlock()
		return
	}
	delete(self.entries, id)
	self.mutex.Unlock()

	glog.V(2).Infof("[notify]expired %s", id)
	self.bus.Emit(eventbus.NotificationDismissed{ID: id})
}

func (self *Center) Dismiss(id string) bool {
	self.mutex.Lock()
	e, ok := self.entries[id]
	if !ok {
		self.mutex.Unlock()
		return false
	}
	delete(self.entries, id)
	if e.timer != nil {
		e.timer.Stop()
	}
	self.mutex.Unlock()

	self.bus.Emit(eventbus.NotificationDismissed{ID: id})
	return true
}

func (self *Center) MarkAsRead(id string) bool {
	self.mutex.Lock()
	e, ok := self.entries[id]
	if !ok || e.message.Read {
		self.mutex.Unlock()
		return false
	}
	e.message.Read = true
	self.mutex.Unlock()

	self.bus.Emit(eventbus.NotificationRead{ID: id})
	return true
}

// MarkAllAsRead returns the number of notifications that changed
func (self *Center) MarkAllAsRead() int {
	self.mutex.Lock()
	changed := []string{}
	for id, e := range self.entries {
		if !e.message.Read {
			e.message.Read = true
			changed = append(changed, id)
		}
	}
	self.mutex.Unlock()

	sort.Strings(changed)
	for _, id := range changed {
		self.bus.Emit(eventbus.NotificationRead{ID: id})
	}
	return len(changed)
}

func (self *Center) Get(id string) (domain.NotificationMessage, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	e, ok := self.entries[id]
	if !ok {
		return domain.NotificationMessage{}, false
	}
	return e.message.Clone(), true
}

// Notifications returns copies, newest first
func (self *Center) Notifications() []domain.NotificationMessage {
	self.mutex.Lock()
	entries := make([]*entry, 0, len(self.entries))
	for _, e := range self.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].message.Timestamp != entries[j].message.Timestamp {
			return entries[i].message.Timestamp > entries[j].message.Timestamp
		}
		return entries[i].seq > entries[j].seq
	})
	out := make([]domain.NotificationMessage, len(entries))
	for i, e := range entries {
		out[i] = e.message.Clone()
	}
	self.mutex.Unlock()
	return out
}

func (self *Center) UnreadCount() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	count := 0
	for _, e := range self.entries {
		if !e.message.Read {
			count += 1
		}
	}
	return count
}

// Clear drops every notification and stops pending expiry timers without
// publishing dismissals.
func (self *Center) Clear() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for id, e := range self.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(self.entries, id)
	}
}
