// Package eventbus is the in-process publish/subscribe the application uses
// to react to roster changes, operations and notifications.
package eventbus

import (
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	collabErrors "school-collab/internal/errors"

	"github.com/golang/glog"
)

type Handler func(Event)

// Subscription identifies a registered handler for Off
type Subscription struct {
	eventType EventType
	id        uint64
}

type entry struct {
	id      uint64
	handler Handler
}

// Bus dispatches events synchronously on the emitting goroutine.
// Handler lists are copied on update so Emit never holds the lock while
// calling out.
type Bus struct {
	mutex    sync.Mutex
	nextID   uint64
	handlers map[EventType][]entry
}

func New() *Bus {
	return &Bus{
		handlers: map[EventType][]entry{},
	}
}

func (self *Bus) On(eventType EventType, handler Handler) Subscription {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.nextID += 1
	next := slices.Clone(self.handlers[eventType])
	next = append(next, entry{id: self.nextID, handler: handler})
	self.handlers[eventType] = next
	return Subscription{eventType: eventType, id: self.nextID}
}

// Off removes a subscription. Removing twice is a no-op.
func (self *Bus) Off(sub Subscription) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	current := self.handlers[sub.eventType]
	i := slices.IndexFunc(current, func(e entry) bool { return e.id == sub.id })
	if i < 0 {
		return
	}
	next := slices.Clone(current)
	next = slices.Delete(next, i, i+1)
	if len(next) == 0 {
		delete(self.handlers, sub.eventType)
	} else {
		self.handlers[sub.eventType] = next
	}
}

// Emit calls every handler registered for the event's type. A panicking
// handler is logged and the remaining handlers still run.
func (self *Bus) Emit(event Event) {
	self.mutex.Lock()
	handlers := self.handlers[event.Type()]
	self.mutex.Unlock()

	for _, e := range handlers {
		if err := call(e.handler, event); err != nil {
			glog.Errorf("[bus]%s handler %d: %s", event.Type(), e.id, err)
		}
	}
}

func (self *Bus) HandlerCount(eventType EventType) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return len(self.handlers[eventType])
}

func call(handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			glog.V(2).Infof("[bus]recovered: %s", debug.Stack())
			err = collabErrors.Handler(fmt.Errorf("%v", r))
		}
	}()
	handler(event)
	return nil
}

// Subscribe registers a handler typed to one event struct
func Subscribe[T Event](bus *Bus, handler func(T)) Subscription {
	var zero T
	return bus.On(zero.Type(), func(event Event) {
		if typed, ok := event.(T); ok {
			handler(typed)
		}
	})
}
