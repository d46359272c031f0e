// Package operation applies edit operations with a last-write-wins policy
// per entity id.
//
// Local operations are applied optimistically before they are transmitted.
// There is no acknowledgement in the protocol, so a local operation the
// server later drops stays applied; callers treat local edits as tentative.
package operation

import (
	"sort"
	"sync"

	"school-collab/internal/domain"
	"school-collab/internal/eventbus"
	"school-collab/internal/protocol"

	"github.com/golang/glog"
)

// Transmitter sends an envelope to the server
type Transmitter interface {
	Send(protocol.RealtimeEvent) error
}

type Coordinator struct {
	bus         *eventbus.Bus
	transmitter Transmitter

	mutex sync.Mutex
	last  map[string]domain.EditOperation
}

func NewCoordinator(bus *eventbus.Bus, transmitter Transmitter) *Coordinator {
	return &Coordinator{
		bus:         bus,
		transmitter: transmitter,
		last:        map[string]domain.EditOperation{},
	}
}

// Submit stamps, applies and transmits a locally authored operation.
// The returned operation is applied even when the transmit error is non-nil.
func (self *Coordinator) Submit(authorID string, op domain.EditOperation) (domain.EditOperation, error) {
	op.ID = domain.NewID()
	op.AuthorID = authorID
	op.Timestamp = domain.Now()
	if err := domain.Validate(op); err != nil {
		return domain.EditOperation{}, err
	}

	op.Applied = true
	self.mutex.Lock()
	self.last[op.EntityID] = op.Clone()
	self.mutex.Unlock()

	self.bus.Emit(eventbus.EditOperationApplied{Operation: op.Clone(), Local: true})

	if err := self.transmitter.Send(protocol.NewEditOperation(op)); err != nil {
		glog.V(1).Infof("[op]%s %s applied locally, transmit failed: %s", op.ID, op.EntityID, err)
		return op, err
	}
	return op, nil
}

// ApplyRemote applies an operation received from the server unless the
// stored operation for the same entity is strictly newer. A redelivery of
// the stored operation itself is ignored.
func (self *Coordinator) ApplyRemote(op domain.EditOperation) bool {
	self.mutex.Lock()
	stored, ok := self.last[op.EntityID]
	if ok && op.ID != "" && stored.ID == op.ID {
		self.mutex.Unlock()
		return false
	}
	if ok && !op.Supersedes(stored) {
		self.mutex.Unlock()
		glog.V(2).Infof("[op]discard %s for %s: %d < %d", op.ID, op.EntityID, op.Timestamp, stored.Timestamp)
		return false
	}
	op = op.Clone()
	op.Applied = true
	self.last[op.EntityID] = op
	self.mutex.Unlock()

	self.bus.Emit(eventbus.EditOperationApplied{Operation: op.Clone()})
	return true
}

func (self *Coordinator) LastOperation(entityID string) (domain.EditOperation, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	op, ok := self.last[entityID]
	return op.Clone(), ok
}

// Operations returns the retained operation of every entity ordered by entity id
func (self *Coordinator) Operations() []domain.EditOperation {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	ops := make([]domain.EditOperation, 0, len(self.last))
	for _, op := range self.last {
		ops = append(ops, op.Clone())
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].EntityID < ops[j].EntityID
	})
	return ops
}
