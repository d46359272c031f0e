package eventbus

import "school-collab/internal/domain"

type EventType string

const (
	EventConnected             EventType = "connected"
	EventDisconnected          EventType = "disconnected"
	EventUserJoined            EventType = "user_joined"
	EventUserLeft              EventType = "user_left"
	EventEditOperation         EventType = "edit_operation"
	EventNotification          EventType = "notification"
	EventNotificationRead      EventType = "notification_read"
	EventNotificationDismissed EventType = "notification_dismissed"
	EventPresenceUpdate        EventType = "presence_update"
	EventDataSync              EventType = "data_sync"
	EventSystemAlert           EventType = "system_alert"
	EventConnectionFailed      EventType = "connection_failed"
)

// Event is implemented by every payload published on the bus
type Event interface {
	Type() EventType
}

type Connected struct {
	ConnectionID string
}

type Disconnected struct {
	Err error
}

type UserJoined struct {
	User domain.CollaborationUser
}

type UserLeft struct {
	User domain.CollaborationUser
}

// EditOperationApplied is published for every operation that won last-write-wins.
// Local is true for operations authored by this engine.
type EditOperationApplied struct {
	Operation domain.EditOperation
	Local     bool
}

type NotificationAdded struct {
	Notification domain.NotificationMessage
}

type NotificationRead struct {
	ID string
}

type NotificationDismissed struct {
	ID string
}

type PresenceUpdated struct {
	Presence domain.PresenceInfo
}

type DataSync struct {
	UserID    string
	Timestamp int64
	Payload   []byte
}

type SystemAlert struct {
	Alert domain.SystemAlert
}

type ConnectionFailed struct {
	Attempts int
}

func (Connected) Type() EventType             { return EventConnected }
func (Disconnected) Type() EventType          { return EventDisconnected }
func (UserJoined) Type() EventType            { return EventUserJoined }
func (UserLeft) Type() EventType              { return EventUserLeft }
func (EditOperationApplied) Type() EventType  { return EventEditOperation }
func (NotificationAdded) Type() EventType     { return EventNotification }
func (NotificationRead) Type() EventType      { return EventNotificationRead }
func (NotificationDismissed) Type() EventType { return EventNotificationDismissed }
func (PresenceUpdated) Type() EventType       { return EventPresenceUpdate }
func (DataSync) Type() EventType              { return EventDataSync }
func (SystemAlert) Type() EventType           { return EventSystemAlert }
func (ConnectionFailed) Type() EventType      { return EventConnectionFailed }
