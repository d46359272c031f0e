// Package protocol defines the JSON envelope exchanged between engines and
// the collaboration server.
package protocol

import (
	"encoding/json"

	"school-collab/internal/domain"
	collabErrors "school-collab/internal/errors"
)

type MessageType string

const (
	TypeAuth          MessageType = "auth"
	TypeAuthSuccess   MessageType = "auth_success"
	TypePing          MessageType = "ping"
	TypePong          MessageType = "pong"
	TypeUserJoined    MessageType = "user_joined"
	TypeUserLeft      MessageType = "user_left"
	TypeEditOperation MessageType = "edit_operation"
	TypeNotification  MessageType = "notification"
	TypePresence      MessageType = "presence_update"
	TypeDataSync      MessageType = "data_sync"
	TypeSystemAlert   MessageType = "system_alert"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// RealtimeEvent is the envelope of every frame. Only the members relevant to
// Type are populated; Payload carries anything opaque to the engine.
type RealtimeEvent struct {
	Type         MessageType     `json:"type"`
	UserID       string          `json:"userId,omitempty"`
	Timestamp    int64           `json:"timestamp,omitempty"`
	TargetUsers  []string        `json:"targetUsers,omitempty"`
	Priority     Priority        `json:"priority,omitempty"`
	Persistent   bool            `json:"persistent,omitempty"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Token        string          `json:"token,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`

	User         *domain.CollaborationUser   `json:"user,omitempty"`
	Operation    *domain.EditOperation       `json:"operation,omitempty"`
	Notification *domain.NotificationMessage `json:"notification,omitempty"`
	Presence     *domain.PresenceInfo        `json:"presence,omitempty"`
}

// Encode serializes an envelope into a text frame
func Encode(ev RealtimeEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// Decode parses a text frame. A frame without a type is malformed.
func Decode(data []byte) (RealtimeEvent, error) {
	var ev RealtimeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return RealtimeEvent{}, collabErrors.Decode(err)
	}
	if ev.Type == "" {
		return RealtimeEvent{}, collabErrors.Decode(collabErrors.New("missing type"))
	}
	return ev, nil
}

// DecodePayload unmarshals the opaque payload into v
func (ev RealtimeEvent) DecodePayload(v any) error {
	if len(ev.Payload) == 0 {
		return collabErrors.Decode(collabErrors.New("empty payload"))
	}
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return collabErrors.Decode(err)
	}
	return nil
}

func NewAuth(user domain.CollaborationUser, token string) RealtimeEvent {
	u := user.Clone()
	return RealtimeEvent{Type: TypeAuth, UserID: user.ID, Timestamp: domain.Now(), Token: token, User: &u}
}

func NewAuthSuccess(connectionID string) RealtimeEvent {
	return RealtimeEvent{Type: TypeAuthSuccess, ConnectionID: connectionID, Timestamp: domain.Now()}
}

func NewPing() RealtimeEvent {
	return RealtimeEvent{Type: TypePing, Timestamp: domain.Now()}
}

func NewPong() RealtimeEvent {
	return RealtimeEvent{Type: TypePong, Timestamp: domain.Now()}
}

func NewUserJoined(user domain.CollaborationUser) RealtimeEvent {
	u := user.Clone()
	return RealtimeEvent{Type: TypeUserJoined, UserID: user.ID, Timestamp: domain.Now(), User: &u}
}

func NewUserLeft(user domain.CollaborationUser) RealtimeEvent {
	u := user.Clone()
	return RealtimeEvent{Type: TypeUserLeft, UserID: user.ID, Timestamp: domain.Now(), User: &u}
}

func NewEditOperation(op domain.EditOperation) RealtimeEvent {
	o := op.Clone()
	return RealtimeEvent{
		Type:       TypeEditOperation,
		UserID:     op.AuthorID,
		Timestamp:  op.Timestamp,
		Priority:   PriorityNormal,
		Persistent: true,
		Operation:  &o,
	}
}

func NewNotification(from string, n domain.NotificationMessage) RealtimeEvent {
	c := n.Clone()
	priority := PriorityNormal
	if n.Type == domain.NotificationError || n.Type == domain.NotificationSystem {
		priority = PriorityHigh
	}
	return RealtimeEvent{
		Type:         TypeNotification,
		UserID:       from,
		Timestamp:    n.Timestamp,
		TargetUsers:  c.TargetUsers,
		Priority:     priority,
		Notification: &c,
	}
}

func NewPresence(p domain.PresenceInfo) RealtimeEvent {
	c := p.Clone()
	return RealtimeEvent{Type: TypePresence, UserID: p.UserID, Timestamp: p.Timestamp, Priority: PriorityLow, Presence: &c}
}

// NewDataSync wraps an arbitrary backend change for broadcast
func NewDataSync(origin string, payload json.RawMessage) RealtimeEvent {
	return RealtimeEvent{Type: TypeDataSync, UserID: origin, Timestamp: domain.Now(), Payload: payload}
}

func NewSystemAlert(alert domain.SystemAlert) (RealtimeEvent, error) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return RealtimeEvent{}, err
	}
	return RealtimeEvent{
		Type:       TypeSystemAlert,
		Timestamp:  domain.Now(),
		Priority:   PriorityHigh,
		Persistent: true,
		Payload:    payload,
	}, nil
}
