package domain

import (
	"slices"
	"time"
)

// NotificationType is the severity of a notification
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
	NotificationSystem  NotificationType = "system"
)

// NotificationAction is a button attached to a notification
type NotificationAction struct {
	Label  string `json:"label" validate:"required"`
	Action string `json:"action" validate:"required"`
}

type NotificationMessage struct {
	ID          string               `json:"id"`
	Type        NotificationType     `json:"type" validate:"required,oneof=info success warning error system"`
	Title       string               `json:"title" validate:"required"`
	Message     string               `json:"message"`
	TargetUsers []string             `json:"targetUsers,omitempty"`
	Timestamp   int64                `json:"timestamp"`
	Read        bool                 `json:"read"`
	Actions     []NotificationAction `json:"actions,omitempty" validate:"dive"`
	// AutoExpire in milliseconds; zero keeps the notification until dismissed
	AutoExpire int64 `json:"autoExpire,omitempty" validate:"min=0"`
}

// IsTargeted reports whether userID is one of the notification's recipients
func (n NotificationMessage) IsTargeted(userID string) bool {
	return slices.Contains(n.TargetUsers, userID)
}

func (n NotificationMessage) ExpireAfter() time.Duration {
	return time.Duration(n.AutoExpire) * time.Millisecond
}

func (n NotificationMessage) Clone() NotificationMessage {
	n.TargetUsers = slices.Clone(n.TargetUsers)
	n.Actions = slices.Clone(n.Actions)
	return n
}
