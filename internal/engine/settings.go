package engine

import (
	"context"
	"time"

	"school-collab/internal/notification"
	"school-collab/internal/protocol"
	"school-collab/internal/transport"
)

// Conn is an authenticated server connection
type Conn interface {
	ConnectionID() string
	Run(handler func([]byte)) error
	Send(protocol.RealtimeEvent) error
	Close() error
}

type DialFunc func(ctx context.Context, url string, auth protocol.RealtimeEvent) (Conn, error)

type Settings struct {
	URL   string
	Token string

	Transport *transport.Settings

	BaseDelay   time.Duration
	MaxAttempts int

	HeartbeatInterval time.Duration
	PresenceInterval  time.Duration

	// expiry of the local notice raised when a user joins or leaves
	RosterNoticeExpire time.Duration

	// hooks, replaced in tests
	Dial      DialFunc
	After     func(time.Duration) <-chan time.Time
	AfterFunc notification.AfterFunc
}

func DefaultSettings(url string) *Settings {
	settings := &Settings{
		URL:                url,
		Transport:          transport.DefaultSettings(),
		BaseDelay:          time.Second,
		MaxAttempts:        5,
		HeartbeatInterval:  30 * time.Second,
		PresenceInterval:   10 * time.Second,
		RosterNoticeExpire: 5 * time.Second,
		After:              time.After,
	}
	settings.Dial = settings.transportDial
	return settings
}

func (self *Settings) transportDial(ctx context.Context, url string, auth protocol.RealtimeEvent) (Conn, error) {
	conn, err := transport.Dial(ctx, url, auth, self.Transport)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// withDefaults returns a copy with every zero field taken from
// DefaultSettings. A nil receiver yields DefaultSettings("").
func (self *Settings) withDefaults() *Settings {
	defaults := DefaultSettings("")
	if self == nil {
		return defaults
	}
	settings := *self
	if settings.Transport == nil {
		settings.Transport = defaults.Transport
	}
	if settings.BaseDelay <= 0 {
		settings.BaseDelay = defaults.BaseDelay
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = defaults.MaxAttempts
	}
	if settings.HeartbeatInterval == 0 {
		settings.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if settings.PresenceInterval == 0 {
		settings.PresenceInterval = defaults.PresenceInterval
	}
	if settings.RosterNoticeExpire == 0 {
		settings.RosterNoticeExpire = defaults.RosterNoticeExpire
	}
	if settings.Dial == nil {
		settings.Dial = settings.transportDial
	}
	if settings.After == nil {
		settings.After = time.After
	}
	// AfterFunc is defaulted by notification.NewCenter
	return &settings
}

// BackoffDelay is base * 2^(attempt-1) for attempt >= 1
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return base
	}
	return base << (attempt - 1)
}
