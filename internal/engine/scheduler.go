package engine

import (
	"context"
	"time"

	"school-collab/internal/domain"
	collabErrors "school-collab/internal/errors"
	"school-collab/internal/protocol"

	"github.com/golang/glog"
)

func (self *Engine) runHeartbeat(ctx context.Context) {
	self.every(ctx, self.settings.HeartbeatInterval, func() {
		self.sendQuiet(protocol.NewPing())
	})
}

func (self *Engine) runPresence(ctx context.Context) {
	self.every(ctx, self.settings.PresenceInterval, self.broadcastPresence)
}

// every runs f on each tick until ctx is done. A tick that arrives while f
// is still running is dropped by the ticker.
func (self *Engine) every(ctx context.Context, interval time.Duration, f func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f()
		}
	}
}

func (self *Engine) broadcastPresence() {
	self.mutex.Lock()
	if self.localUser == nil {
		self.mutex.Unlock()
		return
	}
	activity := domain.ActivityActive
	if self.hidden {
		activity = domain.ActivityAway
	}
	info := domain.PresenceInfo{
		UserID:    self.localUser.ID,
		Page:      self.localUser.CurrentPage,
		Section:   self.section,
		Activity:  activity,
		Timestamp: domain.Now(),
		Cursor:    self.cursor,
		Selection: self.selection,
	}
	self.localUser.LastSeen = info.Timestamp
	self.mutex.Unlock()

	self.sendQuiet(protocol.NewPresence(info))
}

// sendQuiet is used by periodic senders; being disconnected is not an error for them
func (self *Engine) sendQuiet(ev protocol.RealtimeEvent) {
	if err := self.Send(ev); err != nil && !collabErrors.Is(err, collabErrors.ErrNotConnected) {
		glog.V(1).Infof("[engine]%s send: %s", ev.Type, err)
	}
}
