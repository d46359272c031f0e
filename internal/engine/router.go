package engine

import (
	"fmt"

	"school-collab/internal/domain"
	collabErrors "school-collab/internal/errors"
	"school-collab/internal/eventbus"
	"school-collab/internal/protocol"

	"github.com/golang/glog"
)

// route decodes one inbound frame and hands it to exactly one handler.
// Bad frames are logged and dropped; the connection stays up.
func (self *Engine) route(message []byte) {
	ev, err := protocol.Decode(message)
	if err != nil {
		glog.Warningf("[router]%s", err)
		return
	}

	switch ev.Type {
	case protocol.TypeAuthSuccess:
		glog.V(2).Infof("[router]auth_success connection=%s", ev.ConnectionID)
	case protocol.TypeUserJoined:
		err = self.handleUserJoined(ev)
	case protocol.TypeUserLeft:
		err = self.handleUserLeft(ev)
	case protocol.TypeEditOperation:
		err = self.handleEditOperation(ev)
	case protocol.TypeNotification:
		err = self.handleNotification(ev)
	case protocol.TypePresence:
		err = self.handlePresence(ev)
	case protocol.TypeDataSync:
		self.bus.Emit(eventbus.DataSync{UserID: ev.UserID, Timestamp: ev.Timestamp, Payload: ev.Payload})
	case protocol.TypeSystemAlert:
		err = self.handleSystemAlert(ev)
	case protocol.TypePong:
	default:
		glog.Infof("[router]drop unknown type %q", ev.Type)
	}
	if err != nil {
		glog.Warningf("[router]%s: %s", ev.Type, err)
	}
}

func missing(member string) error {
	return collabErrors.Decode(fmt.Errorf("missing %s", member))
}

func (self *Engine) handleUserJoined(ev protocol.RealtimeEvent) error {
	if ev.User == nil || ev.User.ID == "" {
		return missing("user")
	}
	if ev.User.ID == self.localUserID() {
		return nil
	}

	user, isNew := self.roster.Join(*ev.User)
	if !isNew {
		return nil
	}
	self.bus.Emit(eventbus.UserJoined{User: user})
	self.rosterNotice("User joined", fmt.Sprintf("%s joined the collaboration", displayName(user)))
	return nil
}

func (self *Engine) handleUserLeft(ev protocol.RealtimeEvent) error {
	userID := ev.UserID
	if ev.User != nil && ev.User.ID != "" {
		userID = ev.User.ID
	}
	if userID == "" {
		return missing("userId")
	}

	user, ok := self.roster.Leave(userID)
	if !ok {
		return nil
	}
	self.bus.Emit(eventbus.UserLeft{User: user})
	self.rosterNotice("User left", fmt.Sprintf("%s left the collaboration", displayName(user)))
	return nil
}

func (self *Engine) rosterNotice(title string, message string) {
	_, err := self.notifications.Show(domain.NotificationMessage{
		Type:       domain.NotificationInfo,
		Title:      title,
		Message:    message,
		AutoExpire: self.settings.RosterNoticeExpire.Milliseconds(),
	})
	if err != nil {
		glog.Warningf("[router]notice: %s", err)
	}
}

func displayName(user domain.CollaborationUser) string {
	if user.Name != "" {
		return user.Name
	}
	return user.ID
}

func (self *Engine) handleEditOperation(ev protocol.RealtimeEvent) error {
	if ev.Operation == nil || ev.Operation.EntityID == "" {
		return missing("operation")
	}
	op := *ev.Operation
	if op.AuthorID == "" {
		op.AuthorID = ev.UserID
	}
	self.operations.ApplyRemote(op)
	return nil
}

func (self *Engine) handleNotification(ev protocol.RealtimeEvent) error {
	if ev.Notification == nil {
		return missing("notification")
	}
	n := ev.Notification.Clone()
	if len(n.TargetUsers) == 0 {
		n.TargetUsers = ev.TargetUsers
	}
	self.notifications.Receive(n)
	return nil
}

func (self *Engine) handlePresence(ev protocol.RealtimeEvent) error {
	if ev.Presence == nil {
		return missing("presence")
	}
	info := ev.Presence.Clone()
	if info.UserID == "" {
		info.UserID = ev.UserID
	}
	if info.UserID == "" || info.UserID == self.localUserID() {
		return nil
	}
	if self.roster.UpdatePresence(info) {
		self.bus.Emit(eventbus.PresenceUpdated{Presence: info})
	} else {
		glog.V(2).Infof("[router]presence for unknown user %s", info.UserID)
	}
	return nil
}

func (self *Engine) handleSystemAlert(ev protocol.RealtimeEvent) error {
	var alert domain.SystemAlert
	if err := ev.DecodePayload(&alert); err != nil {
		return err
	}

	severity := alert.Severity
	if severity == "" {
		severity = domain.NotificationSystem
	}
	_, err := self.notifications.Show(domain.NotificationMessage{
		Type:    severity,
		Title:   alert.Title,
		Message: alert.Message,
	})
	// last, so a handler that disconnects leaves nothing behind
	self.bus.Emit(eventbus.SystemAlert{Alert: alert})
	return err
}
