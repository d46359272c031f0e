// Package roster tracks the remote users the engine believes are connected
// and their last reported presence.
package roster

import (
	"sort"
	"sync"

	"school-collab/internal/domain"
)

// Store keeps the roster and presence maps behind separate locks.
// Lock order is always rosterMutex then presenceMutex.
type Store struct {
	rosterMutex sync.RWMutex
	users       map[string]domain.CollaborationUser

	presenceMutex sync.RWMutex
	presence      map[string]domain.PresenceInfo
}

func NewStore() *Store {
	return &Store{
		users:    map[string]domain.CollaborationUser{},
		presence: map[string]domain.PresenceInfo{},
	}
}

// Join inserts or refreshes a user. isNew is false when the user was already
// on the roster, e.g. a second tab of the same account.
func (self *Store) Join(user domain.CollaborationUser) (snapshot domain.CollaborationUser, isNew bool) {
	self.rosterMutex.Lock()
	defer self.rosterMutex.Unlock()

	_, exists := self.users[user.ID]
	user = user.Clone()
	if user.Status == "" {
		user.Status = domain.StatusOnline
	}
	if user.LastSeen == 0 {
		user.LastSeen = domain.Now()
	}
	self.users[user.ID] = user
	return user.Clone(), !exists
}

// Leave removes the user and its presence entry as one step
func (self *Store) Leave(userID string) (domain.CollaborationUser, bool) {
	self.rosterMutex.Lock()
	defer self.rosterMutex.Unlock()

	user, ok := self.users[userID]
	if !ok {
		return domain.CollaborationUser{}, false
	}
	delete(self.users, userID)

	self.presenceMutex.Lock()
	delete(self.presence, userID)
	self.presenceMutex.Unlock()

	return user, true
}

// UpdatePresence overwrites the presence snapshot of a rostered user and
// mirrors the page and activity onto the user record. Updates for unknown
// users are rejected.
func (self *Store) UpdatePresence(info domain.PresenceInfo) bool {
	self.rosterMutex.Lock()
	defer self.rosterMutex.Unlock()

	user, ok := self.users[info.UserID]
	if !ok {
		return false
	}
	if info.Timestamp == 0 {
		info.Timestamp = domain.Now()
	}
	user.CurrentPage = info.Page
	user.LastSeen = info.Timestamp
	switch info.Activity {
	case domain.ActivityAway:
		user.Status = domain.StatusAway
	case domain.ActivityActive:
		user.Status = domain.StatusOnline
	}
	self.users[info.UserID] = user

	self.presenceMutex.Lock()
	self.presence[info.UserID] = info.Clone()
	self.presenceMutex.Unlock()
	return true
}

func (self *Store) User(userID string) (domain.CollaborationUser, bool) {
	self.rosterMutex.RLock()
	defer self.rosterMutex.RUnlock()

	user, ok := self.users[userID]
	return user.Clone(), ok
}

// ConnectedUsers returns copies ordered by user id
func (self *Store) ConnectedUsers() []domain.CollaborationUser {
	self.rosterMutex.RLock()
	defer self.rosterMutex.RUnlock()

	users := make([]domain.CollaborationUser, 0, len(self.users))
	for _, user := range self.users {
		users = append(users, user.Clone())
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].ID < users[j].ID
	})
	return users
}

func (self *Store) Presence(userID string) (domain.PresenceInfo, bool) {
	self.presenceMutex.RLock()
	defer self.presenceMutex.RUnlock()

	info, ok := self.presence[userID]
	return info.Clone(), ok
}

// PresenceByPage returns the presence of every user currently on page
func (self *Store) PresenceByPage(page string) []domain.PresenceInfo {
	self.presenceMutex.RLock()
	defer self.presenceMutex.RUnlock()

	out := []domain.PresenceInfo{}
	for _, info := range self.presence {
		if info.Page == page {
			out = append(out, info.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (self *Store) Len() int {
	self.rosterMutex.RLock()
	defer self.rosterMutex.RUnlock()
	return len(self.users)
}

// Reset drops every user and presence entry
func (self *Store) Reset() {
	self.rosterMutex.Lock()
	defer self.rosterMutex.Unlock()
	self.presenceMutex.Lock()
	defer self.presenceMutex.Unlock()

	clear(self.users)
	clear(self.presence)
}
