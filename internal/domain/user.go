package domain

// Role of a participant in the school application
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleStudent Role = "student"
)

// Status is the presence status shown next to a user
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// CollaborationUser is a participant known to the engine, either the local
// user or a remote user announced by the server.
type CollaborationUser struct {
	ID          string   `json:"id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Email       string   `json:"email,omitempty" validate:"omitempty,email"`
	Role        Role     `json:"role" validate:"required,oneof=admin teacher parent student"`
	Status      Status   `json:"status,omitempty" validate:"omitempty,oneof=online away busy offline"`
	LastSeen    int64    `json:"lastSeen,omitempty"`
	CurrentPage string   `json:"currentPage,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Clone returns a deep copy safe to hand out of a store
func (u CollaborationUser) Clone() CollaborationUser {
	if u.Permissions != nil {
		u.Permissions = append([]string(nil), u.Permissions...)
	}
	return u
}

// HasPermission reports whether the permission set contains p
func (u CollaborationUser) HasPermission(p string) bool {
	for _, perm := range u.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}
