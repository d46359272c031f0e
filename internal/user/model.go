package user

import (
	"strconv"
	"strings"
	"time"

	"school-collab/internal/domain"
)

// User is a school account as stored by the main application
type User struct {
	ID          uint64
	Name        string
	Email       string `gorm:"uniqueIndex"`
	Role        string `gorm:"index"`
	Permissions string // comma separated
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IsActive    bool `gorm:"default:true"`
}

// ToCollaborationUser converts a User to the profile announced to collaborators
func (u *User) ToCollaborationUser() domain.CollaborationUser {
	permissions := []string{}
	for _, p := range strings.Split(u.Permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			permissions = append(permissions, p)
		}
	}
	return domain.CollaborationUser{
		ID:          strconv.FormatUint(u.ID, 10),
		Name:        u.Name,
		Email:       u.Email,
		Role:        domain.Role(u.Role),
		Status:      domain.StatusOnline,
		Permissions: permissions,
	}
}
