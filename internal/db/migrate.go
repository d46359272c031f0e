package db

import (
	"school-collab/internal/user"

	"github.com/golang/glog"
	"gorm.io/gorm"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&user.User{}); err != nil {
		return err
	}
	glog.Infof("[db]schema migrated")
	return nil
}

// demo accounts, one per role
var seedUsers = []user.User{
	{Name: "School Admin", Email: "admin@school.test", Role: "admin", Permissions: "users:write,alerts:send", IsActive: true},
	{Name: "Test Teacher", Email: "teacher@school.test", Role: "teacher", Permissions: "grades:write,attendance:write", IsActive: true},
	{Name: "Test Parent", Email: "parent@school.test", Role: "parent", Permissions: "grades:read", IsActive: true},
	{Name: "Test Student", Email: "student@school.test", Role: "student", Permissions: "courses:read", IsActive: true},
}

// SeedData seeds the database with initial data (for development only)
func SeedData(store user.Store) {
	for _, u := range seedUsers {
		u := u
		created, err := store.Ensure(&u)
		switch {
		case err != nil:
			glog.Warningf("[db]error creating seed user %s: %v", u.Email, err)
		case created:
			glog.Infof("[db]created seed user %s (id=%d)", u.Email, u.ID)
		default:
			glog.V(1).Infof("[db]seed user exists: %s (id=%d)", u.Email, u.ID)
		}
	}
}
