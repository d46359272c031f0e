package user

import "gorm.io/gorm"

// profileColumns are the columns announced to collaborators
var profileColumns = []string{"id", "name", "email", "role", "permissions", "is_active"}

// Store is the relay's view of the school user table
type Store interface {
	// Ensure inserts u unless a user with the same email exists. u is
	// filled from the stored row either way.
	Ensure(u *User) (created bool, err error)
	// Profile loads the collaborator facing columns of one user
	Profile(id uint64) (*User, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Ensure(u *User) (bool, error) {
	result := s.db.Where(User{Email: u.Email}).FirstOrCreate(u)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) Profile(id uint64) (*User, error) {
	var u User
	if err := s.db.Select(profileColumns).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
