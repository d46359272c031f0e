package user

import (
	"context"
	"strconv"

	"school-collab/internal/domain"
	apiError "school-collab/internal/errors"

	"gorm.io/gorm"
)

// Directory resolves the authoritative profile of a connecting user
type Directory interface {
	Lookup(ctx context.Context, userID string) (domain.CollaborationUser, error)
}

// StoreDirectory answers lookups from the school user table. Ids that are
// not numeric cannot exist there and are reported as not found.
type StoreDirectory struct {
	store Store
}

func NewDirectory(store Store) *StoreDirectory {
	return &StoreDirectory{store: store}
}

func (d *StoreDirectory) Lookup(ctx context.Context, userID string) (domain.CollaborationUser, error) {
	if err := ctx.Err(); err != nil {
		return domain.CollaborationUser{}, err
	}

	id, err := strconv.ParseUint(userID, 10, 64)
	if err != nil {
		return domain.CollaborationUser{}, apiError.NotFound("User not found", err)
	}

	u, err := d.store.Profile(id)
	if err != nil {
		if apiError.Is(err, gorm.ErrRecordNotFound) {
			return domain.CollaborationUser{}, apiError.NotFound("User not found", err)
		}
		return domain.CollaborationUser{}, apiError.Internal(err)
	}
	if !u.IsActive {
		return domain.CollaborationUser{}, apiError.Forbidden("User is deactivated", nil)
	}
	return u.ToCollaborationUser(), nil
}
