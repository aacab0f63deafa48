package service

import (
	"context"
	"fmt"

	"maitred/internal/apperr"
	"maitred/internal/database"
	"maitred/internal/models"
	"maitred/internal/realtime"

	"github.com/jinzhu/gorm"
)

// Staff resolves users and their restaurant memberships. It backs token
// authentication, room join checks and the staff guard on HTTP routes.
type Staff struct {
	*core
}

type MembershipInput struct {
	Roles []string `json:"roles"`
	// Working assigns the user to the restaurant; false removes them.
	Working bool `json:"working"`
}

func (s *Staff) LoadUser(ctx context.Context, userID uint) (*models.User, error) {
	return loadUser(s.db, userID)
}

// hasAuthority reports whether user owns the restaurant or holds one of
// roles while working there.
func hasAuthority(restaurant *models.Restaurant, user *models.User, roles ...models.Role) bool {
	if user == nil {
		return false
	}
	if restaurant.OwnerID == user.ID {
		return true
	}
	if !user.WorksAt(restaurant.ID) {
		return false
	}
	if len(roles) == 0 {
		return user.IsStaff()
	}
	return user.HasRole(roles...)
}

// RequireStaff fails unless user owns the restaurant or works there with
// one of roles. With no roles any staff role is enough.
func (s *Staff) RequireStaff(ctx context.Context, user *models.User, restaurantID uint, roles ...models.Role) error {
	if user == nil {
		return apperr.Unauthenticated("authentication required")
	}
	restaurant, err := loadRestaurant(s.db, restaurantID)
	if err != nil {
		return err
	}
	if !hasAuthority(restaurant, user, roles...) {
		return apperr.Authorization("user %d may not perform this action at restaurant %d", user.ID, restaurantID)
	}
	return nil
}

// AuthorizeStaffJoin admits a user to the staff room under their own id.
func (s *Staff) AuthorizeStaffJoin(ctx context.Context, user *models.User, restaurantID, userID uint) error {
	if user == nil {
		return apperr.Unauthenticated("authentication required")
	}
	if user.ID != userID {
		return apperr.Authorization("cannot join the staff room as another user")
	}
	return s.RequireStaff(ctx, user, restaurantID)
}

// AuthorizeOwnerJoin admits owners and managers to the owner room.
func (s *Staff) AuthorizeOwnerJoin(ctx context.Context, user *models.User, restaurantID uint) error {
	return s.RequireStaff(ctx, user, restaurantID, models.RoleOwner, models.RoleManager)
}

// UpdateMembership sets a user's roles and whether they work at the
// restaurant. Only the owner or a manager of the restaurant may do this.
func (s *Staff) UpdateMembership(ctx context.Context, actor *models.User, restaurantID, userID uint, in MembershipInput) (*models.User, error) {
	for _, role := range in.Roles {
		if !models.ValidRole(role) {
			err := apperr.Validation("unknown role %q", role)
			s.record("update_membership", err)
			return nil, err
		}
	}
	if err := s.RequireStaff(ctx, actor, restaurantID, models.RoleOwner, models.RoleManager); err != nil {
		s.record("update_membership", err)
		return nil, err
	}

	unlock := s.locks.Lock(fmt.Sprintf("user:%d", userID))
	defer unlock()

	var user *models.User
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		if user, err = loadUser(tx, userID); err != nil {
			return err
		}
		if user.WorkingAt != nil && *user.WorkingAt != restaurantID {
			return apperr.Conflict("user %d works at another restaurant", userID).
				With("workingAt", *user.WorkingAt)
		}

		user.Roles = models.StringSlice(in.Roles)
		if in.Working {
			user.WorkingAt = &restaurantID
		} else {
			user.WorkingAt = nil
		}
		if err := tx.Save(user).Error; err != nil {
			return fmt.Errorf("save user %d: %w", userID, err)
		}
		return nil
	})
	s.record("update_membership", err)
	if err != nil {
		return nil, err
	}

	s.publish(realtime.Event{
		Name:         realtime.EventStaffUpdate,
		RestaurantID: restaurantID,
		Rooms:        []string{realtime.StaffRoom(restaurantID), realtime.OwnerRoom(restaurantID)},
		Payload:      *user,
	})
	return user, nil
}
