package models

import "time"

// Role names a capability a user holds.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleManager  Role = "manager"
	RoleKitchen  Role = "kitchen"
	RoleWaiter   Role = "waiter"
	RoleCustomer Role = "customer"
)

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	switch Role(r) {
	case RoleOwner, RoleManager, RoleKitchen, RoleWaiter, RoleCustomer:
		return true
	}
	return false
}

// User is an account and, for staff, its restaurant membership.
type User struct {
	ID        uint        `gorm:"primary_key" json:"id"`
	Name      string      `json:"name"`
	Email     string      `gorm:"type:varchar(190);index" json:"email"`
	Roles     StringSlice `gorm:"type:text" json:"roles"`
	WorkingAt *uint       `json:"workingAt"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// HasRole reports whether the user holds any of roles.
func (u *User) HasRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Roles.Contains(string(r)) {
			return true
		}
	}
	return false
}

// IsStaff reports whether the user holds a staff role.
func (u *User) IsStaff() bool {
	return u.HasRole(RoleOwner, RoleManager, RoleKitchen, RoleWaiter)
}

// WorksAt reports whether the user is assigned to the restaurant.
func (u *User) WorksAt(restaurantID uint) bool {
	return u != nil && u.WorkingAt != nil && *u.WorkingAt == restaurantID
}
