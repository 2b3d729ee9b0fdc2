package models

import "time"

// UserRole tags the variant of a user account.
type UserRole string

const (
	RoleStudent    UserRole = "student"
	RoleStaff      UserRole = "staff"
	RoleManagement UserRole = "management"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleStaff, RoleManagement:
		return true
	}
	return false
}

// User is a studio account. Role-specific payload lives in optional fields:
// StaffType is only set for staff, student memberships are looked up through
// the membership directory.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	StaffType *string   `db:"staff_type" json:"staff_type,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Is reports whether the user holds role r.
func (u *User) Is(r UserRole) bool {
	return u != nil && u.Role == r
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
