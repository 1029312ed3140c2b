package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleGuest                UserRole = "GUEST"
	RoleStudent              UserRole = "STUDENT"
	RoleMarketingCoordinator UserRole = "MARKETING_COORDINATOR"
	RoleMarketingManager     UserRole = "MARKETING_MANAGER"
	RoleAdmin                UserRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleGuest, RoleStudent, RoleMarketingCoordinator, RoleMarketingManager, RoleAdmin:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	FullName     string      `json:"full_name"`
	AvatarURL    string      `json:"avatar_url"`
	Role         UserRole    `json:"role"`
	Active       bool        `json:"active"`
	Faculty      *FacultyRef `json:"faculty"`
	LastLogin    *time.Time  `json:"last_login,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// FacultyID returns the id of the user's faculty snapshot, or "" when unassigned.
func (u *User) FacultyID() string {
	if u == nil || u.Faculty == nil {
		return ""
	}
	return u.Faculty.ID
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	FacultyID string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
