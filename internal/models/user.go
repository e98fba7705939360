package models

import "time"

// Roles a user account can hold.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleParent  = "parent"
)

type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Role                string
	EmailVerified       bool
	AccountLocked       bool
	AccountSuspended    bool
	FailedLoginAttempts int
	OAuthProvider       string
	OAuthSubject        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) IsStudent() bool {
	return u.Role == RoleStudent
}

func (u *User) IsParent() bool {
	return u.Role == RoleParent
}

// CanLogin reports whether the account is in a state that allows
// authentication at all. Credential checks happen elsewhere.
func (u *User) CanLogin() bool {
	return !u.AccountLocked && !u.AccountSuspended
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleParent:
		return true
	default:
		return false
	}
}
