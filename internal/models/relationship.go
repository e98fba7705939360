package models

import "time"

// Relationship statuses. Pending and PendingParentRegistration may still
// transition; Verified and Rejected are terminal.
const (
	StatusPending                   = "pending"
	StatusVerified                  = "verified"
	StatusRejected                  = "rejected"
	StatusPendingParentRegistration = "pending_parent_registration"
)

// Relationship types accepted on creation.
const (
	RelationshipParent   = "parent"
	RelationshipGuardian = "guardian"
	RelationshipOther    = "other"
)

// Token lifetimes. Student-initiated requests expire sooner to push the
// named parent to log in or register.
const (
	DefaultTokenLifetime          = 7 * 24 * time.Hour
	StudentInitiatedTokenLifetime = 48 * time.Hour
)

// ParentStudentRelationship links a parent account (or, before the parent has
// registered, a parent email) to a student account. ParentID is nil exactly
// when the parent-side identity is carried by ParentEmail/ParentFirstName/
// ParentLastName.
type ParentStudentRelationship struct {
	ID                int64
	ParentID          *string
	StudentID         string
	RelationshipType  string
	Description       string
	Status            string
	VerificationToken string
	TokenExpiry       time.Time
	ParentEmail       *string
	ParentFirstName   *string
	ParentLastName    *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (r *ParentStudentRelationship) IsExpired() bool {
	return time.Now().After(r.TokenExpiry)
}

// IsTerminal reports whether the status can no longer change.
func (r *ParentStudentRelationship) IsTerminal() bool {
	return r.Status == StatusVerified || r.Status == StatusRejected
}

func (r *ParentStudentRelationship) IsVerified() bool {
	return r.Status == StatusVerified
}

// ChildSummary is a verified relationship enriched with denormalized student
// display fields, as returned to a parent listing their children.
type ChildSummary struct {
	RelationshipID   int64
	StudentID        string
	RelationshipType string
	FirstName        string
	LastName         string
	Email            string
	VerifiedAt       time.Time
}

// RelationshipWithStudent joins a relationship with the student record for
// the verification landing page.
type RelationshipWithStudent struct {
	Relationship ParentStudentRelationship
	Student      User
}

func ValidRelationshipType(t string) bool {
	switch t {
	case RelationshipParent, RelationshipGuardian, RelationshipOther:
		return true
	default:
		return false
	}
}
