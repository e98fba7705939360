package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"schoolhub/internal/database"
	"schoolhub/internal/models"
	"schoolhub/internal/repository"
	"schoolhub/internal/security"
	"schoolhub/internal/validation"
)

var (
	ErrStudentNotFound      = errors.New("student not found")
	ErrNotAStudent          = errors.New("user is not a student")
	ErrParentNotFound       = errors.New("parent not found")
	ErrRelationshipNotFound = errors.New("relationship not found")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrAlreadyVerified      = errors.New("relationship already verified")
	ErrAlreadyRejected      = errors.New("relationship already rejected")
	ErrRelationshipExists   = errors.New("relationship already exists")
	ErrEmailTaken           = errors.New("email already taken")
)

// RelationshipService orchestrates the parent-student relationship lifecycle:
// creation (parent- or student-initiated), verification, rejection, resend,
// and the combined register-and-verify flow.
type RelationshipService struct {
	db            *database.DB
	users         *repository.UserRepository
	relationships *repository.RelationshipRepository
	mailer        Mailer
}

// NewRelationshipService creates a new relationship service
func NewRelationshipService(db *database.DB, users *repository.UserRepository, relationships *repository.RelationshipRepository, mailer Mailer) *RelationshipService {
	return &RelationshipService{
		db:            db,
		users:         users,
		relationships: relationships,
		mailer:        mailer,
	}
}

// CreateRelationshipRequest is the parent-initiated flow: an authenticated
// parent names a student, the row is created pending, and the parent is
// emailed verify/reject links. Email failure never rolls the row back.
func (s *RelationshipService) CreateRelationshipRequest(ctx context.Context, parentID, studentID, relationshipType, description string) (*models.ParentStudentRelationship, error) {
	parent, err := s.users.GetByID(parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up parent: %w", err)
	}
	if parent == nil {
		return nil, ErrParentNotFound
	}

	student, err := s.requireStudent(studentID)
	if err != nil {
		return nil, err
	}

	if !models.ValidRelationshipType(relationshipType) {
		return nil, validation.ValidationError{Field: "relationshipType", Message: "must be parent, guardian or other"}
	}

	exists, err := s.relationships.HasActiveRelationship(&parentID, nil, studentID, relationshipType)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrRelationshipExists
	}

	rel, err := s.relationships.Create(repository.CreateRelationshipParams{
		ParentID:         &parentID,
		StudentID:        studentID,
		RelationshipType: relationshipType,
		Description:      description,
		Status:           models.StatusPending,
	})
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendRelationshipRequestEmail(ctx, parent.Email, parent.FullName(), student.FullName(), rel.VerificationToken); err != nil {
		log.Printf("Failed to send relationship request email to %s: %v", parent.Email, err)
	}

	return rel, nil
}

// CreateRelationshipRequestByStudentEmail serves the older request shape
// that names the student by email rather than id. The relationship type
// defaults to parent.
func (s *RelationshipService) CreateRelationshipRequestByStudentEmail(ctx context.Context, parentID, studentEmail string) (*models.ParentStudentRelationship, error) {
	student, err := s.users.GetByEmail(studentEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to look up student: %w", err)
	}
	if student == nil {
		return nil, ErrStudentNotFound
	}
	return s.CreateRelationshipRequest(ctx, parentID, student.ID, models.RelationshipParent, "")
}

// CreateStudentInitiated is the student-initiated flow: a student names a
// parent by email. If the parent already holds an account (matched by the
// supplied id or by email) the row is created pending against that account;
// otherwise it is created pending_parent_registration carrying the
// prospective parent's identity. Tokens expire after 48 hours.
func (s *RelationshipService) CreateStudentInitiated(ctx context.Context, studentID, parentEmail, parentFirstName, parentLastName string, parentID *string) (*models.ParentStudentRelationship, error) {
	student, err := s.requireStudent(studentID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateEmail(parentEmail); err != nil {
		return nil, err
	}

	parent, err := s.resolveParent(parentID, parentEmail)
	if err != nil {
		return nil, err
	}

	expiry := time.Now().Add(models.StudentInitiatedTokenLifetime)

	var rel *models.ParentStudentRelationship
	if parent != nil {
		exists, err := s.relationships.HasActiveRelationship(&parent.ID, nil, studentID, models.RelationshipParent)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrRelationshipExists
		}

		rel, err = s.relationships.Create(repository.CreateRelationshipParams{
			ParentID:         &parent.ID,
			StudentID:        studentID,
			RelationshipType: models.RelationshipParent,
			Status:           models.StatusPending,
			TokenExpiry:      expiry,
		})
		if err != nil {
			return nil, err
		}

		if err := s.mailer.SendStudentInitiatedEmail(ctx, parent.Email, parent.FullName(), student.FullName(), rel.VerificationToken, true); err != nil {
			log.Printf("Failed to send student-initiated email to %s: %v", parent.Email, err)
		}
	} else {
		exists, err := s.relationships.HasActiveRelationship(nil, &parentEmail, studentID, models.RelationshipParent)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrRelationshipExists
		}

		rel, err = s.relationships.Create(repository.CreateRelationshipParams{
			StudentID:        studentID,
			RelationshipType: models.RelationshipParent,
			Status:           models.StatusPendingParentRegistration,
			TokenExpiry:      expiry,
			ParentEmail:      &parentEmail,
			ParentFirstName:  optional(parentFirstName),
			ParentLastName:   optional(parentLastName),
		})
		if err != nil {
			return nil, err
		}

		toName := parentFirstName
		if err := s.mailer.SendStudentInitiatedEmail(ctx, parentEmail, toName, student.FullName(), rel.VerificationToken, false); err != nil {
			log.Printf("Failed to send student-initiated email to %s: %v", parentEmail, err)
		}
	}

	return rel, nil
}

// StudentInitiatedResult echoes identifiers produced by the transactional
// student-initiated flow, including any parent account synthesized on the
// way.
type StudentInitiatedResult struct {
	Relationship  *models.ParentStudentRelationship
	ParentID      string
	ParentCreated bool
}

// CreateStudentInitiatedTx is the transactional variant used during student
// registration. The student is read through the shared connection; when no
// user holds the parent email a parent account with a random temporary
// password is inserted on the same connection, then the relationship row,
// all before the caller commits. The notification email goes out after the
// data-layer work and is not covered by the transaction.
func (s *RelationshipService) CreateStudentInitiatedTx(ctx context.Context, tx *database.Tx, studentID, parentEmail, parentFirstName, parentLastName string) (*StudentInitiatedResult, error) {
	student, err := s.users.GetByIDTx(tx, studentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, ErrStudentNotFound
	}
	if !student.IsStudent() {
		return nil, ErrNotAStudent
	}
	if err := validation.ValidateEmail(parentEmail); err != nil {
		return nil, err
	}

	parent, err := s.users.GetByEmailTx(tx, parentEmail)
	if err != nil {
		return nil, err
	}

	created := false
	if parent == nil {
		tempPassword, err := security.GenerateTemporaryPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to generate temporary password: %w", err)
		}
		hash, err := security.HashPassword(tempPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to hash temporary password: %w", err)
		}

		parent = &models.User{
			Email:        parentEmail,
			PasswordHash: hash,
			FirstName:    parentFirstName,
			LastName:     parentLastName,
			Role:         models.RoleParent,
		}
		if err := s.users.CreateTx(tx, parent); err != nil {
			return nil, err
		}
		created = true
	}

	rel, err := s.relationships.CreateTx(tx, repository.CreateRelationshipParams{
		ParentID:         &parent.ID,
		StudentID:        studentID,
		RelationshipType: models.RelationshipParent,
		Status:           models.StatusPending,
		TokenExpiry:      time.Now().Add(models.StudentInitiatedTokenLifetime),
	})
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendStudentInitiatedEmail(ctx, parentEmail, parent.FirstName, student.FullName(), rel.VerificationToken, !created); err != nil {
		log.Printf("Failed to send student-initiated email to %s: %v", parentEmail, err)
	}

	return &StudentInitiatedResult{
		Relationship:  rel,
		ParentID:      parent.ID,
		ParentCreated: created,
	}, nil
}

// Verify transitions a relationship to verified. The token must be unexpired
// and the row must not already be terminal.
func (s *RelationshipService) Verify(token string) (*models.ParentStudentRelationship, error) {
	rel, err := s.requireTransitionable(token)
	if err != nil {
		return nil, err
	}
	return s.relationships.UpdateStatus(rel.ID, models.StatusVerified)
}

// Reject transitions a relationship to rejected under the same token rules
// as Verify.
func (s *RelationshipService) Reject(token string) (*models.ParentStudentRelationship, error) {
	rel, err := s.requireTransitionable(token)
	if err != nil {
		return nil, err
	}
	return s.relationships.UpdateStatus(rel.ID, models.StatusRejected)
}

func (s *RelationshipService) requireTransitionable(token string) (*models.ParentStudentRelationship, error) {
	valid, err := s.relationships.IsTokenValid(token)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, ErrInvalidToken
	}

	rel, err := s.relationships.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, ErrInvalidToken
	}

	// Tokens stay readable after a transition; block re-transitioning a
	// terminal row here.
	switch rel.Status {
	case models.StatusVerified:
		return nil, ErrAlreadyVerified
	case models.StatusRejected:
		return nil, ErrAlreadyRejected
	}

	return rel, nil
}

// GetRelationshipByToken joins a relationship with its student record for
// the verification landing page. Returns nil when either side is missing.
func (s *RelationshipService) GetRelationshipByToken(token string) (*models.RelationshipWithStudent, error) {
	rel, err := s.relationships.GetByToken(token)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, nil
	}

	student, err := s.users.GetByID(rel.StudentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, nil
	}

	return &models.RelationshipWithStudent{Relationship: *rel, Student: *student}, nil
}

// GetChildren lists a parent's verified relationships enriched with student
// display fields. Relationships whose student record has disappeared are
// silently dropped.
func (s *RelationshipService) GetChildren(parentID string) ([]models.ChildSummary, error) {
	rels, err := s.relationships.GetByParentID(parentID, models.StatusVerified)
	if err != nil {
		return nil, err
	}

	children := make([]models.ChildSummary, 0, len(rels))
	for _, rel := range rels {
		student, err := s.users.GetByID(rel.StudentID)
		if err != nil {
			return nil, err
		}
		if student == nil {
			continue
		}
		children = append(children, models.ChildSummary{
			RelationshipID:   rel.ID,
			StudentID:        student.ID,
			RelationshipType: rel.RelationshipType,
			FirstName:        student.FirstName,
			LastName:         student.LastName,
			Email:            student.Email,
			VerifiedAt:       rel.UpdatedAt,
		})
	}

	return children, nil
}

// HasVerifiedRelationship reports whether the student is among the parent's
// verified children.
func (s *RelationshipService) HasVerifiedRelationship(parentID, studentID string) (bool, error) {
	children, err := s.GetChildren(parentID)
	if err != nil {
		return false, err
	}
	for _, child := range children {
		if child.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

// ResendVerificationEmail regenerates the token (extending its expiry by
// 7 days) and resends the notification. Refused once the relationship is
// verified. The caller must own the relationship, by id or by the email the
// row still carries; a foreign relationship reads as not found.
func (s *RelationshipService) ResendVerificationEmail(ctx context.Context, callerID string, relationshipID int64) (*models.ParentStudentRelationship, error) {
	caller, err := s.users.GetByID(callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up parent: %w", err)
	}
	if caller == nil {
		return nil, ErrParentNotFound
	}

	rel, err := s.relationships.GetByID(relationshipID)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, ErrRelationshipNotFound
	}
	owned := (rel.ParentID != nil && *rel.ParentID == callerID) ||
		(rel.ParentEmail != nil && *rel.ParentEmail == caller.Email)
	if !owned {
		return nil, ErrRelationshipNotFound
	}
	if rel.IsVerified() {
		return nil, ErrAlreadyVerified
	}

	rel, err = s.relationships.UpdateVerificationToken(relationshipID)
	if err != nil {
		return nil, err
	}

	student, err := s.users.GetByID(rel.StudentID)
	if err != nil {
		return nil, err
	}
	studentName := ""
	if student != nil {
		studentName = student.FullName()
	}

	if rel.ParentID != nil {
		parent, err := s.users.GetByID(*rel.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, ErrParentNotFound
		}
		if err := s.mailer.SendRelationshipRequestEmail(ctx, parent.Email, parent.FullName(), studentName, rel.VerificationToken); err != nil {
			return nil, err
		}
	} else if rel.ParentEmail != nil {
		toName := ""
		if rel.ParentFirstName != nil {
			toName = *rel.ParentFirstName
		}
		if err := s.mailer.SendStudentInitiatedEmail(ctx, *rel.ParentEmail, toName, studentName, rel.VerificationToken, false); err != nil {
			return nil, err
		}
	}

	return rel, nil
}

// GetPendingRelationships returns the duplicate-free union of rows already
// bound to the parent's id with status pending, and rows still keyed by the
// parent's email with status pending_parent_registration. The second set is
// how a newly registered parent discovers relationships created before their
// account existed.
func (s *RelationshipService) GetPendingRelationships(parentID string) ([]models.ParentStudentRelationship, error) {
	parent, err := s.users.GetByID(parentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, ErrParentNotFound
	}

	byID, err := s.relationships.GetByParentID(parentID, models.StatusPending)
	if err != nil {
		return nil, err
	}
	byEmail, err := s.relationships.GetByParentEmail(parent.Email, models.StatusPendingParentRegistration)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(byID))
	pending := make([]models.ParentStudentRelationship, 0, len(byID)+len(byEmail))
	for _, rel := range byID {
		seen[rel.ID] = true
		pending = append(pending, rel)
	}
	for _, rel := range byEmail {
		if !seen[rel.ID] {
			pending = append(pending, rel)
		}
	}

	return pending, nil
}

// RegisterAndVerify combines parent account creation with relationship
// verification: the token holder registers, the row is re-keyed to the new
// account and marked verified in one transaction, then a welcome email goes
// out best-effort.
func (s *RelationshipService) RegisterAndVerify(ctx context.Context, token, email, password, firstName, lastName string) (*models.User, *models.ParentStudentRelationship, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateName("firstName", firstName); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateName("lastName", lastName); err != nil {
		return nil, nil, err
	}

	rel, err := s.requireTransitionable(token)
	if err != nil {
		return nil, nil, err
	}

	existing, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, ErrEmailTaken
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// Registering through the token proves ownership of the notified
	// address.
	emailVerified := rel.ParentEmail != nil && *rel.ParentEmail == email

	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	user := &models.User{
		Email:         email,
		PasswordHash:  hash,
		FirstName:     firstName,
		LastName:      lastName,
		Role:          models.RoleParent,
		EmailVerified: emailVerified,
	}
	if err := s.users.CreateTx(tx, user); err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	if err := s.relationships.BindParentTx(tx, rel.ID, user.ID); err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	verified, err := s.relationships.UpdateStatusTx(tx, rel.ID, models.StatusVerified)
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit registration: %w", err)
	}

	if err := s.mailer.SendWelcomeEmail(ctx, user.Email, user.FullName()); err != nil {
		log.Printf("Failed to send welcome email to %s: %v", user.Email, err)
	}

	return user, verified, nil
}

func (s *RelationshipService) requireStudent(studentID string) (*models.User, error) {
	student, err := s.users.GetByID(studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up student: %w", err)
	}
	if student == nil {
		return nil, ErrStudentNotFound
	}
	if !student.IsStudent() {
		return nil, ErrNotAStudent
	}
	return student, nil
}

// resolveParent returns the parent account matching the supplied id or
// email, or nil when the parent has no account yet.
func (s *RelationshipService) resolveParent(parentID *string, parentEmail string) (*models.User, error) {
	if parentID != nil {
		parent, err := s.users.GetByID(*parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, ErrParentNotFound
		}
		return parent, nil
	}

	parent, err := s.users.GetByEmail(parentEmail)
	if err != nil {
		return nil, err
	}
	return parent, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
