package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"schoolhub/internal/database"
	"schoolhub/internal/models"
	"schoolhub/internal/repository"
	"schoolhub/internal/security"
	"schoolhub/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is locked")
	ErrAccountSuspended   = errors.New("account is suspended")
)

// maxFailedLogins is the attempt count at which an account locks.
const maxFailedLogins = 5

// AuthService handles registration and login. Student registrations that
// name a parent email run the transactional student-initiated relationship
// flow inside the same commit.
type AuthService struct {
	db            *database.DB
	users         *repository.UserRepository
	relationships *RelationshipService
	mailer        Mailer
}

// NewAuthService creates a new auth service
func NewAuthService(db *database.DB, users *repository.UserRepository, relationships *RelationshipService, mailer Mailer) *AuthService {
	return &AuthService{
		db:            db,
		users:         users,
		relationships: relationships,
		mailer:        mailer,
	}
}

// RegisterParams carries a registration request. ParentEmail and the
// accompanying name fields are honoured only for student registrations.
type RegisterParams struct {
	Email           string
	Password        string
	FirstName       string
	LastName        string
	Role            string
	ParentEmail     string
	ParentFirstName string
	ParentLastName  string
}

// Register creates a new account. A student naming a parent email gets the
// parent lookup/synthesis and the relationship row in the same transaction
// as the account itself.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (*models.User, *StudentInitiatedResult, error) {
	if err := validation.ValidateEmail(params.Email); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidatePassword(params.Password); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateName("firstName", params.FirstName); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateName("lastName", params.LastName); err != nil {
		return nil, nil, err
	}
	if !models.ValidRole(params.Role) {
		return nil, nil, validation.ValidationError{Field: "role", Message: "must be admin, teacher, student or parent"}
	}

	existing, err := s.users.GetByEmail(params.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, nil, ErrEmailTaken
	}

	hash, err := security.HashPassword(params.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        params.Email,
		PasswordHash: hash,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Role:         params.Role,
	}

	if params.Role == models.RoleStudent && params.ParentEmail != "" {
		tx, err := s.db.Begin()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := s.users.CreateTx(tx, user); err != nil {
			tx.Rollback()
			return nil, nil, err
		}

		result, err := s.relationships.CreateStudentInitiatedTx(ctx, tx, user.ID, params.ParentEmail, params.ParentFirstName, params.ParentLastName)
		if err != nil {
			tx.Rollback()
			return nil, nil, err
		}

		if err := tx.Commit(); err != nil {
			return nil, nil, fmt.Errorf("failed to commit registration: %w", err)
		}

		return user, result, nil
	}

	if err := s.users.Create(user); err != nil {
		return nil, nil, err
	}

	if user.Role == models.RoleParent {
		if err := s.mailer.SendWelcomeEmail(ctx, user.Email, user.FullName()); err != nil {
			log.Printf("Failed to send welcome email to %s: %v", user.Email, err)
		}
	}

	return user, nil, nil
}

// Login authenticates a user by email and password. Failed attempts are
// counted and the account locks at the threshold; the caller only ever sees
// a generic credentials error so account existence is not leaked.
func (s *AuthService) Login(email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if user.AccountLocked {
		return nil, ErrAccountLocked
	}
	if user.AccountSuspended {
		return nil, ErrAccountSuspended
	}

	if !security.CheckPassword(password, user.PasswordHash) {
		attempts, err := s.users.IncrementFailedLogins(user.ID)
		if err != nil {
			log.Printf("Failed to record login attempt for %s: %v", user.ID, err)
		} else if attempts >= maxFailedLogins {
			if err := s.users.SetLocked(user.ID, true); err != nil {
				log.Printf("Failed to lock account %s: %v", user.ID, err)
			}
		}
		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 {
		if err := s.users.ResetFailedLogins(user.ID); err != nil {
			log.Printf("Failed to reset login attempts for %s: %v", user.ID, err)
		}
	}

	return user, nil
}

// OAuthLogin signs a user in through an external identity provider,
// creating a parent account on first sight or linking the identity to an
// existing account matched by email.
func (s *AuthService) OAuthLogin(ctx context.Context, provider, subject, email, firstName, lastName string) (*models.User, error) {
	if subject == "" {
		return nil, errors.New("oauth subject is required")
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.users.GetByOAuth(provider, subject)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if !user.CanLogin() {
			return nil, ErrAccountLocked
		}
		return user, nil
	}

	// Link to an existing account matched by email
	user, err = s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if !user.CanLogin() {
			return nil, ErrAccountLocked
		}
		if err := s.users.LinkOAuthProvider(user.ID, provider, subject); err != nil {
			return nil, err
		}
		user.OAuthProvider = provider
		user.OAuthSubject = subject
		return user, nil
	}

	// First sight: provision a parent account with an unusable password
	placeholder, err := security.GenerateTemporaryPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate placeholder password: %w", err)
	}
	hash, err := security.HashPassword(placeholder)
	if err != nil {
		return nil, fmt.Errorf("failed to hash placeholder password: %w", err)
	}

	user = &models.User{
		Email:         email,
		PasswordHash:  hash,
		FirstName:     firstName,
		LastName:      lastName,
		Role:          models.RoleParent,
		EmailVerified: true,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	if err := s.users.LinkOAuthProvider(user.ID, provider, subject); err != nil {
		return nil, err
	}
	user.OAuthProvider = provider
	user.OAuthSubject = subject

	if err := s.mailer.SendWelcomeEmail(ctx, user.Email, user.FullName()); err != nil {
		log.Printf("Failed to send welcome email to %s: %v", user.Email, err)
	}

	return user, nil
}

// GetUser fetches a user by id
func (s *AuthService) GetUser(id string) (*models.User, error) {
	return s.users.GetByID(id)
}
