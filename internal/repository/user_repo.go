package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"schoolhub/internal/database"
	"schoolhub/internal/models"
)

// UserRepository handles database operations for user accounts
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, role,
	email_verified, account_locked, account_suspended, failed_login_attempts,
	COALESCE(oauth_provider, ''), COALESCE(oauth_subject, ''),
	created_at, updated_at`

// Create inserts a new user. A missing ID is filled with a fresh UUID.
func (r *UserRepository) Create(user *models.User) error {
	return r.CreateTx(r.db, user)
}

// CreateTx inserts a new user through the supplied handle so account creation
// can share a transaction with other writes.
func (r *UserRepository) CreateTx(q database.DBTX, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role,
			email_verified, account_locked, account_suspended, failed_login_attempts,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.Exec(query,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.Role, user.EmailVerified, user.AccountLocked, user.AccountSuspended,
		user.FailedLoginAttempts, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID; returns nil if absent
func (r *UserRepository) GetByID(id string) (*models.User, error) {
	return r.GetByIDTx(r.db, id)
}

// GetByIDTx is GetByID through a caller-supplied handle
func (r *UserRepository) GetByIDTx(q database.DBTX, id string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = ?"
	return scanUser(q.QueryRow(query, id))
}

// GetByEmail retrieves a user by email address; returns nil if absent
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	return r.GetByEmailTx(r.db, email)
}

// GetByEmailTx is GetByEmail through a caller-supplied handle
func (r *UserRepository) GetByEmailTx(q database.DBTX, email string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE email = ?"
	return scanUser(q.QueryRow(query, email))
}

// GetByOAuth retrieves a user by OAuth provider and subject; returns nil if
// absent
func (r *UserRepository) GetByOAuth(provider, subject string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE oauth_provider = ? AND oauth_subject = ?"
	return scanUser(r.db.QueryRow(query, provider, subject))
}

// LinkOAuthProvider binds an existing account to an OAuth identity. Fails if
// another provider is already linked.
func (r *UserRepository) LinkOAuthProvider(id, provider, subject string) error {
	query := `
		UPDATE users
		SET oauth_provider = ?, oauth_subject = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		AND (oauth_provider IS NULL OR oauth_provider = '')
	`
	result, err := r.db.Exec(query, provider, subject, id)
	if err != nil {
		return fmt.Errorf("failed to link oauth provider: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read link result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("oauth provider already linked")
	}

	return nil
}

// IncrementFailedLogins bumps the failed-attempt counter and returns the new
// value.
func (r *UserRepository) IncrementFailedLogins(id string) (int, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.db.Exec(query, id); err != nil {
		return 0, fmt.Errorf("failed to record login attempt: %w", err)
	}

	var attempts int
	if err := r.db.QueryRow("SELECT failed_login_attempts FROM users WHERE id = ?", id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("failed to read login attempts: %w", err)
	}
	return attempts, nil
}

// ResetFailedLogins clears the failed-attempt counter after a successful login
func (r *UserRepository) ResetFailedLogins(id string) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

// SetLocked locks or unlocks an account
func (r *UserRepository) SetLocked(id string, locked bool) error {
	query := `
		UPDATE users
		SET account_locked = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.db.Exec(query, locked, id); err != nil {
		return fmt.Errorf("failed to update lock state: %w", err)
	}
	return nil
}

// UpdateProfile changes a user's display name
func (r *UserRepository) UpdateProfile(id, firstName, lastName string) error {
	query := `
		UPDATE users
		SET first_name = ?, last_name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.db.Exec(query, firstName, lastName, id); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.EmailVerified,
		&user.AccountLocked,
		&user.AccountSuspended,
		&user.FailedLoginAttempts,
		&user.OAuthProvider,
		&user.OAuthSubject,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
