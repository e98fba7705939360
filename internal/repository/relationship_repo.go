package repository

import (
	"database/sql"
	"fmt"
	"time"

	"schoolhub/internal/database"
	"schoolhub/internal/models"
	"schoolhub/internal/security"
)

// RelationshipRepository handles database operations for parent-student
// relationship records.
type RelationshipRepository struct {
	db *database.DB
}

// NewRelationshipRepository creates a new relationship repository
func NewRelationshipRepository(db *database.DB) *RelationshipRepository {
	return &RelationshipRepository{db: db}
}

// CreateRelationshipParams carries the attributes for a new relationship row.
// Exactly one of ParentID and ParentEmail should carry the parent-side
// identity; the insert shape is chosen on ParentID presence.
type CreateRelationshipParams struct {
	ParentID          *string
	StudentID         string
	RelationshipType  string
	Description       string
	Status            string
	VerificationToken string    // generated when empty
	TokenExpiry       time.Time // defaults to now + 7 days when zero
	ParentEmail       *string
	ParentFirstName   *string
	ParentLastName    *string
}

const relationshipColumns = `id, parent_id, student_id, relationship_type,
	description, status, verification_token, token_expiry,
	parent_email, parent_first_name, parent_last_name, created_at, updated_at`

// Create inserts a relationship row and returns the persisted record,
// re-read by id.
func (r *RelationshipRepository) Create(params CreateRelationshipParams) (*models.ParentStudentRelationship, error) {
	return r.CreateTx(r.db, params)
}

// CreateTx is Create through a caller-supplied handle, so relationship
// creation can be atomic with user creation.
func (r *RelationshipRepository) CreateTx(q database.DBTX, params CreateRelationshipParams) (*models.ParentStudentRelationship, error) {
	token := params.VerificationToken
	if token == "" {
		var err error
		token, err = security.GenerateVerificationToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate verification token: %w", err)
		}
	}

	expiry := params.TokenExpiry
	if expiry.IsZero() {
		expiry = time.Now().Add(models.DefaultTokenLifetime)
	}

	var (
		id  int64
		err error
	)
	if params.ParentID != nil {
		query := `
			INSERT INTO parent_student_relationships
				(parent_id, student_id, relationship_type, description, status, verification_token, token_expiry)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		id, err = q.ExecReturningID(query,
			*params.ParentID, params.StudentID, params.RelationshipType,
			params.Description, params.Status, token, expiry,
		)
	} else {
		query := `
			INSERT INTO parent_student_relationships
				(student_id, relationship_type, description, status, verification_token, token_expiry,
				 parent_email, parent_first_name, parent_last_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		id, err = q.ExecReturningID(query,
			params.StudentID, params.RelationshipType, params.Description,
			params.Status, token, expiry,
			params.ParentEmail, params.ParentFirstName, params.ParentLastName,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create relationship: %w", err)
	}

	return r.GetByIDTx(q, id)
}

// GetByID retrieves a relationship by id; returns nil if absent
func (r *RelationshipRepository) GetByID(id int64) (*models.ParentStudentRelationship, error) {
	return r.GetByIDTx(r.db, id)
}

// GetByIDTx is GetByID through a caller-supplied handle
func (r *RelationshipRepository) GetByIDTx(q database.DBTX, id int64) (*models.ParentStudentRelationship, error) {
	query := "SELECT " + relationshipColumns + " FROM parent_student_relationships WHERE id = ?"
	return scanRelationship(q.QueryRow(query, id))
}

// GetByToken retrieves a relationship by verification token; returns nil if absent
func (r *RelationshipRepository) GetByToken(token string) (*models.ParentStudentRelationship, error) {
	return r.GetByTokenTx(r.db, token)
}

// GetByTokenTx is GetByToken through a caller-supplied handle
func (r *RelationshipRepository) GetByTokenTx(q database.DBTX, token string) (*models.ParentStudentRelationship, error) {
	query := "SELECT " + relationshipColumns + " FROM parent_student_relationships WHERE verification_token = ?"
	return scanRelationship(q.QueryRow(query, token))
}

// GetByParentID lists relationships bound to a parent account, optionally
// filtered by status (empty status returns all).
func (r *RelationshipRepository) GetByParentID(parentID, status string) ([]models.ParentStudentRelationship, error) {
	query := "SELECT " + relationshipColumns + " FROM parent_student_relationships WHERE parent_id = ?"
	args := []interface{}{parentID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at"

	return r.list(query, args...)
}

// GetByParentEmail lists relationships still keyed by a prospective parent's
// email, filtered by status. Used to reconcile rows created before the parent
// had an account.
func (r *RelationshipRepository) GetByParentEmail(email, status string) ([]models.ParentStudentRelationship, error) {
	query := "SELECT " + relationshipColumns + ` FROM parent_student_relationships
		WHERE parent_email = ? AND status = ? ORDER BY created_at`
	return r.list(query, email, status)
}

// UpdateStatus overwrites the status and returns the refreshed record
func (r *RelationshipRepository) UpdateStatus(id int64, status string) (*models.ParentStudentRelationship, error) {
	return r.UpdateStatusTx(r.db, id, status)
}

// UpdateStatusTx is UpdateStatus through a caller-supplied handle
func (r *RelationshipRepository) UpdateStatusTx(q database.DBTX, id int64, status string) (*models.ParentStudentRelationship, error) {
	query := `
		UPDATE parent_student_relationships
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := q.Exec(query, status, id); err != nil {
		return nil, fmt.Errorf("failed to update relationship status: %w", err)
	}
	return r.GetByIDTx(q, id)
}

// UpdateVerificationToken regenerates the token and resets the expiry to
// now + 7 days. Used by resend flows.
func (r *RelationshipRepository) UpdateVerificationToken(id int64) (*models.ParentStudentRelationship, error) {
	token, err := security.GenerateVerificationToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}
	expiry := time.Now().Add(models.DefaultTokenLifetime)

	query := `
		UPDATE parent_student_relationships
		SET verification_token = ?, token_expiry = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.db.Exec(query, token, expiry, id); err != nil {
		return nil, fmt.Errorf("failed to update verification token: %w", err)
	}
	return r.GetByID(id)
}

// BindParentTx re-keys an email-only relationship to a registered parent
// account: parent_id is set and the prospective-parent identity columns are
// cleared.
func (r *RelationshipRepository) BindParentTx(q database.DBTX, id int64, parentID string) error {
	query := `
		UPDATE parent_student_relationships
		SET parent_id = ?, parent_email = NULL, parent_first_name = NULL, parent_last_name = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := q.Exec(query, parentID, id); err != nil {
		return fmt.Errorf("failed to bind parent to relationship: %w", err)
	}
	return nil
}

// IsTokenValid reports whether a row exists with the token and an expiry in
// the future. Status is deliberately not consulted; callers that care about
// terminal states must check the row themselves.
func (r *RelationshipRepository) IsTokenValid(token string) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM parent_student_relationships
		WHERE verification_token = ? AND token_expiry > ?
	`
	if err := r.db.QueryRow(query, token, time.Now()).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check token validity: %w", err)
	}
	return count > 0, nil
}

// HasActiveRelationship reports whether a non-rejected row already links the
// given parent identity (account id or prospective email) to the student with
// the same relationship type.
func (r *RelationshipRepository) HasActiveRelationship(parentID, parentEmail *string, studentID, relationshipType string) (bool, error) {
	var count int
	var err error
	if parentID != nil {
		query := `
			SELECT COUNT(*) FROM parent_student_relationships
			WHERE parent_id = ? AND student_id = ? AND relationship_type = ? AND status != ?
		`
		err = r.db.QueryRow(query, *parentID, studentID, relationshipType, models.StatusRejected).Scan(&count)
	} else if parentEmail != nil {
		query := `
			SELECT COUNT(*) FROM parent_student_relationships
			WHERE parent_email = ? AND student_id = ? AND relationship_type = ? AND status != ?
		`
		err = r.db.QueryRow(query, *parentEmail, studentID, relationshipType, models.StatusRejected).Scan(&count)
	} else {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existing relationship: %w", err)
	}
	return count > 0, nil
}

func (r *RelationshipRepository) list(query string, args ...interface{}) ([]models.ParentStudentRelationship, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var relationships []models.ParentStudentRelationship
	for rows.Next() {
		rel, err := scanRelationshipRow(rows)
		if err != nil {
			return nil, err
		}
		relationships = append(relationships, *rel)
	}
	return relationships, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRelationship(row *sql.Row) (*models.ParentStudentRelationship, error) {
	rel, err := scanRelationshipRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rel, err
}

func scanRelationshipRow(row rowScanner) (*models.ParentStudentRelationship, error) {
	rel := &models.ParentStudentRelationship{}
	var parentID, parentEmail, parentFirstName, parentLastName sql.NullString
	var description sql.NullString

	err := row.Scan(
		&rel.ID,
		&parentID,
		&rel.StudentID,
		&rel.RelationshipType,
		&description,
		&rel.Status,
		&rel.VerificationToken,
		&rel.TokenExpiry,
		&parentEmail,
		&parentFirstName,
		&parentLastName,
		&rel.CreatedAt,
		&rel.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan relationship: %w", err)
	}

	rel.Description = description.String
	if parentID.Valid {
		rel.ParentID = &parentID.String
	}
	if parentEmail.Valid {
		rel.ParentEmail = &parentEmail.String
	}
	if parentFirstName.Valid {
		rel.ParentFirstName = &parentFirstName.String
	}
	if parentLastName.Valid {
		rel.ParentLastName = &parentLastName.String
	}

	return rel, nil
}
