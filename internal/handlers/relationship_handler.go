package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"schoolhub/internal/models"
	"schoolhub/internal/service"
	"schoolhub/internal/validation"
)

// RelationshipHandler exposes the parent-student verification workflow over
// HTTP. It does shape dispatch and status-code mapping only; the rules live
// in the service.
type RelationshipHandler struct {
	relationships *service.RelationshipService
}

// NewRelationshipHandler creates a new relationship handler
func NewRelationshipHandler(relationships *service.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{relationships: relationships}
}

type relationshipView struct {
	ID               int64     `json:"id"`
	ParentID         *string   `json:"parentId,omitempty"`
	StudentID        string    `json:"studentId"`
	RelationshipType string    `json:"relationshipType"`
	Description      string    `json:"description,omitempty"`
	Status           string    `json:"status"`
	TokenExpiry      time.Time `json:"tokenExpiry"`
	ParentEmail      *string   `json:"parentEmail,omitempty"`
	ParentFirstName  *string   `json:"parentFirstName,omitempty"`
	ParentLastName   *string   `json:"parentLastName,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type childView struct {
	RelationshipID   int64     `json:"relationshipId"`
	StudentID        string    `json:"studentId"`
	RelationshipType string    `json:"relationshipType"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Email            string    `json:"email"`
	VerifiedAt       time.Time `json:"verifiedAt"`
}

type relationshipWithStudentView struct {
	Relationship relationshipView `json:"relationship"`
	Student      userSummary      `json:"student"`
}

func viewRelationship(rel *models.ParentStudentRelationship) relationshipView {
	return relationshipView{
		ID:               rel.ID,
		ParentID:         rel.ParentID,
		StudentID:        rel.StudentID,
		RelationshipType: rel.RelationshipType,
		Description:      rel.Description,
		Status:           rel.Status,
		TokenExpiry:      rel.TokenExpiry,
		ParentEmail:      rel.ParentEmail,
		ParentFirstName:  rel.ParentFirstName,
		ParentLastName:   rel.ParentLastName,
		CreatedAt:        rel.CreatedAt,
		UpdatedAt:        rel.UpdatedAt,
	}
}

// createRequestBody covers both accepted shapes of POST /request: the current
// one naming the student by id, and the older one naming both sides by email.
type createRequestBody struct {
	StudentID        string `json:"studentId,omitempty"`
	RelationshipType string `json:"relationshipType,omitempty"`
	Description      string `json:"description,omitempty"`
	ParentEmail      string `json:"parentEmail,omitempty"`
	StudentEmail     string `json:"studentEmail,omitempty"`
}

// CreateRequest decodes the body once and dispatches on its shape
func (h *RelationshipHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req createRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch {
	case req.StudentID != "":
		h.createRequestByStudentID(w, r, claims.UserID, req)
	case req.ParentEmail != "" && req.StudentEmail != "":
		h.createRequestByEmails(w, r, claims.UserID, claims.Email, req)
	default:
		writeError(w, http.StatusBadRequest, "Provide either studentId and relationshipType, or parentEmail and studentEmail")
	}
}

func (h *RelationshipHandler) createRequestByStudentID(w http.ResponseWriter, r *http.Request, parentID string, req createRequestBody) {
	if req.RelationshipType == "" {
		writeError(w, http.StatusBadRequest, "relationshipType is required")
		return
	}

	rel, err := h.relationships.CreateRelationshipRequest(r.Context(), parentID, req.StudentID, req.RelationshipType, req.Description)
	if err != nil {
		h.respondServiceError(w, "Failed to create relationship request", err)
		return
	}

	writeData(w, http.StatusCreated, viewRelationship(rel))
}

func (h *RelationshipHandler) createRequestByEmails(w http.ResponseWriter, r *http.Request, parentID, parentEmail string, req createRequestBody) {
	if !strings.EqualFold(req.ParentEmail, parentEmail) {
		writeError(w, http.StatusBadRequest, "parentEmail does not match the authenticated account")
		return
	}

	rel, err := h.relationships.CreateRelationshipRequestByStudentEmail(r.Context(), parentID, strings.ToLower(req.StudentEmail))
	if err != nil {
		h.respondServiceError(w, "Failed to create relationship request", err)
		return
	}

	writeData(w, http.StatusCreated, viewRelationship(rel))
}

type studentInitiatedRequest struct {
	StudentID       string `json:"studentId"`
	ParentEmail     string `json:"parentEmail"`
	ParentFirstName string `json:"parentFirstName,omitempty"`
	ParentLastName  string `json:"parentLastName,omitempty"`
}

// CreateStudentInitiated handles a student naming their parent by email
func (h *RelationshipHandler) CreateStudentInitiated(w http.ResponseWriter, r *http.Request) {
	var req studentInitiatedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.ParentEmail = strings.TrimSpace(strings.ToLower(req.ParentEmail))
	if req.StudentID == "" || req.ParentEmail == "" {
		writeError(w, http.StatusBadRequest, "studentId and parentEmail are required")
		return
	}

	rel, err := h.relationships.CreateStudentInitiated(r.Context(), req.StudentID, req.ParentEmail, req.ParentFirstName, req.ParentLastName, nil)
	if err != nil {
		h.respondServiceError(w, "Failed to create student-initiated relationship", err)
		return
	}

	writeData(w, http.StatusCreated, viewRelationship(rel))
}

type registerAndVerifyRequest struct {
	Token       string `json:"token"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// RegisterAndVerify creates a parent account and verifies the relationship
// that invited them, in one step.
func (h *RelationshipHandler) RegisterAndVerify(w http.ResponseWriter, r *http.Request) {
	var req registerAndVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	user, rel, err := h.relationships.RegisterAndVerify(r.Context(), req.Token, req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		h.respondServiceError(w, "Failed to register and verify", err)
		return
	}

	writeData(w, http.StatusCreated, map[string]interface{}{
		"user":         summarize(user),
		"relationship": viewRelationship(rel),
	})
}

// GetByToken returns the relationship and student behind a verification link
func (h *RelationshipHandler) GetByToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	joined, err := h.relationships.GetRelationshipByToken(token)
	if err != nil {
		writeInternalError(w, "Failed to load relationship", err)
		return
	}
	if joined == nil {
		writeError(w, http.StatusNotFound, "Relationship not found")
		return
	}

	writeData(w, http.StatusOK, relationshipWithStudentView{
		Relationship: viewRelationship(&joined.Relationship),
		Student:      summarize(&joined.Student),
	})
}

// Verify transitions a pending relationship to verified
func (h *RelationshipHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.relationships.Verify)
}

// Reject transitions a pending relationship to rejected
func (h *RelationshipHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.relationships.Reject)
}

func (h *RelationshipHandler) transition(w http.ResponseWriter, r *http.Request, apply func(string) (*models.ParentStudentRelationship, error)) {
	token := chi.URLParam(r, "token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	rel, err := apply(token)
	if err != nil {
		h.respondServiceError(w, "Failed to update relationship", err)
		return
	}

	writeData(w, http.StatusOK, viewRelationship(rel))
}

// GetChildren lists the authenticated parent's verified children
func (h *RelationshipHandler) GetChildren(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	children, err := h.relationships.GetChildren(claims.UserID)
	if err != nil {
		h.respondServiceError(w, "Failed to load children", err)
		return
	}

	views := make([]childView, 0, len(children))
	for _, child := range children {
		views = append(views, childView{
			RelationshipID:   child.RelationshipID,
			StudentID:        child.StudentID,
			RelationshipType: child.RelationshipType,
			FirstName:        child.FirstName,
			LastName:         child.LastName,
			Email:            child.Email,
			VerifiedAt:       child.VerifiedAt,
		})
	}

	writeData(w, http.StatusOK, views)
}

// GetPending lists the authenticated parent's pending relationships,
// including rows still keyed by their email from before they registered.
func (h *RelationshipHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	pending, err := h.relationships.GetPendingRelationships(claims.UserID)
	if err != nil {
		h.respondServiceError(w, "Failed to load pending relationships", err)
		return
	}

	views := make([]relationshipView, 0, len(pending))
	for i := range pending {
		views = append(views, viewRelationship(&pending[i]))
	}

	writeData(w, http.StatusOK, views)
}

// ResendVerification regenerates the token and resends the email
func (h *RelationshipHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	relationshipID, err := strconv.ParseInt(chi.URLParam(r, "relationshipId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid relationship id")
		return
	}

	rel, err := h.relationships.ResendVerificationEmail(r.Context(), claims.UserID, relationshipID)
	if err != nil {
		h.respondServiceError(w, "Failed to resend verification email", err)
		return
	}

	writeData(w, http.StatusOK, viewRelationship(rel))
}

// respondServiceError maps domain errors to the status taxonomy. Anything
// unrecognized is an internal error and stays generic.
func (h *RelationshipHandler) respondServiceError(w http.ResponseWriter, logMessage string, err error) {
	var verr validation.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, service.ErrNotAStudent),
		errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrStudentNotFound),
		errors.Is(err, service.ErrParentNotFound),
		errors.Is(err, service.ErrRelationshipNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAlreadyVerified),
		errors.Is(err, service.ErrAlreadyRejected),
		errors.Is(err, service.ErrRelationshipExists),
		errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeInternalError(w, logMessage, err)
	}
}
