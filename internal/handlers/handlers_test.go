package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"schoolhub/internal/database"
	"schoolhub/internal/models"
	"schoolhub/internal/repository"
	"schoolhub/internal/security"
	"schoolhub/internal/service"
)

const testJWTSecret = "test-secret"

type testServer struct {
	handler http.Handler
	users   *repository.UserRepository
	rels    *repository.RelationshipRepository
	svc     *service.RelationshipService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations(filepath.Join("..", "..", "migrations")); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	users := repository.NewUserRepository(db)
	rels := repository.NewRelationshipRepository(db)

	mailer, err := service.NewEmailService("", "", "", "http://localhost")
	if err != nil {
		t.Fatalf("Failed to create email service: %v", err)
	}

	relService := service.NewRelationshipService(db, users, rels, mailer)
	authService := service.NewAuthService(db, users, relService, mailer)

	middleware := NewMiddleware(testJWTSecret, security.NewRateLimiter(1000, time.Minute))
	authHandler := NewAuthHandler(authService, testJWTSecret, "schoolhub-test", time.Hour, nil, "")
	relHandler := NewRelationshipHandler(relService)

	return &testServer{
		handler: NewRouter(middleware, authHandler, relHandler),
		users:   users,
		rels:    rels,
		svc:     relService,
	}
}

func (s *testServer) createUser(t *testing.T, email, role string) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		PasswordHash: "hash",
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
	}
	if err := s.users.Create(user); err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	return user
}

func (s *testServer) tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := security.NewAccessToken(testJWTSecret, "schoolhub-test", time.Hour, security.Claims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
	})
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type envelopeBody struct {
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelopeBody {
	t.Helper()
	var env envelopeBody
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error || env.Message != "ok" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestRegisterAndLoginEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":     "parent@example.com",
		"password":  "password123",
		"firstName": "Pat",
		"lastName":  "Smith",
		"role":      "parent",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Error {
		t.Fatalf("register returned error envelope: %+v", env)
	}

	var data struct {
		Token string `json:"token"`
		User  struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("Failed to decode data: %v", err)
	}
	if data.Token == "" || data.User.Role != "parent" {
		t.Errorf("unexpected register data: %+v", data)
	}

	// The issued token parses back to the new account
	claims, err := security.ParseToken(testJWTSecret, data.Token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.UserID != data.User.ID {
		t.Errorf("UserID = %q, want %q", claims.UserID, data.User.ID)
	}

	rec = srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "parent@example.com",
		"password": "password123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "parent@example.com",
		"password": "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", rec.Code)
	}
	if env := decodeEnvelope(t, rec); !env.Error {
		t.Error("expected an error envelope for bad credentials")
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":     "p@example.com",
		"password":  "password123",
		"firstName": "Pat",
		"lastName":  "Smith",
		"role":      "admin",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateRequestRequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/parent-verification/request", "", map[string]string{"studentId": "s1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	student := srv.createUser(t, "student@example.com", models.RoleStudent)
	rec = srv.do(t, http.MethodPost, "/api/parent-verification/request", srv.tokenFor(t, student), map[string]string{"studentId": "s1"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("student token: status = %d, want 403", rec.Code)
	}
}

func TestCreateRequestByStudentID(t *testing.T) {
	srv := newTestServer(t)
	parent := srv.createUser(t, "parent@example.com", models.RoleParent)
	student := srv.createUser(t, "student@example.com", models.RoleStudent)

	rec := srv.do(t, http.MethodPost, "/api/parent-verification/request", srv.tokenFor(t, parent), map[string]string{
		"studentId":        student.ID,
		"relationshipType": "parent",
		"description":      "my kid",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	var view struct {
		Status    string `json:"status"`
		StudentID string `json:"studentId"`
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("Failed to decode data: %v", err)
	}
	if view.Status != "pending" || view.StudentID != student.ID {
		t.Errorf("unexpected view: %+v", view)
	}
	if bytes.Contains(env.Data, []byte("verificationToken")) {
		t.Error("response must not expose the verification token")
	}

	// Duplicate maps to 409
	rec = srv.do(t, http.MethodPost, "/api/parent-verification/request", srv.tokenFor(t, parent), map[string]string{
		"studentId":        student.ID,
		"relationshipType": "parent",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rec.Code)
	}
}

func TestCreateRequestByEmails(t *testing.T) {
	srv := newTestServer(t)
	parent := srv.createUser(t, "parent@example.com", models.RoleParent)
	srv.createUser(t, "student@example.com", models.RoleStudent)

	rec := srv.do(t, http.MethodPost, "/api/parent-verification/request", srv.tokenFor(t, parent), map[string]string{
		"parentEmail":  "parent@example.com",
		"studentEmail": "student@example.com",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// The body's parent email must match the authenticated account
	rec = srv.do(t, http.MethodPost, "/api/parent-verification/request", srv.tokenFor(t, parent), map[string]string{
		"parentEmail":  "someone.else@example.com",
		"studentEmail": "student@example.com",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatched email status = %d, want 400", rec.Code)
	}

	// Neither shape supplied
	rec = srv.do(t, http.MethodPost, "/api/parent-verification/request", srv.tokenFor(t, parent), map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d, want 400", rec.Code)
	}
}

func TestVerifyFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	parent := srv.createUser(t, "parent@example.com", models.RoleParent)
	student := srv.createUser(t, "student@example.com", models.RoleStudent)

	rel, err := srv.svc.CreateRelationshipRequest(context.Background(), parent.ID, student.ID, models.RelationshipParent, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Lookup by token returns the joined student record
	rec := srv.do(t, http.MethodGet, "/api/parent-verification/relationship/"+rel.VerificationToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodPut, "/api/parent-verification/verify/"+rel.VerificationToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// A second verify is a conflict
	rec = srv.do(t, http.MethodPut, "/api/parent-verification/verify/"+rel.VerificationToken, "", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("re-verify status = %d, want 409", rec.Code)
	}

	// The verified student shows up under children
	rec = srv.do(t, http.MethodGet, "/api/parent-verification/children", srv.tokenFor(t, parent), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("children status = %d, body = %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var children []struct {
		StudentID string `json:"studentId"`
	}
	if err := json.Unmarshal(env.Data, &children); err != nil {
		t.Fatalf("Failed to decode children: %v", err)
	}
	if len(children) != 1 || children[0].StudentID != student.ID {
		t.Errorf("unexpected children: %+v", children)
	}
}

func TestVerifyUnknownToken(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPut, "/api/parent-verification/verify/no-such-token", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/api/parent-verification/relationship/no-such-token", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("lookup status = %d, want 404", rec.Code)
	}
}

func TestStudentInitiatedEndpoint(t *testing.T) {
	srv := newTestServer(t)
	student := srv.createUser(t, "student@example.com", models.RoleStudent)

	rec := srv.do(t, http.MethodPost, "/api/parent-verification/student-initiated", "", map[string]string{
		"studentId":       student.ID,
		"parentEmail":     "p@example.com",
		"parentFirstName": "Pat",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	var view struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("Failed to decode data: %v", err)
	}
	if view.Status != models.StatusPendingParentRegistration {
		t.Errorf("Status = %q", view.Status)
	}

	// Missing required fields
	rec = srv.do(t, http.MethodPost, "/api/parent-verification/student-initiated", "", map[string]string{
		"studentId": student.ID,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing email status = %d, want 400", rec.Code)
	}
}

func TestRegisterAndVerifyEndpoint(t *testing.T) {
	srv := newTestServer(t)
	student := srv.createUser(t, "student@example.com", models.RoleStudent)

	rel, err := srv.svc.CreateStudentInitiated(context.Background(), student.ID, "p@example.com", "Pat", "Smith", nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	rec := srv.do(t, http.MethodPost, "/api/parent-verification/register-and-verify", "", map[string]string{
		"token":     rel.VerificationToken,
		"email":     "p@example.com",
		"password":  "password123",
		"firstName": "Pat",
		"lastName":  "Smith",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	var data struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
		Relationship struct {
			Status string `json:"status"`
		} `json:"relationship"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("Failed to decode data: %v", err)
	}
	if data.User.Email != "p@example.com" || data.Relationship.Status != models.StatusVerified {
		t.Errorf("unexpected data: %+v", data)
	}
}

func TestPendingAndResendEndpoints(t *testing.T) {
	srv := newTestServer(t)
	parent := srv.createUser(t, "parent@example.com", models.RoleParent)
	student := srv.createUser(t, "student@example.com", models.RoleStudent)

	rel, err := srv.svc.CreateRelationshipRequest(context.Background(), parent.ID, student.ID, models.RelationshipParent, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	rec := srv.do(t, http.MethodGet, "/api/parent-verification/pending", srv.tokenFor(t, parent), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending status = %d, body = %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var pending []struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &pending); err != nil {
		t.Fatalf("Failed to decode pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != rel.ID {
		t.Errorf("unexpected pending: %+v", pending)
	}

	rec = srv.do(t, http.MethodPost, fmt.Sprintf("/api/parent-verification/resend-verification/%d", rel.ID), srv.tokenFor(t, parent), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resend status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Another parent cannot resend someone else's request
	other := srv.createUser(t, "other@example.com", models.RoleParent)
	rec = srv.do(t, http.MethodPost, fmt.Sprintf("/api/parent-verification/resend-verification/%d", rel.ID), srv.tokenFor(t, other), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign resend status = %d, want 404", rec.Code)
	}
}
