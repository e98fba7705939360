package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"schoolhub/internal/models"
	"schoolhub/internal/security"
	"schoolhub/internal/service"
	"schoolhub/internal/validation"
)

// AuthHandler handles registration, login and OAuth sign-in
type AuthHandler struct {
	authService          *service.AuthService
	jwtSecret            string
	jwtIssuer            string
	tokenTTL             time.Duration
	oauthProviders       map[string]OAuthProvider
	oauthRedirectBaseURL string
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, jwtSecret, jwtIssuer string, tokenTTL time.Duration, oauthProviders map[string]OAuthProvider, oauthRedirectBaseURL string) *AuthHandler {
	return &AuthHandler{
		authService:          authService,
		jwtSecret:            jwtSecret,
		jwtIssuer:            jwtIssuer,
		tokenTTL:             tokenTTL,
		oauthProviders:       oauthProviders,
		oauthRedirectBaseURL: oauthRedirectBaseURL,
	}
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Role            string `json:"role"`
	ParentEmail     string `json:"parentEmail,omitempty"`
	ParentFirstName string `json:"parentFirstName,omitempty"`
	ParentLastName  string `json:"parentLastName,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type authData struct {
	Token string      `json:"token"`
	User  userSummary `json:"user"`
}

func summarize(user *models.User) userSummary {
	return userSummary{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
	}
}

// Register creates a new parent or student account
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.ParentEmail = strings.TrimSpace(strings.ToLower(req.ParentEmail))
	if req.Role != models.RoleParent && req.Role != models.RoleStudent {
		writeError(w, http.StatusBadRequest, "Role must be parent or student")
		return
	}

	user, _, err := h.authService.Register(r.Context(), service.RegisterParams{
		Email:           req.Email,
		Password:        req.Password,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Role:            req.Role,
		ParentEmail:     req.ParentEmail,
		ParentFirstName: req.ParentFirstName,
		ParentLastName:  req.ParentLastName,
	})
	if err != nil {
		var verr validation.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, service.ErrEmailTaken):
			writeError(w, http.StatusConflict, "Email is already registered")
		default:
			writeInternalError(w, "Registration failed", err)
		}
		return
	}

	token, err := security.NewAccessToken(h.jwtSecret, h.jwtIssuer, h.tokenTTL, security.Claims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
	})
	if err != nil {
		writeInternalError(w, "Failed to issue token", err)
		return
	}

	writeData(w, http.StatusCreated, authData{Token: token, User: summarize(user)})
}

// Login authenticates a user and issues an access token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, service.ErrAccountLocked):
			writeError(w, http.StatusForbidden, "Account is locked")
		case errors.Is(err, service.ErrAccountSuspended):
			writeError(w, http.StatusForbidden, "Account is suspended")
		default:
			writeInternalError(w, "Login failed", err)
		}
		return
	}

	token, err := security.NewAccessToken(h.jwtSecret, h.jwtIssuer, h.tokenTTL, security.Claims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
	})
	if err != nil {
		writeInternalError(w, "Failed to issue token", err)
		return
	}

	writeData(w, http.StatusOK, authData{Token: token, User: summarize(user)})
}
