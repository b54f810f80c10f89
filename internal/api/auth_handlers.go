package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"folio-cms/internal/models"
	"folio-cms/internal/observability/metrics"
	"folio-cms/internal/storage"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsAdmin    bool      `json:"is_admin"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

func sanitizeUser(user models.User) userResponse {
	return userResponse{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		IsAdmin:    user.IsAdmin,
		IsVerified: user.IsVerified,
		CreatedAt:  user.CreatedAt,
	}
}

// Signup registers a new account and returns the sanitized user.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, errors.New("email and password are required"))
		return
	}

	user, err := h.Store.CreateUser(r.Context(), storage.CreateUserParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, storage.ErrEmailInUse) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Errorf("create user: %w", err))
		return
	}
	metrics.ObserveAuthEvent("signup")
	writeJSON(w, http.StatusOK, sanitizeUser(user))
}

// Login authenticates the email/password pair and mints a session token. The
// same error is returned for an unknown email and a wrong password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.Store.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) {
			metrics.ObserveAuthEvent("login_failure")
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Errorf("authenticate: %w", err))
		return
	}

	session, err := h.Sessions.Create(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("create session: %w", err))
		return
	}
	metrics.ObserveAuthEvent("login_success")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": session.Token,
		"user":  sanitizeUser(user),
	})
}

// Me returns the sanitized caller for a valid bearer token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sanitizeUser(caller.User))
}

// Logout revokes the caller's session token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	caller, ok := h.requireCaller(w, r)
	if !ok {
		return
	}
	if err := h.Sessions.Revoke(caller.Session); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("revoke session: %w", err))
		return
	}
	metrics.ObserveAuthEvent("logout")
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}
