package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"folio-cms/internal/storage"
)

// Users serves GET /api/users for admins. Password hashes never leave the
// handler.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list users: %w", err))
		return
	}
	sanitized := make([]userResponse, 0, len(users))
	for _, user := range users {
		sanitized = append(sanitized, sanitizeUser(user))
	}
	writeJSON(w, http.StatusOK, sanitized)
}

type verifyAdminRequest struct {
	IsAdmin    *bool `json:"is_admin"`
	IsVerified *bool `json:"is_verified"`
}

// UserByID serves PATCH /api/users/{id}/verify-admin. An empty body grants
// both flags; explicit booleans override individually.
func (h *Handler) UserByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "verify-admin" {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, "PATCH")
		return
	}
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	var req verifyAdminRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	truth := true
	if req.IsAdmin == nil && req.IsVerified == nil {
		req.IsAdmin = &truth
		req.IsVerified = &truth
	}

	user, err := h.Store.SetUserFlags(r.Context(), parts[0], req.IsAdmin, req.IsVerified)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, errNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Errorf("update user flags: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, sanitizeUser(user))
}
