// Package api implements the HTTP handlers for the portfolio CMS: auth,
// resource CRUD, testimonial intake and moderation, and diagnostics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"folio-cms/internal/auth"
	"folio-cms/internal/storage"
)

type Handler struct {
	Store    storage.Repository
	Sessions *auth.SessionManager
}

func NewHandler(store storage.Repository, sessions *auth.SessionManager) *Handler {
	if sessions == nil {
		sessions = auth.NewSessionManager(auth.DefaultTTL)
	}
	return &Handler{Store: store, Sessions: sessions}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// WriteError is an exported helper for returning JSON API errors.
func WriteError(w http.ResponseWriter, status int, err error) {
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// decodeJSONLenient decodes a request body while ignoring unknown fields.
// Public intake endpoints use it so extra fields are dropped, not rejected.
func decodeJSONLenient(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	return json.NewDecoder(r.Body).Decode(dest)
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// Root serves the liveness banner at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Folio CMS API",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Hello serves the liveness banner at /api/hello.
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello from the CMS backend"})
}
