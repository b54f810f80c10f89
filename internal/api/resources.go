package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"folio-cms/internal/models"
	"folio-cms/internal/observability/metrics"
	"folio-cms/internal/schema"
)

var (
	errNotFound           = errors.New("not found")
	errNotFoundOrNoChange = errors.New("not found or not modified")
)

// docFromPayload converts a validated struct into the map shape the document
// store persists, applying the struct's JSON tags.
func docFromPayload(payload any) (models.Document, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// resourceID extracts the trailing path segment after prefix, rejecting
// nested paths.
func resourceID(path, prefix string) (string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request, collection string, filter map[string]any) {
	docs, err := h.Store.ListDocuments(r.Context(), collection, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list %s: %w", collection, err))
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request, collection string, payload any) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	if err := decodeJSON(r, payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := schema.Validate(payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	doc, err := docFromPayload(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	created, err := h.Store.CreateDocument(r.Context(), collection, doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("create %s: %w", collection, err))
		return
	}
	metrics.ObserveDocument(collection, "create")
	writeJSON(w, http.StatusOK, created)
}

func (h *Handler) patchDocument(w http.ResponseWriter, r *http.Request, collection, id string) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	var fields map[string]any
	if err := decodeJSON(r, &fields); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := schema.ValidatePatch(collection, fields); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	modified, err := h.Store.UpdateDocument(r.Context(), collection, id, fields)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("update %s: %w", collection, err))
		return
	}
	if !modified {
		writeError(w, http.StatusNotFound, errNotFoundOrNoChange)
		return
	}
	metrics.ObserveDocument(collection, "update")
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request, collection, id string) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	deleted, err := h.Store.DeleteDocument(r.Context(), collection, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("delete %s: %w", collection, err))
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	metrics.ObserveDocument(collection, "delete")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Categories serves GET and POST /api/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listDocuments(w, r, models.CollectionCategories, nil)
	case http.MethodPost:
		h.createCategory(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	var payload models.Category
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := schema.Validate(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	existing, err := h.Store.ListDocuments(r.Context(), models.CollectionCategories, map[string]any{"key": payload.Key})
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("check category key: %w", err))
		return
	}
	if len(existing) > 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("category key %q already exists", payload.Key))
		return
	}
	doc, err := docFromPayload(&payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	created, err := h.Store.CreateDocument(r.Context(), models.CollectionCategories, doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("create category: %w", err))
		return
	}
	metrics.ObserveDocument(models.CollectionCategories, "create")
	writeJSON(w, http.StatusOK, created)
}

// CategoryByID serves PATCH and DELETE /api/categories/{id}.
func (h *Handler) CategoryByID(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(r.URL.Path, "/api/categories")
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		h.patchDocument(w, r, models.CollectionCategories, id)
	case http.MethodDelete:
		h.deleteDocument(w, r, models.CollectionCategories, id)
	default:
		methodNotAllowed(w, "PATCH, DELETE")
	}
}

// Clients serves GET and POST /api/clients. Listing supports an equality
// filter on category_key.
func (h *Handler) Clients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var filter map[string]any
		if key := strings.TrimSpace(r.URL.Query().Get("category_key")); key != "" {
			filter = map[string]any{"category_key": key}
		}
		h.listDocuments(w, r, models.CollectionClients, filter)
	case http.MethodPost:
		var payload models.Client
		h.createDocument(w, r, models.CollectionClients, &payload)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

// ClientByID serves PATCH and DELETE /api/clients/{id}.
func (h *Handler) ClientByID(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(r.URL.Path, "/api/clients")
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		h.patchDocument(w, r, models.CollectionClients, id)
	case http.MethodDelete:
		h.deleteDocument(w, r, models.CollectionClients, id)
	default:
		methodNotAllowed(w, "PATCH, DELETE")
	}
}

// Projects serves GET and POST /api/projects. Listing supports an equality
// filter on client_name.
func (h *Handler) Projects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var filter map[string]any
		if name := strings.TrimSpace(r.URL.Query().Get("client_name")); name != "" {
			filter = map[string]any{"client_name": name}
		}
		h.listDocuments(w, r, models.CollectionProjects, filter)
	case http.MethodPost:
		var payload models.Project
		h.createDocument(w, r, models.CollectionProjects, &payload)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

// ProjectByID serves PATCH and DELETE /api/projects/{id}.
func (h *Handler) ProjectByID(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(r.URL.Path, "/api/projects")
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		h.patchDocument(w, r, models.CollectionProjects, id)
	case http.MethodDelete:
		h.deleteDocument(w, r, models.CollectionProjects, id)
	default:
		methodNotAllowed(w, "PATCH, DELETE")
	}
}

// Settings serves GET and POST /api/settings. By convention one record exists
// per key; deletion is not exposed.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var filter map[string]any
		if key := strings.TrimSpace(r.URL.Query().Get("key")); key != "" {
			filter = map[string]any{"key": key}
		}
		h.listDocuments(w, r, models.CollectionSettings, filter)
	case http.MethodPost:
		var payload models.Setting
		h.createDocument(w, r, models.CollectionSettings, &payload)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

// SettingByID serves PATCH /api/settings/{id}.
func (h *Handler) SettingByID(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(r.URL.Path, "/api/settings")
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		h.patchDocument(w, r, models.CollectionSettings, id)
	default:
		methodNotAllowed(w, "PATCH")
	}
}
