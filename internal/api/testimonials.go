package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"folio-cms/internal/models"
	"folio-cms/internal/observability/metrics"
	"folio-cms/internal/schema"
)

// Testimonials serves GET and POST /api/testimonials. Listing is public but
// restricted to approved entries unless a verified admin asks for all of
// them; admin POST creates an entry that defaults to approved.
func (h *Handler) Testimonials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTestimonials(w, r)
	case http.MethodPost:
		h.createTestimonial(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (h *Handler) listTestimonials(w http.ResponseWriter, r *http.Request) {
	filter := map[string]any{}
	if company := strings.TrimSpace(r.URL.Query().Get("client_name")); company != "" {
		filter["company"] = company
	}

	// include_all only takes effect for a verified admin. Anyone else
	// silently gets the approved-only view; no error is surfaced.
	includeAll := r.URL.Query().Get("include_all") == "true" && adminFromContext(r.Context())
	if !includeAll {
		filter["status"] = models.TestimonialStatusApproved
	}
	if len(filter) == 0 {
		filter = nil
	}
	h.listDocuments(w, r, models.CollectionTestimonials, filter)
}

func (h *Handler) createTestimonial(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	var payload models.Testimonial
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Status == "" {
		payload.Status = models.TestimonialStatusApproved
	}
	if err := schema.Validate(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	doc, err := docFromPayload(&payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	created, err := h.Store.CreateDocument(r.Context(), models.CollectionTestimonials, doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("create testimonial: %w", err))
		return
	}
	metrics.ObserveDocument(models.CollectionTestimonials, "create")
	writeJSON(w, http.StatusOK, created)
}

type testimonialSubmission struct {
	Name    string          `json:"name"`
	Role    string          `json:"role"`
	Company string          `json:"company"`
	LogoURL string          `json:"logo_url"`
	Quote   string          `json:"quote"`
	Rating  json.RawMessage `json:"rating"`
}

// clampRating coerces the raw rating into [0,5]. Non-numeric, null, or absent
// input becomes 5 rather than an error; public intake never rejects on rating.
func clampRating(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 5
	}
	var value *float64
	if err := json.Unmarshal(raw, &value); err != nil || value == nil {
		return 5
	}
	rating := int(*value)
	if rating < 0 {
		return 0
	}
	if rating > 5 {
		return 5
	}
	return rating
}

// SubmitTestimonial serves POST /api/testimonials/submit, the unauthenticated
// public intake. Unknown fields are dropped rather than rejected, so a client
// cannot smuggle a status in; submissions always land as pending.
func (h *Handler) SubmitTestimonial(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	var req testimonialSubmission
	if err := decodeJSONLenient(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Quote) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("name and quote are required"))
		return
	}

	doc := models.Document{
		"name":    strings.TrimSpace(req.Name),
		"role":    req.Role,
		"company": req.Company,
		"quote":   req.Quote,
		"rating":  clampRating(req.Rating),
		"status":  models.TestimonialStatusPending,
	}
	if req.LogoURL != "" {
		doc["logo_url"] = req.LogoURL
	}
	created, err := h.Store.CreateDocument(r.Context(), models.CollectionTestimonials, doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("submit testimonial: %w", err))
		return
	}
	metrics.ObserveDocument(models.CollectionTestimonials, "submit")
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     created["id"],
		"status": models.TestimonialStatusPending,
	})
}

// TestimonialByID serves PATCH and DELETE /api/testimonials/{id}.
func (h *Handler) TestimonialByID(w http.ResponseWriter, r *http.Request) {
	id, ok := resourceID(r.URL.Path, "/api/testimonials")
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		h.patchDocument(w, r, models.CollectionTestimonials, id)
	case http.MethodDelete:
		h.deleteDocument(w, r, models.CollectionTestimonials, id)
	default:
		methodNotAllowed(w, "PATCH, DELETE")
	}
}
