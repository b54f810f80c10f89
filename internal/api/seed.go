package api

import (
	"fmt"
	"net/http"

	"folio-cms/internal/models"
)

type seedEntry struct {
	collection string
	// natural key used for the idempotency check, so reseeding never
	// duplicates records
	keyField string
	doc      models.Document
}

var seedData = []seedEntry{
	{models.CollectionCategories, "key", models.Document{
		"key": "uiux", "title": "UI/UX", "description": "Interface and product design",
	}},
	{models.CollectionCategories, "key", models.Document{
		"key": "graphic", "title": "Graphic Design", "description": "Branding and print",
	}},
	{models.CollectionCategories, "key", models.Document{
		"key": "photography", "title": "Photography", "description": "Product and event shoots",
	}},
	{models.CollectionClients, "name", models.Document{
		"name": "Northwind Outfitters", "category_key": "uiux",
		"description": "Outdoor gear retailer",
	}},
	{models.CollectionClients, "name", models.Document{
		"name": "Bluewater Labs", "category_key": "graphic",
		"description": "Marine research startup",
	}},
	{models.CollectionProjects, "title", models.Document{
		"client_name": "Northwind Outfitters", "title": "Storefront redesign",
		"tag": "web", "description": "Responsive storefront with checkout flow",
	}},
	{models.CollectionProjects, "title", models.Document{
		"client_name": "Bluewater Labs", "title": "Brand identity",
		"tag": "branding", "description": "Logo system and style guide",
	}},
	{models.CollectionTestimonials, "name", models.Document{
		"name": "Jamie Ortega", "role": "Head of Product", "company": "Northwind Outfitters",
		"quote": "The new storefront doubled our conversion rate.", "rating": 5,
		"status": models.TestimonialStatusApproved,
	}},
	{models.CollectionSettings, "key", models.Document{
		"key": "ui", "rotate_seconds": 12.0, "fade_seconds": 1.2,
		"tilt_intensity": 0.4, "glow_intensity": 0.6,
	}},
}

// Seed serves POST /api/seed: an idempotent demo-data loader. Records are
// matched on their natural key, so repeated calls report skips instead of
// inserting duplicates.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	created, skipped := 0, 0
	for _, entry := range seedData {
		key := entry.doc[entry.keyField]
		existing, err := h.Store.ListDocuments(r.Context(), entry.collection, map[string]any{entry.keyField: key})
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("seed check %s: %w", entry.collection, err))
			return
		}
		if len(existing) > 0 {
			skipped++
			continue
		}
		if _, err := h.Store.CreateDocument(r.Context(), entry.collection, entry.doc); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("seed %s: %w", entry.collection, err))
			return
		}
		created++
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": created, "skipped": skipped})
}
