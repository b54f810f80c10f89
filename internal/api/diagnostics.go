package api

import (
	"net/http"
)

const diagnosticsCollectionCap = 10

// Diagnostics serves GET /test. It always answers 200; store and session
// failures are rendered as descriptive strings instead of failing the
// request.
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	payload := map[string]any{
		"backend": "ok",
	}

	if err := h.Store.Ping(r.Context()); err != nil {
		payload["store"] = "unreachable: " + err.Error()
	} else {
		payload["store"] = "ok"
	}

	collections, err := h.Store.Collections(r.Context())
	if err != nil {
		payload["collections"] = "listing failed: " + err.Error()
	} else {
		if len(collections) > diagnosticsCollectionCap {
			collections = collections[:diagnosticsCollectionCap]
		}
		payload["collections"] = collections
	}

	if err := h.Sessions.Ping(r.Context()); err != nil {
		payload["sessions"] = "unreachable: " + err.Error()
	} else {
		payload["sessions"] = "ok"
	}

	writeJSON(w, http.StatusOK, payload)
}
