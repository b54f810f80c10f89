package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"folio-cms/internal/auth"
	"folio-cms/internal/models"
	"folio-cms/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *storage.JSONStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := storage.NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore error: %v", err)
	}
	sessions := auth.NewSessionManager(time.Hour)
	return NewHandler(store, sessions), store
}

// invoke runs the handler func behind the caller-resolution middleware, the
// same way the server wires it.
func invoke(h *Handler, fn http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.CallerMiddleware(fn).ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	if payload == nil {
		return httptest.NewRequest(method, target, nil)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request payload: %v", err)
	}
	return httptest.NewRequest(method, target, bytes.NewReader(body))
}

func withToken(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func createAdmin(t *testing.T, h *Handler, store *storage.JSONStore) (models.User, string) {
	t.Helper()
	ctx := context.Background()
	user, err := store.CreateUser(ctx, storage.CreateUserParams{
		Name:     "Admin",
		Email:    fmt.Sprintf("admin-%s@example.com", t.Name()),
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	truth := true
	user, err = store.SetUserFlags(ctx, user.ID, &truth, &truth)
	if err != nil {
		t.Fatalf("SetUserFlags: %v", err)
	}
	session, err := h.Sessions.Create(user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return user, session.Token
}

func createMember(t *testing.T, h *Handler, store *storage.JSONStore) (models.User, string) {
	t.Helper()
	user, err := store.CreateUser(context.Background(), storage.CreateUserParams{
		Name:     "Member",
		Email:    fmt.Sprintf("member-%s@example.com", t.Name()),
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	session, err := h.Sessions.Create(user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return user, session.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestRootAndHello(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := invoke(handler, handler.Root, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for /, got %d", rec.Code)
	}
	var banner map[string]string
	decodeBody(t, rec, &banner)
	if banner["message"] == "" || banner["time"] == "" {
		t.Fatalf("expected message and time in banner, got %v", banner)
	}

	rec = invoke(handler, handler.Root, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown path, got %d", rec.Code)
	}

	rec = invoke(handler, handler.Hello, httptest.NewRequest(http.MethodGet, "/api/hello", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for /api/hello, got %d", rec.Code)
	}
}

func TestSignupLoginMeFlow(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := invoke(handler, handler.Signup, jsonRequest(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Dana", "email": "dana@example.com", "password": "p",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected signup status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("signup response leaked password material: %s", rec.Body.String())
	}

	rec = invoke(handler, handler.Login, jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "dana@example.com", "password": "p",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string       `json:"token"`
		User  userResponse `json:"user"`
	}
	decodeBody(t, rec, &login)
	if login.Token == "" {
		t.Fatal("expected a session token")
	}
	if login.User.Email != "dana@example.com" {
		t.Fatalf("expected login user dana@example.com, got %s", login.User.Email)
	}

	rec = invoke(handler, handler.Me, withToken(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), login.Token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected me status 200, got %d", rec.Code)
	}
	var me userResponse
	decodeBody(t, rec, &me)
	if me.ID != login.User.ID {
		t.Fatalf("expected me id %s, got %s", login.User.ID, me.ID)
	}

	rec = invoke(handler, handler.Me, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected me without token to be 401, got %d", rec.Code)
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	handler, store := newTestHandler(t)

	payload := map[string]string{"name": "Dana", "email": "dana@example.com", "password": "p"}
	rec := invoke(handler, handler.Signup, jsonRequest(t, http.MethodPost, "/api/auth/signup", payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first signup 200, got %d", rec.Code)
	}
	rec = invoke(handler, handler.Signup, jsonRequest(t, http.MethodPost, "/api/auth/signup", payload))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected duplicate signup 400, got %d", rec.Code)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user after duplicate signup, got %d", len(users))
	}
}

func TestLoginFailureIsOpaque(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := invoke(handler, handler.Signup, jsonRequest(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Dana", "email": "dana@example.com", "password": "correct",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("signup failed: %d", rec.Code)
	}

	wrongPassword := invoke(handler, handler.Login, jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "dana@example.com", "password": "wrong",
	}))
	unknownEmail := invoke(handler, handler.Login, jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "nobody@example.com", "password": "correct",
	}))
	if wrongPassword.Code != http.StatusUnauthorized || unknownEmail.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for both failures, got %d and %d", wrongPassword.Code, unknownEmail.Code)
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("login failures must be indistinguishable: %q vs %q",
			wrongPassword.Body.String(), unknownEmail.Body.String())
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	handler, store := newTestHandler(t)
	_, token := createMember(t, handler, store)

	rec := invoke(handler, handler.Logout, withToken(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected logout 200, got %d", rec.Code)
	}
	rec = invoke(handler, handler.Me, withToken(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), token))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be 401, got %d", rec.Code)
	}
}

func TestCategoryMutationsRequireVerifiedAdmin(t *testing.T) {
	handler, store := newTestHandler(t)
	_, memberToken := createMember(t, handler, store)
	_, adminToken := createAdmin(t, handler, store)

	payload := map[string]string{"key": "uiux", "title": "UI/UX"}

	rec := invoke(handler, handler.Categories, jsonRequest(t, http.MethodPost, "/api/categories", payload))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected anonymous create 401, got %d", rec.Code)
	}

	rec = invoke(handler, handler.Categories, withToken(jsonRequest(t, http.MethodPost, "/api/categories", payload), memberToken))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected member create 403, got %d", rec.Code)
	}

	rec = invoke(handler, handler.Categories, withToken(jsonRequest(t, http.MethodPost, "/api/categories", payload), adminToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected admin create 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var created models.Document
	decodeBody(t, rec, &created)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("expected created category to carry an id")
	}

	rec = invoke(handler, handler.Categories, httptest.NewRequest(http.MethodGet, "/api/categories", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected list 200, got %d", rec.Code)
	}
	var listed []models.Document
	decodeBody(t, rec, &listed)
	if len(listed) != 1 || listed[0]["key"] != "uiux" {
		t.Fatalf("expected one uiux category, got %v", listed)
	}
}

func TestCategoryKeyMustBeUnique(t *testing.T) {
	handler, store := newTestHandler(t)
	_, token := createAdmin(t, handler, store)

	payload := map[string]string{"key": "photo", "title": "Photography"}
	rec := invoke(handler, handler.Categories, withToken(jsonRequest(t, http.MethodPost, "/api/categories", payload), token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first create 200, got %d", rec.Code)
	}
	rec = invoke(handler, handler.Categories, withToken(jsonRequest(t, http.MethodPost, "/api/categories", payload), token))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected duplicate key 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCategoryPatchAndDelete(t *testing.T) {
	handler, store := newTestHandler(t)
	_, token := createAdmin(t, handler, store)

	doc, err := store.CreateDocument(context.Background(), models.CollectionCategories, models.Document{
		"key": "uiux", "title": "UI/UX",
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	id := doc["id"].(string)

	rec := invoke(handler, handler.CategoryByID,
		withToken(jsonRequest(t, http.MethodPatch, "/api/categories/"+id, map[string]string{"title": "Product Design"}), token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected patch 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated, _, err := store.GetDocument(context.Background(), models.CollectionCategories, id)
	if err != nil || updated["title"] != "Product Design" {
		t.Fatalf("expected updated title, got %v err %v", updated, err)
	}

	rec = invoke(handler, handler.CategoryByID,
		withToken(jsonRequest(t, http.MethodPatch, "/api/categories/"+id, map[string]string{"bogus": "x"}), token))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown field 400, got %d", rec.Code)
	}

	rec = invoke(handler, handler.CategoryByID,
		withToken(jsonRequest(t, http.MethodPatch, "/api/categories/missing", map[string]string{"title": "x"}), token))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected missing id 404, got %d", rec.Code)
	}

	// a no-op write is indistinguishable from a missing document
	rec = invoke(handler, handler.CategoryByID,
		withToken(jsonRequest(t, http.MethodPatch, "/api/categories/"+id, map[string]string{"title": "Product Design"}), token))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected no-op patch 404, got %d", rec.Code)
	}

	rec = invoke(handler, handler.CategoryByID,
		withToken(httptest.NewRequest(http.MethodDelete, "/api/categories/"+id, nil), token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected delete 200, got %d", rec.Code)
	}
	rec = invoke(handler, handler.CategoryByID,
		withToken(httptest.NewRequest(http.MethodDelete, "/api/categories/"+id, nil), token))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected second delete 404, got %d", rec.Code)
	}
}

func TestClientListFiltersByCategoryKey(t *testing.T) {
	handler, store := newTestHandler(t)
	ctx := context.Background()
	for _, doc := range []models.Document{
		{"name": "Northwind", "category_key": "uiux"},
		{"name": "Bluewater", "category_key": "graphic"},
	} {
		if _, err := store.CreateDocument(ctx, models.CollectionClients, doc); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}
	}

	rec := invoke(handler, handler.Clients, httptest.NewRequest(http.MethodGet, "/api/clients?category_key=uiux", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected list 200, got %d", rec.Code)
	}
	var listed []models.Document
	decodeBody(t, rec, &listed)
	if len(listed) != 1 || listed[0]["name"] != "Northwind" {
		t.Fatalf("expected only Northwind, got %v", listed)
	}
}

func TestProjectListFiltersByClientName(t *testing.T) {
	handler, store := newTestHandler(t)
	ctx := context.Background()
	for _, doc := range []models.Document{
		{"client_name": "Northwind", "title": "Storefront"},
		{"client_name": "Bluewater", "title": "Identity"},
	} {
		if _, err := store.CreateDocument(ctx, models.CollectionProjects, doc); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}
	}

	rec := invoke(handler, handler.Projects, httptest.NewRequest(http.MethodGet, "/api/projects?client_name=Bluewater", nil))
	var listed []models.Document
	decodeBody(t, rec, &listed)
	if len(listed) != 1 || listed[0]["title"] != "Identity" {
		t.Fatalf("expected only Identity, got %v", listed)
	}
}

func TestSubmitTestimonialAlwaysPending(t *testing.T) {
	handler, store := newTestHandler(t)

	rec := invoke(handler, handler.SubmitTestimonial, jsonRequest(t, http.MethodPost, "/api/testimonials/submit", map[string]any{
		"name": "Jamie", "quote": "Great work", "rating": 4,
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected submit 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["status"] != models.TestimonialStatusPending {
		t.Fatalf("expected pending status, got %v", resp["status"])
	}
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatal("expected submission id")
	}
	stored, _, err := store.GetDocument(context.Background(), models.CollectionTestimonials, id)
	if err != nil || stored["status"] != models.TestimonialStatusPending {
		t.Fatalf("expected stored submission pending, got %v err %v", stored, err)
	}

	// extra fields are ignored, and a submission cannot smuggle in a status
	rec = invoke(handler, handler.SubmitTestimonial, jsonRequest(t, http.MethodPost, "/api/testimonials/submit", map[string]any{
		"name": "Jamie", "quote": "Great work", "status": "approved", "featured": true,
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected submit with extra fields 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &resp)
	smuggledID, _ := resp["id"].(string)
	stored, _, err = store.GetDocument(context.Background(), models.CollectionTestimonials, smuggledID)
	if err != nil || stored["status"] != models.TestimonialStatusPending {
		t.Fatalf("expected smuggled status forced to pending, got %v err %v", stored, err)
	}

	rec = invoke(handler, handler.SubmitTestimonial, jsonRequest(t, http.MethodPost, "/api/testimonials/submit", map[string]any{
		"name": "Jamie",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected missing quote 400, got %d", rec.Code)
	}
}

func TestSubmitTestimonialClampsRating(t *testing.T) {
	handler, store := newTestHandler(t)

	cases := []struct {
		name   string
		rating any
		want   int
	}{
		{"above range", 7, 5},
		{"below range", -3, 0},
		{"non numeric", "abc", 5},
		{"absent", nil, 5},
		{"explicit null", json.RawMessage("null"), 5},
		{"in range", 3, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := map[string]any{"name": "Jamie", "quote": "Great work"}
			if tc.rating != nil {
				payload["rating"] = tc.rating
			}
			rec := invoke(handler, handler.SubmitTestimonial, jsonRequest(t, http.MethodPost, "/api/testimonials/submit", payload))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected submit 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var resp map[string]any
			decodeBody(t, rec, &resp)
			stored, _, err := store.GetDocument(context.Background(), models.CollectionTestimonials, resp["id"].(string))
			if err != nil {
				t.Fatalf("GetDocument: %v", err)
			}
			if got, ok := stored["rating"].(int); !ok || got != tc.want {
				t.Fatalf("expected rating %d, got %v", tc.want, stored["rating"])
			}
		})
	}
}

func TestTestimonialVisibility(t *testing.T) {
	handler, store := newTestHandler(t)
	_, memberToken := createMember(t, handler, store)
	_, adminToken := createAdmin(t, handler, store)

	ctx := context.Background()
	for _, doc := range []models.Document{
		{"name": "Jamie", "company": "Northwind", "quote": "a", "rating": 5, "status": models.TestimonialStatusApproved},
		{"name": "Robin", "company": "Bluewater", "quote": "b", "rating": 4, "status": models.TestimonialStatusPending},
	} {
		if _, err := store.CreateDocument(ctx, models.CollectionTestimonials, doc); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}
	}

	listFor := func(target string, token string) []models.Document {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if token != "" {
			req = withToken(req, token)
		}
		rec := invoke(handler, handler.Testimonials, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected list 200, got %d", rec.Code)
		}
		var listed []models.Document
		decodeBody(t, rec, &listed)
		return listed
	}

	if listed := listFor("/api/testimonials", ""); len(listed) != 1 || listed[0]["name"] != "Jamie" {
		t.Fatalf("expected anonymous list to show only approved, got %v", listed)
	}
	if listed := listFor("/api/testimonials?include_all=true", ""); len(listed) != 1 {
		t.Fatalf("expected include_all without token to stay restricted, got %v", listed)
	}
	if listed := listFor("/api/testimonials?include_all=true", memberToken); len(listed) != 1 {
		t.Fatalf("expected include_all for non-admin to stay restricted, got %v", listed)
	}
	if listed := listFor("/api/testimonials?include_all=true", adminToken); len(listed) != 2 {
		t.Fatalf("expected include_all for admin to show all, got %v", listed)
	}
	if listed := listFor("/api/testimonials?client_name=Bluewater&include_all=true", adminToken); len(listed) != 1 || listed[0]["name"] != "Robin" {
		t.Fatalf("expected company filter to apply, got %v", listed)
	}
}

func TestAdminTestimonialDefaultsToApproved(t *testing.T) {
	handler, store := newTestHandler(t)
	_, token := createAdmin(t, handler, store)

	rec := invoke(handler, handler.Testimonials, withToken(jsonRequest(t, http.MethodPost, "/api/testimonials", map[string]any{
		"name": "Jamie", "quote": "Great work", "rating": 5,
	}), token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected create 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var created models.Document
	decodeBody(t, rec, &created)
	if created["status"] != models.TestimonialStatusApproved {
		t.Fatalf("expected approved status, got %v", created["status"])
	}
}

func TestTestimonialModeration(t *testing.T) {
	handler, store := newTestHandler(t)
	_, token := createAdmin(t, handler, store)

	rec := invoke(handler, handler.SubmitTestimonial, jsonRequest(t, http.MethodPost, "/api/testimonials/submit", map[string]any{
		"name": "Jamie", "quote": "Great work",
	}))
	var resp map[string]any
	decodeBody(t, rec, &resp)
	id := resp["id"].(string)

	rec = invoke(handler, handler.TestimonialByID,
		withToken(jsonRequest(t, http.MethodPatch, "/api/testimonials/"+id, map[string]any{"status": "approved"}), token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected approve 200, got %d: %s", rec.Code, rec.Body.String())
	}
	stored, _, err := store.GetDocument(context.Background(), models.CollectionTestimonials, id)
	if err != nil || stored["status"] != models.TestimonialStatusApproved {
		t.Fatalf("expected approved, got %v err %v", stored, err)
	}

	rec = invoke(handler, handler.TestimonialByID,
		withToken(jsonRequest(t, http.MethodPatch, "/api/testimonials/"+id, map[string]any{"status": "rejected"}), token))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid status 400, got %d", rec.Code)
	}

	rec = invoke(handler, handler.TestimonialByID,
		withToken(httptest.NewRequest(http.MethodDelete, "/api/testimonials/"+id, nil), token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected delete 200, got %d", rec.Code)
	}
}

func TestSettingsLifecycle(t *testing.T) {
	handler, store := newTestHandler(t)
	_, token := createAdmin(t, handler, store)

	rec := invoke(handler, handler.Settings, withToken(jsonRequest(t, http.MethodPost, "/api/settings", map[string]any{
		"key": "ui", "rotate_seconds": 12, "fade_seconds": 1.2,
		"tilt_intensity": 0.4, "glow_intensity": 0.6,
	}), token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected create 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var created models.Document
	decodeBody(t, rec, &created)
	id := created["id"].(string)

	rec = invoke(handler, handler.Settings, httptest.NewRequest(http.MethodGet, "/api/settings?key=ui", nil))
	var listed []models.Document
	decodeBody(t, rec, &listed)
	if len(listed) != 1 {
		t.Fatalf("expected one ui setting, got %v", listed)
	}

	rec = invoke(handler, handler.SettingByID,
		withToken(jsonRequest(t, http.MethodPatch, "/api/settings/"+id, map[string]any{"rotate_seconds": 30}), token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected patch 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = invoke(handler, handler.SettingByID,
		withToken(jsonRequest(t, http.MethodPatch, "/api/settings/"+id, map[string]any{"key": "other"}), token))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected key patch 400, got %d", rec.Code)
	}

	rec = invoke(handler, handler.SettingByID,
		withToken(httptest.NewRequest(http.MethodDelete, "/api/settings/"+id, nil), token))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected settings delete 405, got %d", rec.Code)
	}
	updated, _, err := store.GetDocument(context.Background(), models.CollectionSettings, id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got, _ := updated["rotate_seconds"].(float64); got != 30 {
		t.Fatalf("expected rotate_seconds 30, got %v", updated["rotate_seconds"])
	}
}

func TestUsersEndpointSanitizesOutput(t *testing.T) {
	handler, store := newTestHandler(t)
	_, memberToken := createMember(t, handler, store)
	_, adminToken := createAdmin(t, handler, store)

	rec := invoke(handler, handler.Users, withToken(httptest.NewRequest(http.MethodGet, "/api/users", nil), memberToken))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected member list 403, got %d", rec.Code)
	}

	rec = invoke(handler, handler.Users, withToken(httptest.NewRequest(http.MethodGet, "/api/users", nil), adminToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected admin list 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("user listing leaked password material: %s", rec.Body.String())
	}
	var listed []userResponse
	decodeBody(t, rec, &listed)
	if len(listed) != 2 {
		t.Fatalf("expected 2 users, got %d", len(listed))
	}
}

func TestVerifyAdminGrantsFlags(t *testing.T) {
	handler, store := newTestHandler(t)
	member, _ := createMember(t, handler, store)
	_, adminToken := createAdmin(t, handler, store)

	rec := invoke(handler, handler.UserByID,
		withToken(httptest.NewRequest(http.MethodPatch, "/api/users/"+member.ID+"/verify-admin", nil), adminToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected verify 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp userResponse
	decodeBody(t, rec, &resp)
	if !resp.IsAdmin || !resp.IsVerified {
		t.Fatalf("expected both flags granted, got %+v", resp)
	}

	// explicit booleans override individually
	falsehood := false
	rec = invoke(handler, handler.UserByID,
		withToken(jsonRequest(t, http.MethodPatch, "/api/users/"+member.ID+"/verify-admin",
			verifyAdminRequest{IsAdmin: &falsehood}), adminToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected partial verify 200, got %d", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if resp.IsAdmin || !resp.IsVerified {
		t.Fatalf("expected only is_admin cleared, got %+v", resp)
	}

	rec = invoke(handler, handler.UserByID,
		withToken(httptest.NewRequest(http.MethodPatch, "/api/users/missing/verify-admin", nil), adminToken))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected missing user 404, got %d", rec.Code)
	}
}

type flagFailureStore struct {
	storage.Repository
}

func (s flagFailureStore) SetUserFlags(context.Context, string, *bool, *bool) (models.User, error) {
	return models.User{}, fmt.Errorf("driver offline")
}

func TestVerifyAdminStoreFailureIsNotMaskedAsMissing(t *testing.T) {
	handler, store := newTestHandler(t)
	member, _ := createMember(t, handler, store)
	_, adminToken := createAdmin(t, handler, store)
	handler.Store = flagFailureStore{Repository: store}

	rec := invoke(handler, handler.UserByID,
		withToken(httptest.NewRequest(http.MethodPatch, "/api/users/"+member.ID+"/verify-admin", nil), adminToken))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected store failure 500, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	handler, store := newTestHandler(t)
	_, token := createAdmin(t, handler, store)

	rec := invoke(handler, handler.Seed, withToken(httptest.NewRequest(http.MethodPost, "/api/seed", nil), token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected seed 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var first map[string]int
	decodeBody(t, rec, &first)
	if first["created"] != len(seedData) || first["skipped"] != 0 {
		t.Fatalf("expected %d created on first run, got %v", len(seedData), first)
	}

	rec = invoke(handler, handler.Seed, withToken(httptest.NewRequest(http.MethodPost, "/api/seed", nil), token))
	var second map[string]int
	decodeBody(t, rec, &second)
	if second["created"] != 0 || second["skipped"] != len(seedData) {
		t.Fatalf("expected all skipped on second run, got %v", second)
	}

	docs, err := store.ListDocuments(context.Background(), models.CollectionCategories, nil)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 seeded categories, got %d", len(docs))
	}
}

func TestSeedRequiresAdmin(t *testing.T) {
	handler, _ := newTestHandler(t)
	rec := invoke(handler, handler.Seed, httptest.NewRequest(http.MethodPost, "/api/seed", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected anonymous seed 401, got %d", rec.Code)
	}
}

func TestDiagnosticsAlwaysAnswers(t *testing.T) {
	handler, store := newTestHandler(t)
	if _, err := store.CreateDocument(context.Background(), models.CollectionCategories, models.Document{"key": "uiux", "title": "UI/UX"}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	rec := invoke(handler, handler.Diagnostics, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected diagnostics 200, got %d", rec.Code)
	}
	var payload map[string]any
	decodeBody(t, rec, &payload)
	if payload["backend"] != "ok" || payload["store"] != "ok" || payload["sessions"] != "ok" {
		t.Fatalf("expected healthy diagnostics, got %v", payload)
	}
	collections, ok := payload["collections"].([]any)
	if !ok || len(collections) != 1 {
		t.Fatalf("expected one collection, got %v", payload["collections"])
	}
}
