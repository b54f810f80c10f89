package models

import "time"

// Collection names used by the document store. They follow the convention of
// the original portfolio site: one lowercase singular name per entity.
const (
	CollectionCategories   = "category"
	CollectionClients      = "client"
	CollectionProjects     = "project"
	CollectionTestimonials = "testimonial"
	CollectionSettings     = "setting"
)

// Testimonial moderation states. Public submissions always start out pending;
// only approved entries are visible to anonymous callers.
const (
	TestimonialStatusPending  = "pending"
	TestimonialStatusApproved = "approved"
)

// Document is a schema-flexible record stored in a named collection. The
// store surfaces the internal key as an "id" entry on read; ids supplied on
// input are ignored.
type Document map[string]any

// Category groups portfolio clients, e.g. UI/UX, Graphic, Photography.
type Category struct {
	Key         string `json:"key" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description,omitempty"`
}

// Client is a customer associated with a category. The category_key reference
// is not enforced; a dangling key is tolerated.
type Client struct {
	Name        string `json:"name" validate:"required"`
	CategoryKey string `json:"category_key" validate:"required"`
	Description string `json:"description,omitempty"`
	LogoURL     string `json:"logo_url,omitempty" validate:"omitempty,url"`
}

// Project is a piece of work attributed to a client by name.
type Project struct {
	ClientName  string   `json:"client_name" validate:"required"`
	Title       string   `json:"title" validate:"required"`
	Tag         string   `json:"tag,omitempty"`
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images,omitempty" validate:"omitempty,dive,url"`
	Link        string   `json:"link,omitempty" validate:"omitempty,url"`
}

// Testimonial is a quote from a client contact. Admin-created entries carry a
// 1-5 rating; public submissions are clamped separately before persistence.
type Testimonial struct {
	Name    string `json:"name" validate:"required"`
	Role    string `json:"role,omitempty"`
	Company string `json:"company,omitempty"`
	LogoURL string `json:"logo_url,omitempty" validate:"omitempty,url"`
	Quote   string `json:"quote" validate:"required"`
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Status  string `json:"status,omitempty" validate:"omitempty,oneof=pending approved"`
}

// Setting holds the animation tuning knobs for one UI surface. By convention
// a single record exists per key; uniqueness is not enforced by the store.
type Setting struct {
	Key           string  `json:"key" validate:"required"`
	RotateSeconds float64 `json:"rotate_seconds" validate:"min=5,max=120"`
	FadeSeconds   float64 `json:"fade_seconds" validate:"min=0.2,max=10"`
	TiltIntensity float64 `json:"tilt_intensity" validate:"min=0,max=1"`
	GlowIntensity float64 `json:"glow_intensity" validate:"min=0,max=1"`
}

// User is a CMS account. PasswordHash is never serialized to API clients;
// handlers build sanitized responses instead.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	IsAdmin      bool      `json:"is_admin"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsVerifiedAdmin reports whether the user may perform admin mutations.
func (u User) IsVerifiedAdmin() bool {
	return u.IsAdmin && u.IsVerified
}
