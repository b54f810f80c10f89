// Package schema validates CMS payloads before they reach the document store.
// Create payloads are validated as whole structs; partial updates go through
// per-collection allow-lists so PATCH enforces the same constraints as POST.
package schema

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"folio-cms/internal/models"
)

var validate = newValidator()

// newValidator configures struct validation to report wire field names, so a
// failure on LogoURL reads "logo_url" the way the JSON payload spells it.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrUnknownCollection is returned when a patch targets a collection without
// a registered shape.
var ErrUnknownCollection = errors.New("unknown collection")

// ValidationError wraps one or more field-level failures into a single error
// suitable for a 400 response body.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Fields, "; ")
}

// Validate checks a create payload against its struct tags.
func Validate(payload any) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	return &ValidationError{Fields: formatFieldErrors(fieldErrs)}
}

func formatFieldErrors(fieldErrs validator.ValidationErrors) []string {
	out := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("field %s failed on %s", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s=%s", msg, fe.Param())
		}
		out = append(out, msg)
	}
	return out
}

// patchRule names the validator tag applied to a single patchable field. An
// empty tag means the field is free-form text.
type patchRule struct {
	tag  string
	kind fieldKind
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindInteger
	kindStringList
)

var patchRules = map[string]map[string]patchRule{
	models.CollectionCategories: {
		"key":         {tag: "required"},
		"title":       {tag: "required"},
		"description": {},
	},
	models.CollectionClients: {
		"name":         {tag: "required"},
		"category_key": {tag: "required"},
		"description":  {},
		"logo_url":     {tag: "omitempty,url"},
	},
	models.CollectionProjects: {
		"client_name": {tag: "required"},
		"title":       {tag: "required"},
		"tag":         {},
		"description": {},
		"images":      {tag: "omitempty,dive,url", kind: kindStringList},
		"link":        {tag: "omitempty,url"},
	},
	models.CollectionTestimonials: {
		"name":     {tag: "required"},
		"role":     {},
		"company":  {},
		"logo_url": {tag: "omitempty,url"},
		"quote":    {tag: "required"},
		"rating":   {tag: "min=1,max=5", kind: kindInteger},
		"status":   {tag: "oneof=pending approved"},
	},
	// The singleton key is deliberately not patchable.
	models.CollectionSettings: {
		"rotate_seconds": {tag: "min=5,max=120", kind: kindNumber},
		"fade_seconds":   {tag: "min=0.2,max=10", kind: kindNumber},
		"tilt_intensity": {tag: "min=0,max=1", kind: kindNumber},
		"glow_intensity": {tag: "min=0,max=1", kind: kindNumber},
	},
}

// ValidatePatch checks a partial field map for a collection against its
// allow-list. Unknown fields and constraint violations are rejected.
func ValidatePatch(collection string, fields map[string]any) error {
	rules, ok := patchRules[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if len(fields) == 0 {
		return &ValidationError{Fields: []string{"no fields to update"}}
	}
	var failures []string
	for name, value := range fields {
		rule, allowed := rules[name]
		if !allowed {
			failures = append(failures, fmt.Sprintf("field %s is not updatable", name))
			continue
		}
		if msg := checkPatchValue(name, value, rule); msg != "" {
			failures = append(failures, msg)
		}
	}
	if len(failures) > 0 {
		return &ValidationError{Fields: failures}
	}
	return nil
}

func checkPatchValue(name string, value any, rule patchRule) string {
	switch rule.kind {
	case kindNumber, kindInteger:
		num, ok := value.(float64)
		if !ok {
			return fmt.Sprintf("field %s must be a number", name)
		}
		if rule.kind == kindInteger && num != math.Trunc(num) {
			return fmt.Sprintf("field %s must be an integer", name)
		}
		if err := validate.Var(num, rule.tag); err != nil {
			return fmt.Sprintf("field %s failed on %s", name, rule.tag)
		}
	case kindStringList:
		list, ok := value.([]any)
		if !ok {
			return fmt.Sprintf("field %s must be a list of strings", name)
		}
		urls := make([]string, 0, len(list))
		for _, item := range list {
			str, ok := item.(string)
			if !ok {
				return fmt.Sprintf("field %s must be a list of strings", name)
			}
			urls = append(urls, str)
		}
		if rule.tag != "" {
			if err := validate.Var(urls, rule.tag); err != nil {
				return fmt.Sprintf("field %s failed on %s", name, rule.tag)
			}
		}
	default:
		str, ok := value.(string)
		if !ok {
			return fmt.Sprintf("field %s must be a string", name)
		}
		if rule.tag != "" {
			if err := validate.Var(str, rule.tag); err != nil {
				return fmt.Sprintf("field %s failed on %s", name, rule.tag)
			}
		}
	}
	return ""
}
