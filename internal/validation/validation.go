// Package validation checks request payloads with go-playground/validator and normalises
// the few fields (email, phone, display name) that are compared or stored.
package validation

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// ErrInvalid is wrapped by every validation failure so handlers can map it to 400.
var ErrInvalid = errors.New("validation failed")

// Error describes the first failing field in client-facing terms.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return ErrInvalid }

// Invalid returns an *Error for field with message.
func Invalid(field, message string) error {
	return &Error{Field: field, Message: message}
}

var (
	validate  = newValidator()
	stripTags = bluemonday.StrictPolicy()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct validates s by its `validate` tags and returns the first failure as *Error.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validation: %w", err)
	}
	return describe(verrs[0])
}

func describe(fe validator.FieldError) error {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return Invalid(field, field+" is required")
	case "email":
		return Invalid(field, "Invalid email address")
	case "e164":
		return Invalid(field, "Phone number must be in international format, e.g. +15551234567")
	case "min":
		return Invalid(field, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
	case "max":
		return Invalid(field, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	case "oneof":
		return Invalid(field, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
	case "url", "http_url":
		return Invalid(field, field+" must be a valid URL")
	default:
		return Invalid(field, fmt.Sprintf("%s is invalid", field))
	}
}

// Email validates a single address.
func Email(email string) error {
	if email == "" {
		return Invalid("email", "email is required")
	}
	if err := validate.Var(email, "email"); err != nil {
		return Invalid("email", "Invalid email address")
	}
	return nil
}

// Phone validates an already normalised E.164 number.
func Phone(phone string) error {
	if phone == "" {
		return Invalid("phone", "phone is required")
	}
	if err := validate.Var(phone, "e164"); err != nil {
		return Invalid("phone", "Phone number must be in international format, e.g. +15551234567")
	}
	return nil
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone removes spaces, dashes, dots and parentheses ("+1 (555) 123-4567" -> "+15551234567").
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// CleanName reduces a display name to plain text. Entities are decoded before sanitizing so
// encoded markup is stripped like literal markup, and stray angle brackets never survive.
func CleanName(name string) string {
	// Multiply encoded input needs more than one pass to reach plain text.
	for i := 0; i < 3; i++ {
		plain := html.UnescapeString(stripTags.Sanitize(html.UnescapeString(name)))
		if plain == name {
			break
		}
		name = plain
	}
	return strings.TrimSpace(angleBrackets.Replace(name))
}
