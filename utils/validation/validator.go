package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pastpapers-ai/explainer-api/services/paperindex"
	"github.com/pastpapers-ai/explainer-api/services/questionblock"
)

var (
	// EmailRegex is a simple email validation regex
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	difficulties = map[string]bool{"Easy": true, "Medium": true, "Hard": true}
)

// Validator wraps the go-playground validator with the paper specific tags:
//
//	label       a question label such as 12(c)(iv)
//	paperfile   a past-paper PDF filename such as 9702_m24_qp_22.pdf
//	difficulty  Easy, Medium or Hard
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	v := validator.New()

	// report json names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("label", func(fl validator.FieldLevel) bool {
		return questionblock.IsLabel(strings.TrimSpace(fl.Field().String()))
	})
	_ = v.RegisterValidation("paperfile", func(fl validator.FieldLevel) bool {
		return IsPaperFilename(fl.Field().String())
	})
	_ = v.RegisterValidation("difficulty", func(fl validator.FieldLevel) bool {
		return difficulties[fl.Field().String()]
	})

	return &Validator{validate: v}
}

// ValidateStruct validates a struct using struct tags
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// IsPaperFilename reports whether name is a .pdf following the past-paper
// naming convention
func IsPaperFilename(name string) bool {
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") || strings.ContainsAny(name, `/\`) {
		return false
	}
	_, err := paperindex.ParseFilename(name)
	return err == nil
}

// FormatValidationErrors converts validation errors to a user-friendly format
func FormatValidationErrors(err error) map[string]string {
	errors := make(map[string]string)

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			field := e.Field()
			switch e.Tag() {
			case "required":
				errors[field] = fmt.Sprintf("%s is required", field)
			case "email":
				errors[field] = "Invalid email format"
			case "min":
				errors[field] = fmt.Sprintf("%s must be at least %s", field, e.Param())
			case "max":
				errors[field] = fmt.Sprintf("%s must be at most %s", field, e.Param())
			case "oneof":
				errors[field] = fmt.Sprintf("%s must be one of: %s", field, e.Param())
			case "label":
				errors[field] = "Invalid question label, expected something like 3 or 3(b)(ii)"
			case "paperfile":
				errors[field] = "Invalid paper filename, expected something like 9702_m24_qp_22.pdf"
			case "difficulty":
				errors[field] = "Difficulty must be Easy, Medium or Hard"
			default:
				errors[field] = fmt.Sprintf("%s is invalid", field)
			}
		}
	}

	return errors
}

// ValidateEmail checks if an email is valid
func ValidateEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	return EmailRegex.MatchString(email)
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SanitizeString removes potentially dangerous characters
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")
	// Trim whitespace
	s = strings.TrimSpace(s)
	return s
}
