// Package validation collects field errors for user supplied values such
// as applicant parameters and object ids
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	tickerRegex   = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)
	objectIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,63}$`)
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors: " + strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator accumulates validation errors
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return v.errors.HasErrors()
}

// Err returns the collected errors, or nil when there are none
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v.errors
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
}

// PositiveInt validates that an integer is positive
func (v *Validator) PositiveInt(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("must be positive, got %d", value))
	}
}

// Positive validates that a number is positive
func (v *Validator) Positive(field string, value float64) {
	if value <= 0 {
		v.AddError(field, "must be positive")
	}
}

// NonNegative validates that a number is non-negative
func (v *Validator) NonNegative(field string, value float64) {
	if value < 0 {
		v.AddError(field, "must be non-negative")
	}
}

// Equal validates that an integer has the expected value
func (v *Validator) Equal(field string, value, want int) {
	if value != want {
		v.AddError(field, fmt.Sprintf("must be %d, got %d", want, value))
	}
}

// Before validates that from < to
func (v *Validator) Before(field string, from, to int64) {
	if from >= to {
		v.AddError(field, fmt.Sprintf("period [%d, %d) is empty", from, to))
	}
}

// OneOf validates that a value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// Ticker validates an exchange ticker such as BTCUSDT
func (v *Validator) Ticker(field, value string) {
	if !tickerRegex.MatchString(value) {
		v.AddError(field, "must be an upper case ticker (e.g., BTCUSDT)")
	}
}

// ObjectID validates a store object id. Parse ids and UUIDs both pass.
func (v *Validator) ObjectID(field, value string) {
	if !objectIDRegex.MatchString(value) {
		v.AddError(field, "must be a valid object id")
	}
}

// SanitizeTicker normalizes user input to the ticker format (e.g.,
// "btc/usdt" -> "BTCUSDT")
func SanitizeTicker(ticker string) string {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	return strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(ticker)
}
