package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidationError reports one invalid setting, keyed by its environment variable
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidationErrors collects every problem found in one pass
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}
	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Validator checks one configuration section
type Validator func() ValidationErrors

// Validate runs the validators and returns their combined errors, or nil
func Validate(validators ...Validator) error {
	var all ValidationErrors
	for _, validator := range validators {
		all = append(all, validator()...)
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

// CollectErrors drops the nil results of the Require helpers
func CollectErrors(errors ...*ValidationError) ValidationErrors {
	var result ValidationErrors
	for _, err := range errors {
		if err != nil {
			result = append(result, *err)
		}
	}
	return result
}

func RequireNonEmpty(field, value string) *ValidationError {
	if value == "" {
		return invalid(field, "is required")
	}
	return nil
}

func RequirePositive(field string, value int) *ValidationError {
	if value <= 0 {
		return invalid(field, "must be positive, got %d", value)
	}
	return nil
}

func RequireNonNegative(field string, value int) *ValidationError {
	if value < 0 {
		return invalid(field, "must be non-negative, got %d", value)
	}
	return nil
}

// RequirePositiveDuration also rejects an unset duration, so required
// windows such as the removal cooldown never fall back to zero
func RequirePositiveDuration(field string, value time.Duration) *ValidationError {
	if value <= 0 {
		return invalid(field, "must be a positive duration, got %v", value)
	}
	return nil
}

// RequireUnitInterval accepts values in (0, 1]
func RequireUnitInterval(field string, value float64) *ValidationError {
	if !(value > 0 && value <= 1) {
		return invalid(field, "must be in (0, 1], got %v", value)
	}
	return nil
}

func RequireValidEmail(field, value string) *ValidationError {
	if value == "" {
		return invalid(field, "is required")
	}
	if !emailPattern.MatchString(value) {
		return invalid(field, "invalid email format")
	}
	return nil
}

func RequireValidPort(field string, value uint16) *ValidationError {
	if value == 0 {
		return invalid(field, "port must be between 1 and 65535")
	}
	return nil
}

func RequireOneOf(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return invalid(field, "must be one of %v, got %q", allowed, value)
}

// RequireMinLength counts bytes, which is what key derivation consumes
func RequireMinLength(field, value string, minLength int) *ValidationError {
	if len(value) < minLength {
		return invalid(field, "must be at least %d bytes, got %d", minLength, len(value))
	}
	return nil
}
