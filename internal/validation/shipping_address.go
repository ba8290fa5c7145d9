// Package validation checks shopper-supplied checkout details before they are
// stored on a cart.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"cart-service/internal/models"
)

// FieldError is a validation failure on a single field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors is a collection of validation errors
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e FieldErrors) HasErrors() bool {
	return len(e) > 0
}

var (
	// ISO 3166-1 alpha-2
	countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)

	phonePattern = regexp.MustCompile(`^[\+]?[(]?[0-9]{1,4}[)]?[-\s\.]?[(]?[0-9]{1,3}[)]?[-\s\.]?[0-9]{1,4}[-\s\.]?[0-9]{1,4}[-\s\.]?[0-9]{1,9}$`)

	postalCodePatterns = map[string]*regexp.Regexp{
		"US": regexp.MustCompile(`^\d{5}(-\d{4})?$`),
		"CA": regexp.MustCompile(`^[A-Z]\d[A-Z][ -]?\d[A-Z]\d$`),
		"GB": regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]? ?[0-9][A-Z]{2}$`),
		"AU": regexp.MustCompile(`^\d{4}$`),
		"IN": regexp.MustCompile(`^\d{6}$`),
		"DE": regexp.MustCompile(`^\d{5}$`),
		"FR": regexp.MustCompile(`^\d{5}$`),
	}

	// Markup and control characters have no place in a postal address
	dangerousCharsPattern = regexp.MustCompile(`[<>\"';\x00-\x1f]`)
)

type fieldRule struct {
	name     string
	label    string
	value    func(a *models.ShippingAddress) string
	required bool
	maxLen   int
	freeText bool
}

var shippingRules = []fieldRule{
	{"firstName", "First name", func(a *models.ShippingAddress) string { return a.FirstName }, false, 100, true},
	{"lastName", "Last name", func(a *models.ShippingAddress) string { return a.LastName }, false, 100, true},
	{"company", "Company", func(a *models.ShippingAddress) string { return a.Company }, false, 255, true},
	{"addressLine1", "Address line 1", func(a *models.ShippingAddress) string { return a.AddressLine1 }, true, 255, true},
	{"addressLine2", "Address line 2", func(a *models.ShippingAddress) string { return a.AddressLine2 }, false, 255, true},
	{"city", "City", func(a *models.ShippingAddress) string { return a.City }, true, 100, true},
	{"state", "State", func(a *models.ShippingAddress) string { return a.State }, false, 100, true},
	{"postalCode", "Postal code", func(a *models.ShippingAddress) string { return a.PostalCode }, true, 20, false},
	{"country", "Country", func(a *models.ShippingAddress) string { return a.Country }, true, 2, false},
	{"phone", "Phone", func(a *models.ShippingAddress) string { return a.Phone }, false, 50, false},
}

// ValidateShippingAddress checks a sanitized shipping address
func ValidateShippingAddress(address *models.ShippingAddress) FieldErrors {
	var errs FieldErrors

	for _, rule := range shippingRules {
		value := rule.value(address)
		switch {
		case rule.required && strings.TrimSpace(value) == "":
			errs = append(errs, FieldError{Field: rule.name, Message: rule.label + " is required", Code: "REQUIRED"})
			continue
		case len(value) > rule.maxLen:
			errs = append(errs, FieldError{
				Field:   rule.name,
				Message: fmt.Sprintf("%s must not exceed %d characters", rule.label, rule.maxLen),
				Code:    "MAX_LENGTH",
			})
		}
		if rule.freeText && dangerousCharsPattern.MatchString(value) {
			errs = append(errs, FieldError{Field: rule.name, Message: "Contains invalid characters", Code: "INVALID_CHARS"})
		}
	}

	if address.Country != "" && !countryCodePattern.MatchString(address.Country) {
		errs = append(errs, FieldError{
			Field:   "country",
			Message: "Country must be a valid 2-letter ISO country code (e.g., US, GB, AU)",
			Code:    "INVALID_FORMAT",
		})
	}

	if address.Phone != "" && !phonePattern.MatchString(address.Phone) {
		errs = append(errs, FieldError{Field: "phone", Message: "Phone number format is invalid", Code: "INVALID_FORMAT"})
	}

	if pattern, ok := postalCodePatterns[address.Country]; ok && address.PostalCode != "" {
		if !pattern.MatchString(address.PostalCode) {
			errs = append(errs, FieldError{
				Field:   "postalCode",
				Message: fmt.Sprintf("Invalid postal code format for %s", address.Country),
				Code:    "INVALID_FORMAT",
			})
		}
	}

	return errs
}

// SanitizeShippingAddress trims every field and upper-cases the postal and
// country codes
func SanitizeShippingAddress(address *models.ShippingAddress) {
	address.FirstName = strings.TrimSpace(address.FirstName)
	address.LastName = strings.TrimSpace(address.LastName)
	address.Company = strings.TrimSpace(address.Company)
	address.AddressLine1 = strings.TrimSpace(address.AddressLine1)
	address.AddressLine2 = strings.TrimSpace(address.AddressLine2)
	address.City = strings.TrimSpace(address.City)
	address.State = strings.TrimSpace(address.State)
	address.PostalCode = strings.ToUpper(strings.TrimSpace(address.PostalCode))
	address.Country = strings.ToUpper(strings.TrimSpace(address.Country))
	address.Phone = strings.TrimSpace(address.Phone)
}

// MaskShippingAddress returns log-safe fields of an address
func MaskShippingAddress(address *models.ShippingAddress) map[string]interface{} {
	return map[string]interface{}{
		"city":       maskString(address.City, 2),
		"state":      address.State,
		"country":    address.Country,
		"postalCode": maskString(address.PostalCode, 3),
	}
}

// maskString keeps the first keep characters and stars the rest
func maskString(s string, keep int) string {
	if len(s) <= keep {
		return strings.Repeat("*", len(s))
	}
	return s[:keep] + strings.Repeat("*", len(s)-keep)
}
