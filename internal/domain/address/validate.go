package address

import (
	"strings"
	"unicode/utf8"
)

// ValidationErrors maps a field name to a human-readable problem. An empty
// map means the draft passed every rule.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	return "invalid address fields: " + strings.Join(fields, ", ")
}

// DigitsOnly strips every non-digit rune from s. Postal codes are validated
// and stored in this canonical form.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateDraft checks the structural rules for a new shipping address:
// street and city at least 3 characters, state exactly 2, country at least 2,
// postal code exactly 8 digits after stripping separators, number 1-20
// characters and complement 1-100. Complement is required here even though it
// is conceptually optional; the persistence contract demands it.
func ValidateDraft(d Draft) ValidationErrors {
	errs := ValidationErrors{}

	if utf8.RuneCountInString(strings.TrimSpace(d.Street)) < 3 {
		errs["street"] = "street is required (min 3 characters)"
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(d.Number)); n < 1 || n > 20 {
		errs["number"] = "number is required (1-20 characters)"
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(d.Complement)); n < 1 || n > 100 {
		errs["complement"] = "complement is required (1-100 characters)"
	}
	if utf8.RuneCountInString(strings.TrimSpace(d.City)) < 3 {
		errs["city"] = "city is required (min 3 characters)"
	}
	if utf8.RuneCountInString(strings.TrimSpace(d.State)) != 2 {
		errs["state"] = "state must be exactly 2 characters"
	}
	if utf8.RuneCountInString(strings.TrimSpace(d.Country)) < 2 {
		errs["country"] = "country is required (min 2 characters)"
	}
	if len(DigitsOnly(d.PostalCode)) != 8 {
		errs["postalCode"] = "postal code must contain exactly 8 digits"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
