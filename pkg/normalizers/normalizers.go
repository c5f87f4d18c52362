// Package normalizers canonicalizes raw identifier strings so that equality
// comparison between signals and stored identifiers is meaningful.
package normalizers

import (
	"errors"
	"strings"
	"unicode"

	"github.com/Ramsey-B/aster/pkg/models"
)

var (
	// ErrInvalidPhone is returned when a phone number has a digit count
	// outside the plausible range for any region
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrInvalidEmail is returned when an email is not local@domain
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrUnknownIdentifierType is returned for unsupported identifier types
	ErrUnknownIdentifierType = errors.New("unknown identifier type")
)

// countryCallingCodes maps ISO region codes to dialing prefixes for
// country-code inference on bare national numbers
var countryCallingCodes = map[string]string{
	"GB": "44",
	"US": "1",
	"CA": "1",
	"IE": "353",
	"FR": "33",
	"DE": "49",
	"ES": "34",
	"IT": "39",
	"NL": "31",
	"AU": "61",
	"NZ": "64",
	"IN": "91",
	"BR": "55",
	"ZA": "27",
}

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nname", NormalizeName)
	Register("nhandle", NormalizeHandle)
	Register("digits_only", DigitsOnly)
	Register("remove_whitespace", RemoveWhitespace)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Normalize canonicalizes a raw identifier value for its type. Pure and
// deterministic; countryDefault only affects bare national phone numbers.
func Normalize(idType models.IdentifierType, raw, countryDefault string) (string, error) {
	switch idType {
	case models.IdentifierTypePhone:
		return NormalizePhone(raw, countryDefault)
	case models.IdentifierTypeEmail:
		return NormalizeEmail(raw)
	case models.IdentifierTypeName:
		return NormalizeName(raw), nil
	case models.IdentifierTypeHandle:
		return NormalizeHandle(raw), nil
	default:
		return "", ErrUnknownIdentifierType
	}
}

// NormalizePhone converts a raw phone number to E.164. Numbers carrying an
// explicit international prefix ("+" or "00") keep their country code; bare
// national numbers have the trunk "0" stripped and the default region's
// calling code prepended.
func NormalizePhone(raw, countryDefault string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	international := strings.HasPrefix(trimmed, "+")

	digits := DigitsOnly(trimmed)
	if !international && strings.HasPrefix(digits, "00") {
		international = true
		digits = digits[2:]
	}

	if !international {
		digits = strings.TrimPrefix(digits, "0")
		if code, ok := countryCallingCodes[strings.ToUpper(countryDefault)]; ok {
			digits = code + digits
		}
	}

	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrInvalidPhone
	}

	return "+" + digits, nil
}

// NormalizeEmail lowercases and trims an email, rejecting values without
// exactly one "@" separating non-empty local and domain parts
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" || domain == "" || strings.ContainsAny(domain, "@ ") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// NormalizeName case-folds, collapses whitespace, and strips punctuation.
// Never fails; an empty string is a valid normalized name.
func NormalizeName(s string) string {
	s = strings.ToLower(s)

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// NormalizeHandle lowercases, trims, and strips a leading "@"
func NormalizeHandle(s string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "@")
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
