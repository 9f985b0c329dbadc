// Package valueobject holds the self-validating identity values owned by the
// User aggregate. Every constructor validates eagerly and there are no setters.
package valueobject

import (
	"regexp"
	"strings"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
)

// MaxEmailLength bounds the raw input, checked before normalization.
const MaxEmailLength = 255

// conservative local@domain.tld shape; RE2 keeps it linear
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Email is a normalized (lowercased) address.
type Email struct {
	value string
}

func NewEmail(raw string) (Email, error) {
	if raw == "" {
		return Email{}, domain.InvalidValue("email", "email must be a non-empty string")
	}
	if !emailPattern.MatchString(raw) {
		return Email{}, domain.InvalidValue("email", "invalid email format")
	}
	if len(raw) > MaxEmailLength {
		return Email{}, domain.InvalidValue("email", "email must not exceed 255 characters")
	}
	return Email{value: strings.ToLower(raw)}, nil
}

func (e Email) Value() string { return e.value }

func (e Email) Equals(other Email) bool { return e.value == other.value }

func (e Email) String() string { return e.value }

// IsZero reports whether e was never constructed.
func (e Email) IsZero() bool { return e.value == "" }
