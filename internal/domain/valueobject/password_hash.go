package valueobject

import (
	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
)

// Redacted is what a PasswordHash prints as, in every format.
const Redacted = "[REDACTED]"

// minHashLength rejects input that is obviously not a digest.
const minHashLength = 20

// PasswordHash is an opaque one-way digest. It never renders its content:
// String, GoString and MarshalJSON all return Redacted. Persistence adapters
// read the digest through Value.
type PasswordHash struct {
	value string
}

func NewPasswordHash(digest string) (PasswordHash, error) {
	if digest == "" {
		return PasswordHash{}, domain.InvalidValue("passwordHash", "password hash must be a non-empty string")
	}
	if len(digest) < minHashLength {
		return PasswordHash{}, domain.InvalidValue("passwordHash", "invalid password hash format")
	}
	return PasswordHash{value: digest}, nil
}

func (h PasswordHash) Value() string { return h.value }

func (h PasswordHash) Equals(other PasswordHash) bool { return h.value == other.value }

func (h PasswordHash) String() string { return Redacted }

func (h PasswordHash) GoString() string { return Redacted }

func (h PasswordHash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + Redacted + `"`), nil
}

func (h PasswordHash) IsZero() bool { return h.value == "" }
