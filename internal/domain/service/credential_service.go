// Package service holds the credential policy: password strength, account
// creation, authentication and password change. Hashing is delegated to a
// PasswordHasher, which is expected to be slow on purpose.
package service

import (
	"context"
	"unicode/utf8"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/entity"
	vo "github.com/iYoNuttxD/user-service-microservice/internal/domain/valueobject"
)

// Password rules, checked in this order; the first failure wins.
const (
	RuleRequired = "required"
	RuleLength   = "length"
	RuleDigit    = "digit"
	RuleLetter   = "letter"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// Profile update keys accepted by ValidateProfileUpdate.
const (
	FieldFirstName = "firstName"
	FieldLastName  = "lastName"
)

// PasswordHasher is the one-way hashing capability.
// Compare reports a mismatch as (false, nil); an error means the comparison
// itself could not run (e.g. a malformed digest).
type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Compare(ctx context.Context, plain, digest string) (bool, error)
}

type CredentialService struct {
	hasher PasswordHasher
}

func NewCredentialService(h PasswordHasher) *CredentialService {
	return &CredentialService{hasher: h}
}

// NewUserInput is the registration payload. Nil Roles means {user}.
type NewUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Roles     []string
}

// CreateUser checks password strength, hashes it and builds an active user.
// A weak password is rejected before the hasher is touched.
func (s *CredentialService) CreateUser(ctx context.Context, in NewUserInput) (*entity.User, error) {
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	digest, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, domain.Internal(err)
	}
	active := true
	return entity.NewUser(entity.UserParams{
		Email:        in.Email,
		PasswordHash: digest,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Roles:        in.Roles,
		IsActive:     &active,
	})
}

// AuthenticateUser verifies the password and records the login on success.
// Inactive accounts are refused before any hash comparison runs.
func (s *CredentialService) AuthenticateUser(ctx context.Context, u *entity.User, plain string) (*entity.User, error) {
	if !u.IsActive() {
		return nil, domain.ErrInactiveAccount
	}
	ok, err := s.hasher.Compare(ctx, plain, u.PasswordHash().Value())
	if err != nil {
		return nil, domain.Internal(err)
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	u.RecordLogin()
	return u, nil
}

// ChangeUserPassword verifies the current password, validates the new one,
// refuses reuse of the current password and installs the new digest.
func (s *CredentialService) ChangeUserPassword(ctx context.Context, u *entity.User, current, next string) (*entity.User, error) {
	ok, err := s.hasher.Compare(ctx, current, u.PasswordHash().Value())
	if err != nil {
		return nil, domain.Internal(err)
	}
	if !ok {
		return nil, domain.New(domain.KindAuth, domain.CodeInvalidCredentials, "current password is incorrect")
	}

	if err := ValidatePassword(next); err != nil {
		return nil, err
	}

	same, err := s.hasher.Compare(ctx, next, u.PasswordHash().Value())
	if err != nil {
		return nil, domain.Internal(err)
	}
	if same {
		return nil, domain.ErrPasswordReuse
	}

	digest, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return nil, domain.Internal(err)
	}
	h, err := vo.NewPasswordHash(digest)
	if err != nil {
		return nil, err
	}
	if err := u.ChangePassword(h); err != nil {
		return nil, err
	}
	return u, nil
}

// ValidatePassword applies the strength rules in order.
func ValidatePassword(p string) error {
	if p == "" {
		return domain.WeakPassword(RuleRequired, "password is required")
	}
	n := utf8.RuneCountInString(p)
	if n < MinPasswordLength {
		return domain.WeakPassword(RuleLength, "password must be at least 8 characters long")
	}
	if n > MaxPasswordLength {
		return domain.WeakPassword(RuleLength, "password must not exceed 128 characters")
	}
	var digit, letter bool
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c >= '0' && c <= '9':
			digit = true
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			letter = true
		}
	}
	if !digit {
		return domain.WeakPassword(RuleDigit, "password must contain at least one number")
	}
	if !letter {
		return domain.WeakPassword(RuleLetter, "password must contain at least one letter")
	}
	return nil
}

// ValidateProfileUpdate accepts only firstName/lastName keys and at least one of them.
func (s *CredentialService) ValidateProfileUpdate(updates map[string]any) error {
	var invalid []string
	for k := range updates {
		if k != FieldFirstName && k != FieldLastName {
			invalid = append(invalid, k)
		}
	}
	if len(invalid) > 0 {
		return domain.InvalidFields(invalid)
	}
	if len(updates) == 0 {
		return domain.ErrNoFieldsProvided
	}
	return nil
}
