// Package token mints and verifies the service's bearer tokens.
//
// Tokens are always issued with HS256 and the shared secret. Verification
// trusts either that same secret or a remote JWKS, chosen once at startup.
package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/entity"
)

const DefaultExpiry = time.Hour

// Claims is the wire shape of an access token.
type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

type IssuerConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	ExpiresIn time.Duration
}

type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewIssuer fails with domain.ErrSigningKeyMissing when no secret is set so
// that a misconfigured deployment dies at startup.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, domain.ErrSigningKeyMissing
	}
	ttl := cfg.ExpiresIn
	if ttl <= 0 {
		ttl = DefaultExpiry
	}
	return &Issuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// IssueToken signs a token for u. Only the id, email and role names are
// embedded; nothing derived from the password ever is.
func (i *Issuer) IssueToken(ctx context.Context, u *entity.User) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := i.now()
	claims := Claims{
		Email: u.Email().Value(),
		Roles: u.RoleNames(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID(),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", domain.Internal(err)
	}
	return s, nil
}

// Expiry is the configured token lifetime.
func (i *Issuer) Expiry() time.Duration { return i.ttl }
