package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
)

// KeyResolver looks up a verification key by the token's kid header.
// *RemoteKeySet is the production implementation.
type KeyResolver interface {
	Key(ctx context.Context, kid string) (any, error)
}

// asymmetric algorithms accepted from a remote key set
var remoteMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}

type VerifierConfig struct {
	Secret   string
	Issuer   string
	Audience string
	// KeySet takes precedence over Secret when both are set.
	KeySet KeyResolver
	Leeway time.Duration
}

type Verifier struct {
	secret   []byte
	keys     KeyResolver
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewVerifier picks the trust source. With neither a key set nor a secret it
// returns domain.ErrNoVerificationMethod.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	v := &Verifier{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		now:      time.Now,
	}
	switch {
	case cfg.KeySet != nil:
		v.keys = cfg.KeySet
	case cfg.Secret != "":
		v.secret = []byte(cfg.Secret)
	default:
		return nil, domain.ErrNoVerificationMethod
	}
	return v, nil
}

// UsesKeySet reports whether the remote key set is the trust source.
func (v *Verifier) UsesKeySet() bool { return v.keys != nil }

// Verify checks signature, issuer, audience and expiry. Every failure is
// reported as domain.ErrInvalidToken with the parser error as cause.
func (v *Verifier) Verify(ctx context.Context, raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, domain.InvalidToken(errors.New("empty token"))
	}
	opts := []jwt.ParserOption{
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	var keyFunc jwt.Keyfunc
	if v.keys != nil {
		opts = append(opts, jwt.WithValidMethods(remoteMethods))
		keyFunc = func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return v.keys.Key(ctx, kid)
		}
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		keyFunc = func(*jwt.Token) (any, error) { return v.secret, nil }
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, keyFunc, opts...)
	if err != nil {
		return Principal{}, domain.InvalidToken(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Principal{}, domain.InvalidToken(errors.New("token has no subject"))
	}
	return Principal{
		UserID: claims.Subject,
		Email:  claims.Email,
		Roles:  append([]string(nil), claims.Roles...),
	}, nil
}
