package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/token"
	"github.com/iYoNuttxD/user-service-microservice/pkg/response"
)

// Gin context keys set by Authenticate.
const (
	CtxPrincipalKey = "principal"
	CtxUserIDKey    = "userID"
)

type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (token.Principal, error)
}

// Authenticate reads a Bearer token from the Authorization header and stores
// the verified principal in both the gin and the request context.
// When required is false a request without the header passes anonymously;
// a malformed or invalid token is always rejected.
func Authenticate(v TokenVerifier, required bool, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			if required {
				abortUnauthorized(c, domain.ErrMissingCredentials)
				return
			}
			c.Next()
			return
		}

		raw, ok := bearer(header)
		if !ok {
			abortUnauthorized(c, domain.New(domain.KindAuth, domain.CodeInvalidToken, "invalid authorization header format"))
			return
		}

		p, err := v.Verify(c.Request.Context(), raw)
		if err != nil {
			logger.WithError(err).WithField("request_id", c.GetString("request_id")).Debug("token rejected")
			abortUnauthorized(c, domain.ErrInvalidToken)
			return
		}

		c.Set(CtxPrincipalKey, p)
		c.Set(CtxUserIDKey, p.UserID)
		c.Request = c.Request.WithContext(token.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// CurrentPrincipal returns the principal stored by Authenticate.
func CurrentPrincipal(c *gin.Context) (token.Principal, bool) {
	v, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return token.Principal{}, false
	}
	p, ok := v.(token.Principal)
	return p, ok && p.UserID != ""
}

// bearer matches the scheme case-insensitively (RFC 6750).
func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}

func abortUnauthorized(c *gin.Context, e *domain.Error) {
	response.Abort(c, response.Error[any](c, http.StatusUnauthorized, e.Message, response.ErrorBody{Code: e.Code}))
}
