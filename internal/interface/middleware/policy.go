package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/opa"
	"github.com/iYoNuttxD/user-service-microservice/pkg/response"
)

type PolicyChecker interface {
	CheckPolicy(ctx context.Context, req opa.PolicyRequest) bool
}

// ResourceFunc names the resource a request acts on, e.g. "users/<id>".
type ResourceFunc func(c *gin.Context) string

// StaticResource always names the same resource.
func StaticResource(name string) ResourceFunc {
	return func(*gin.Context) string { return name }
}

// ResourceWithParam appends the named path parameter: prefix + "/" + value.
func ResourceWithParam(prefix, param string) ResourceFunc {
	return func(c *gin.Context) string {
		if v := c.Param(param); v != "" {
			return prefix + "/" + v
		}
		return prefix
	}
}

// RequirePolicy asks the policy engine whether the authenticated principal
// may perform action on the resource. It must run after Authenticate.
func RequirePolicy(pc PolicyChecker, action string, resource ResourceFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			abortUnauthorized(c, domain.ErrMissingCredentials)
			return
		}

		allowed := pc.CheckPolicy(c.Request.Context(), opa.PolicyRequest{
			Subject:  opa.Subject{ID: p.UserID, Email: p.Email, Roles: p.Roles},
			Action:   action,
			Resource: resource(c),
			Context: map[string]any{
				"method":     c.Request.Method,
				"path":       c.FullPath(),
				"ip":         ipFromCtx(c),
				"request_id": c.GetString("request_id"),
			},
		})
		if !allowed {
			response.Abort(c, response.Error[any](c, http.StatusForbidden, "access denied by policy",
				response.ErrorBody{Code: domain.CodeForbidden}))
			return
		}
		c.Next()
	}
}

// RequireRole rejects principals lacking role before any policy call, so the
// route stays restricted when the policy engine is unreachable and fails open.
// It must run after Authenticate.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			abortUnauthorized(c, domain.ErrMissingCredentials)
			return
		}
		if !p.HasRole(role) {
			response.Abort(c, response.Error[any](c, http.StatusForbidden, "insufficient role",
				response.ErrorBody{Code: domain.CodeForbidden}))
			return
		}
		c.Next()
	}
}
