package modules

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain/valueobject"
	handlers "github.com/iYoNuttxD/user-service-microservice/internal/interface/http"
	"github.com/iYoNuttxD/user-service-microservice/internal/interface/middleware"
)

// Policy actions checked for the admin routes.
const (
	ActionList       = "users:list"
	ActionSearch     = "users:search"
	ActionActivate   = "users:activate"
	ActionDeactivate = "users:deactivate"
)

// AdminModule exposes the user directory behind authentication, the admin
// role and the policy engine. A token is always required here.
type AdminModule struct {
	Handler  *handlers.AdminHandler
	Verifier middleware.TokenVerifier
	Policy   middleware.PolicyChecker
	Logger   logrus.FieldLogger
}

func (m *AdminModule) Register(rg *gin.RouterGroup) {
	admin := rg.Group("/admin/users")
	admin.Use(
		middleware.Authenticate(m.Verifier, true, m.Logger),
		middleware.RequireRole(valueobject.RoleNameAdmin),
	)

	all := middleware.StaticResource("users")
	one := middleware.ResourceWithParam("users", "id")
	admin.GET("", middleware.RequirePolicy(m.Policy, ActionList, all), m.Handler.List)
	admin.GET("/search", middleware.RequirePolicy(m.Policy, ActionSearch, all), m.Handler.Search)
	admin.POST("/:id/activate", middleware.RequirePolicy(m.Policy, ActionActivate, one), m.Handler.Activate)
	admin.POST("/:id/deactivate", middleware.RequirePolicy(m.Policy, ActionDeactivate, one), m.Handler.Deactivate)
}
