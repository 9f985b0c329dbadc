package modules

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	handlers "github.com/iYoNuttxD/user-service-microservice/internal/interface/http"
	"github.com/iYoNuttxD/user-service-microservice/internal/interface/middleware"
)

// UserModule wires the public and self-service user routes.
// Public: POST /users/register, POST /users/login (rate limited per IP)
// Authenticated: GET /users/me, PUT /users/me, PUT /users/me/password
// (the password route is rate limited per user)
type UserModule struct {
	Handler   *handlers.UserHandler
	Verifier  middleware.TokenVerifier
	Required  bool
	Redis     *redis.Client
	RateLimit middleware.Rule
	Allow     middleware.AllowFunc
	Logger    logrus.FieldLogger
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	limiter := middleware.RateLimit(m.Redis, m.RateLimit, middleware.KeyByIPAndPath(), m.Allow, m.Logger)
	perUser := middleware.RateLimit(m.Redis, m.RateLimit, middleware.KeyByUserID(), m.Allow, m.Logger)

	users := rg.Group("/users")
	users.POST("/register", limiter, m.Handler.Register)
	users.POST("/login", limiter, m.Handler.Login)

	me := users.Group("/me")
	me.Use(middleware.Authenticate(m.Verifier, m.Required, m.Logger))
	{
		me.GET("", m.Handler.GetProfile)
		me.PUT("", m.Handler.UpdateProfile)
		me.PUT("/password", perUser, m.Handler.ChangePassword)
	}
}
