package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/iYoNuttxD/user-service-microservice/internal/container"
	handlers "github.com/iYoNuttxD/user-service-microservice/internal/interface/http"
	"github.com/iYoNuttxD/user-service-microservice/internal/interface/middleware"
	"github.com/iYoNuttxD/user-service-microservice/internal/router/modules"
)

// New builds the gin engine with global middleware and every module.
func New(c *container.Container) *gin.Engine {
	cfg := c.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware(), middleware.RealIP())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins())))
	if cfg.HTTPLogEnabled {
		r.Use(middleware.AccessLog(c.Logger))
	}
	if cfg.MetricsEnabled {
		r.Use(c.Metrics.GinMiddleware())
	}

	reg := NewRegistry(r)
	InitModules(reg, c)
	reg.RegisterAll()
	return r
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders: []string{"Content-Length", middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
		cc.AllowCredentials = true
	}
	return cc
}

// InitModules registers all application modules with the registry.
func InitModules(r *Registry, c *container.Container) {
	cfg := c.Config

	var allow middleware.AllowFunc
	if cfg.RateLimitAllowPrivate {
		allow = middleware.AllowPrivateIP()
	}

	r.Add(&modules.UserModule{
		Handler:   handlers.NewUserHandler(c.Users, c.Logger),
		Verifier:  c.Verifier,
		Required:  cfg.JWTRequired,
		Redis:     c.Redis,
		RateLimit: middleware.Rule{Max: cfg.RateLimitMax, Window: cfg.RateLimitWindow},
		Allow:     allow,
		Logger:    c.Logger,
	})
	r.Add(&modules.AdminModule{
		Handler:  handlers.NewAdminHandler(c.Users, c.Logger),
		Verifier: c.Verifier,
		Policy:   c.Policy,
		Logger:   c.Logger,
	})

	ops := &modules.OpsModule{Health: handlers.NewHealthHandler(healthChecks(c)...)}
	if cfg.MetricsEnabled {
		ops.Metrics = c.Metrics.Handler()
	}
	r.AddRoot(ops)
}

func healthChecks(c *container.Container) []handlers.Check {
	var checks []handlers.Check
	if c.PGPool != nil {
		checks = append(checks, handlers.Check{Name: "database", Critical: true, Probe: c.PGPool.Ping})
	}
	checks = append(checks, handlers.Check{Name: "policy", Probe: func(ctx context.Context) error {
		h := c.Policy.HealthCheck(ctx)
		if !h.OK() {
			return fmt.Errorf("%s: %s", h.Status, h.Message)
		}
		return nil
	}})
	if c.KeySet != nil {
		checks = append(checks, handlers.Check{Name: "jwks", Probe: func(context.Context) error {
			if !c.KeySet.Ready() {
				return errors.New("no key set fetched yet")
			}
			return nil
		}})
	}
	if c.Index != nil {
		checks = append(checks, handlers.Check{Name: "search", Probe: c.Index.Ping})
	}
	return checks
}
