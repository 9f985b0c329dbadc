package modules

import (
	"net/http"

	"github.com/gin-gonic/gin"

	handlers "github.com/iYoNuttxD/user-service-microservice/internal/interface/http"
)

// OpsModule serves GET /health and, when a metrics handler is set, GET /metrics.
type OpsModule struct {
	Health  *handlers.HealthHandler
	Metrics http.Handler
}

func (m *OpsModule) Register(rg *gin.RouterGroup) {
	rg.GET("/health", m.Health.Health)
	if m.Metrics != nil {
		rg.GET("/metrics", gin.WrapH(m.Metrics))
	}
}
