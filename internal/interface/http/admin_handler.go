package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/iYoNuttxD/user-service-microservice/internal/application"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/repository"
	"github.com/iYoNuttxD/user-service-microservice/pkg/response"
)

// AdminHandler serves the user directory endpoints. Authorization happens
// in front of it in the policy middleware.
type AdminHandler struct {
	Svc    *application.UserService
	Logger logrus.FieldLogger
}

func NewAdminHandler(svc *application.UserService, logger logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{Svc: svc, Logger: logger}
}

type listQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100"`
	IsActive *bool  `form:"isActive"`
	Roles    string `form:"roles"`
}

type searchQuery struct {
	Q    string `form:"q" binding:"required"`
	Size int    `form:"size" binding:"omitempty,min=1,max=50"`
}

func (h *AdminHandler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}
	page, err := h.Svc.ListUsers(c.Request.Context(), repository.ListFilter{
		Page:     q.Page,
		Limit:    q.Limit,
		IsActive: q.IsActive,
		Roles:    splitCSV(q.Roles),
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.JSON(c, response.Success(c, http.StatusOK, page.Users, "users retrieved", response.PageMeta{
		Page:       page.Page,
		Limit:      page.Limit,
		Total:      page.Total,
		TotalPages: page.TotalPages,
	}))
}

func (h *AdminHandler) Search(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}
	docs, err := h.Svc.SearchUsers(c.Request.Context(), q.Q, q.Size)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.JSON(c, response.Success(c, http.StatusOK, docs, "search results", gin.H{"count": len(docs)}))
}

func (h *AdminHandler) Activate(c *gin.Context)   { h.setActive(c, true) }
func (h *AdminHandler) Deactivate(c *gin.Context) { h.setActive(c, false) }

func (h *AdminHandler) setActive(c *gin.Context, active bool) {
	v, err := h.Svc.SetActive(c.Request.Context(), c.Param("id"), active)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	msg := "user deactivated"
	if active {
		msg = "user activated"
	}
	response.JSON(c, response.Success(c, http.StatusOK, v, msg, nil))
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
