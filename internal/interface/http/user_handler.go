package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/iYoNuttxD/user-service-microservice/internal/application"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
	"github.com/iYoNuttxD/user-service-microservice/internal/interface/middleware"
	"github.com/iYoNuttxD/user-service-microservice/pkg/response"
)

// UserHandler serves the public and self-service user endpoints.
type UserHandler struct {
	Svc    *application.UserService
	Logger logrus.FieldLogger
}

func NewUserHandler(svc *application.UserService, logger logrus.FieldLogger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

type registerRequest struct {
	Email     string `json:"email" binding:"required,email,max=255"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	v, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.JSON(c, response.Success(c, http.StatusCreated, v, "user registered successfully", nil))
}

func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	res, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.JSON(c, response.Success(c, http.StatusOK, res, "login successful", nil))
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		writeUnauthenticated(c)
		return
	}
	profile, err := h.Svc.GetProfile(c.Request.Context(), p.UserID, p.UserID)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.JSON(c, response.Success(c, http.StatusOK, profile, "profile retrieved successfully", nil))
}

// UpdateProfile takes the raw JSON object so unexpected keys can be reported
// instead of silently dropped.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		writeUnauthenticated(c)
		return
	}
	var updates map[string]any
	if err := c.ShouldBindJSON(&updates); err != nil {
		writeBindError(c, err)
		return
	}
	if updates == nil {
		writeError(c, h.Logger, domain.ErrNoFieldsProvided)
		return
	}
	v, err := h.Svc.UpdateProfile(c.Request.Context(), p.UserID, p.UserID, updates)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.JSON(c, response.Success(c, http.StatusOK, v, "profile updated successfully", nil))
}

func (h *UserHandler) ChangePassword(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		writeUnauthenticated(c)
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if err := h.Svc.ChangePassword(c.Request.Context(), p.UserID, p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.JSON(c, response.Success(c, http.StatusOK, gin.H{"changed": true}, "password changed successfully", nil))
}
