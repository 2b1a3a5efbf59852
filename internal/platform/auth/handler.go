package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"libris-backend/internal/platform/apperr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/auth/login", h.Login)
	r.POST("/auth/register", RequireAdministrator(), h.Register)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, "email and password are required"))
		return
	}

	id, token, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  id,
		"token": token,
	})
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role,omitempty"`
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, "invalid json or missing required fields"))
		return
	}

	role := RoleMember
	if req.Role != "" {
		role = Role(req.Role)
	}

	id, err := h.svc.Register(c.Request.Context(), req.Name, req.Email, req.Password, role)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": id})
}
