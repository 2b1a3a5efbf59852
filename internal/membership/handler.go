package membership

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"libris-backend/internal/platform/apperr"
	"libris-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/members", h.List)
	r.GET("/members/:member_id", h.Get)

	manage := auth.RequireMemberManager()
	r.POST("/members", manage, h.Register)
	r.PUT("/members/:member_id", manage, h.Update)
	r.POST("/members/:member_id/suspend", manage, h.Suspend)
	r.DELETE("/members/:member_id", manage, h.Delete)
}

func (h *Handler) List(c *gin.Context) {
	members, err := h.svc.List(c.Request.Context())
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	member, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": member})
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, "invalid json or missing required fields"))
		return
	}
	member, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"member": member})
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, "invalid json"))
		return
	}
	member, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": member})
}

func (h *Handler) Suspend(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Suspend(c.Request.Context(), id); err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member suspended"})
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member deleted"})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("member_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, "member_id must be a positive integer"))
		return 0, false
	}
	return id, true
}
