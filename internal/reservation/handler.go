package reservation

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

	r.GET("/reservations", h.List)
	r.GET("/reservations/member/:member_id", h.ListByMember)
	r.GET("/reservations/:reservation_id", h.Get)

	r.POST("/reservations", h.Create)
	r.POST("/reservations/:reservation_id/cancel", h.Cancel)
	r.POST("/reservations/expire", auth.RequireCirculator(), h.Expire)
}

func (h *Handler) List(c *gin.Context) {
	reservations, err := h.svc.List(c.Request.Context())
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": reservations})
}

func (h *Handler) ListByMember(c *gin.Context) {
	id, ok := pathID(c, "member_id")
	if !ok {
		return
	}
	reservations, err := h.svc.ListByMember(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservations": reservations})
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c, "reservation_id")
	if !ok {
		return
	}
	reservation, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservation": reservation})
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, "invalid json or missing required fields"))
		return
	}
	reservation, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reservation": reservation})
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "reservation_id")
	if !ok {
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), id); err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reservation cancelled"})
}

func (h *Handler) Expire(c *gin.Context) {
	n, err := h.svc.ExpireSweep(c.Request.Context())
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, name+" must be a positive integer"))
		return 0, false
	}
	return id, true
}
