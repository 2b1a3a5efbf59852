package lending

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

	r.GET("/loans", h.List)
	r.GET("/loans/active", h.ListActive)
	r.GET("/loans/overdue", h.ListOverdue)
	r.GET("/loans/member/:member_id", h.ListByMember)
	r.GET("/loans/:loan_id", h.Get)

	circulate := auth.RequireCirculator()
	r.POST("/loans/issue", circulate, h.Issue)
	r.POST("/loans/return", circulate, h.Return)
	r.POST("/loans/update-overdue", circulate, h.Sweep)
}

func (h *Handler) List(c *gin.Context) {
	loans, err := h.svc.List(c.Request.Context())
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"loans": loans})
}

func (h *Handler) ListActive(c *gin.Context) {
	loans, err := h.svc.ListByStatus(c.Request.Context(), StatusActive)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"loans": loans})
}

func (h *Handler) ListOverdue(c *gin.Context) {
	loans, err := h.svc.ListByStatus(c.Request.Context(), StatusOverdue)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"loans": loans})
}

func (h *Handler) ListByMember(c *gin.Context) {
	id, ok := pathID(c, "member_id")
	if !ok {
		return
	}
	loans, err := h.svc.ListByMember(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"loans": loans})
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c, "loan_id")
	if !ok {
		return
	}
	loan, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"loan": loan})
}

func (h *Handler) Issue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, "invalid json or missing required fields"))
		return
	}
	identity, _ := auth.IdentityFrom(c)
	loan, err := h.svc.Issue(c.Request.Context(), req, identity.UserID)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"loan": loan})
}

func (h *Handler) Return(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, "invalid json or missing required fields"))
		return
	}
	identity, _ := auth.IdentityFrom(c)
	result, err := h.svc.Return(c.Request.Context(), req, identity.UserID)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Sweep(c *gin.Context) {
	n, err := h.svc.Sweep(c.Request.Context())
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, name+" must be a positive integer"))
		return 0, false
	}
	return id, true
}
