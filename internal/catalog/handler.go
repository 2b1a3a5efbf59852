package catalog

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

	r.GET("/books", h.ListBooks)
	r.GET("/books/search", h.SearchBooks)
	r.GET("/books/:book_id", h.GetBook)
	r.GET("/books/:book_id/copies", h.ListCopies)

	manage := auth.RequireCatalogManager()
	r.POST("/books", manage, h.CreateBook)
	r.PUT("/books/:book_id", manage, h.UpdateBook)
	r.DELETE("/books/:book_id", manage, h.DeleteBook)
	r.POST("/books/:book_id/copies", manage, h.AddCopy)
	r.DELETE("/books/:book_id/copies/:copy_id", manage, h.RemoveCopy)
}

func (h *Handler) ListBooks(c *gin.Context) {
	books, err := h.svc.ListBooks(c.Request.Context())
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

func (h *Handler) SearchBooks(c *gin.Context) {
	q := SearchQuery{
		ISBN:     c.Query("isbn"),
		Title:    c.Query("title"),
		Author:   c.Query("author"),
		Category: c.Query("category"),
	}
	books, err := h.svc.SearchBooks(c.Request.Context(), q)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

func (h *Handler) GetBook(c *gin.Context) {
	id, ok := pathID(c, "book_id")
	if !ok {
		return
	}
	book, err := h.svc.GetBook(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"book": book})
}

func (h *Handler) CreateBook(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, "invalid json or missing required fields"))
		return
	}
	book, err := h.svc.CreateBook(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"book": book})
}

func (h *Handler) UpdateBook(c *gin.Context) {
	id, ok := pathID(c, "book_id")
	if !ok {
		return
	}
	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, "invalid json"))
		return
	}
	book, err := h.svc.UpdateBook(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"book": book})
}

func (h *Handler) DeleteBook(c *gin.Context) {
	id, ok := pathID(c, "book_id")
	if !ok {
		return
	}
	if err := h.svc.DeleteBook(c.Request.Context(), id); err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "book deleted"})
}

func (h *Handler) AddCopy(c *gin.Context) {
	id, ok := pathID(c, "book_id")
	if !ok {
		return
	}
	cp, err := h.svc.AddCopy(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"copy": cp})
}

func (h *Handler) ListCopies(c *gin.Context) {
	id, ok := pathID(c, "book_id")
	if !ok {
		return
	}
	copies, err := h.svc.ListCopies(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"copies": copies})
}

func (h *Handler) RemoveCopy(c *gin.Context) {
	bookID, ok := pathID(c, "book_id")
	if !ok {
		return
	}
	copyID, ok := pathID(c, "copy_id")
	if !ok {
		return
	}
	if err := h.svc.RemoveCopy(c.Request.Context(), bookID, copyID); err != nil {
		c.JSON(apperr.HTTPStatus(err), apperr.BodyFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "copy removed"})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Body(apperr.CodeInvalidInput, name+" must be a positive integer"))
		return 0, false
	}
	return id, true
}
