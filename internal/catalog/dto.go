package catalog

// Book create request. Authors are ordered; categories are a set.
type CreateBookRequest struct {
	ISBN          string   `json:"isbn" binding:"required"`
	Title         string   `json:"title" binding:"required"`
	Publisher     *string  `json:"publisher,omitempty"`
	PublishedYear *int     `json:"published_year,omitempty"`
	Description   *string  `json:"description,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	Categories    []string `json:"categories,omitempty"`
}

// Partial patch: absent fields are left unchanged, never nulled.
type UpdateBookRequest struct {
	ISBN          *string   `json:"isbn,omitempty"`
	Title         *string   `json:"title,omitempty"`
	Publisher     *string   `json:"publisher,omitempty"`
	PublishedYear *int      `json:"published_year,omitempty"`
	Description   *string   `json:"description,omitempty"`
	Authors       *[]string `json:"authors,omitempty"`
	Categories    *[]string `json:"categories,omitempty"`
}

type BookResponse struct {
	BookID        int64    `json:"book_id"`
	ISBN          string   `json:"isbn"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Categories    []string `json:"categories"`
	Publisher     *string  `json:"publisher,omitempty"`
	PublishedYear *int     `json:"published_year,omitempty"`
	Description   *string  `json:"description,omitempty"`
}

type CopyResponse struct {
	CopyID    int64 `json:"copy_id"`
	BookID    int64 `json:"book_id"`
	Available bool  `json:"available"`
}

func buildBookResponse(b *Book, authors, categories []string) BookResponse {
	if authors == nil {
		authors = []string{}
	}
	if categories == nil {
		categories = []string{}
	}
	resp := BookResponse{
		BookID:     b.BookID,
		ISBN:       b.ISBN,
		Title:      b.Title,
		Authors:    authors,
		Categories: categories,
	}
	if b.Publisher.Valid {
		v := b.Publisher.String
		resp.Publisher = &v
	}
	if b.PublishedYear.Valid {
		v := int(b.PublishedYear.Int64)
		resp.PublishedYear = &v
	}
	if b.Description.Valid {
		v := b.Description.String
		resp.Description = &v
	}
	return resp
}
