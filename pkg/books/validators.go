package books

import (
	"mime/multipart"

	"github.com/lendshelf/lendshelf/pkg/models"
)

type ListBooksQuery struct {
	Limit  int     `query:"limit" json:"limit,omitempty" default:"24" validate:"min=1,max=100"`
	Offset int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Q      *string `query:"q" json:"q,omitempty" validate:"omitempty,max=100" mod:"trim"`
}

// CreateBookPayload is accepted as JSON or as a multipart form with an
// optional "cover" file.
type CreateBookPayload struct {
	Title          string  `json:"title" form:"title" validate:"required,max=100" mod:"trim"`
	Author         string  `json:"author" form:"author" validate:"required,max=100" mod:"trim"`
	Description    string  `json:"description" form:"description"`
	Keywords       *string `json:"keywords" form:"keywords" validate:"omitempty,max=200"`
	RecommendedAge *int    `json:"recommended_age" form:"recommended_age" validate:"omitempty,min=0,max=150"`
	CopiesCount    *int    `json:"copies_count" form:"copies_count" validate:"omitempty,min=0,max=1000"`

	FormFiles map[string]*multipart.FileHeader `json:"-" form:"-"`
}

type UpdateBookPayload struct {
	Title          *string `json:"title,omitempty" form:"title" validate:"omitempty,min=1,max=100"`
	Author         *string `json:"author,omitempty" form:"author" validate:"omitempty,min=1,max=100"`
	Description    *string `json:"description,omitempty" form:"description"`
	Keywords       *string `json:"keywords,omitempty" form:"keywords" validate:"omitempty,max=200"`
	RecommendedAge *int    `json:"recommended_age,omitempty" form:"recommended_age" validate:"omitempty,min=0,max=150"`
	CopiesCount    *int    `json:"copies_count,omitempty" form:"copies_count" validate:"omitempty,min=0,max=1000"`

	FormFiles map[string]*multipart.FileHeader `json:"-" form:"-"`
}

// BookResponse adds the caller-specific lending state to a book.
type BookResponse struct {
	*models.Book
	AvailableCopiesCount int  `json:"available_copies_count"`
	UserHasBorrowed      bool `json:"user_has_borrowed"`
}
