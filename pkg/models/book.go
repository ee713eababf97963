package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	UnknownAuthor      = "未知"
	DefaultCopiesCount = 1
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID             int          `bun:",pk,nullzero" json:"id"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Title          string       `bun:",nullzero" json:"title"`
	Author         string       `bun:",nullzero" json:"author"`
	Description    string       `json:"description"`
	Keywords       *string      `json:"keywords"`
	RecommendedAge *int         `json:"recommended_age"`
	CopiesCount    int          `json:"copies_count"`
	CoverImage     *string      `json:"cover_image"`
	Copies         []*BookCopy  `bun:"rel:has-many,join:id=book_id" json:"copies,omitempty"`
	Images         []*BookImage `bun:"rel:has-many,join:id=book_id" json:"images,omitempty"`
}

// AvailableCopies counts the loaded copies that can currently be borrowed.
func (b *Book) AvailableCopies() int {
	n := 0
	for _, c := range b.Copies {
		if c.State() == CopyStateAvailable {
			n++
		}
	}
	return n
}

type BookImage struct {
	bun.BaseModel `bun:"table:book_images,alias:bi"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	BookID    int       `bun:",nullzero" json:"book_id"`
	Image     string    `bun:",nullzero" json:"image"`
	Caption   string    `json:"caption"`
	SortOrder int       `json:"order"`
}
