package models

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type CopyState string

const (
	CopyStateAvailable CopyState = "available"
	CopyStateBorrowed  CopyState = "borrowed"
)

// CopyStateColumns are the columns a state transition writes. They are always
// updated together.
var CopyStateColumns = []string{"is_available", "borrower_id", "borrowed_date", "due_date", "updated_at"}

var ErrInvalidTransition = errors.New("invalid copy state transition")

type BookCopy struct {
	bun.BaseModel `bun:"table:book_copies,alias:bc"`

	ID           int        `bun:",pk,nullzero" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	BookID       int        `bun:",nullzero" json:"book_id"`
	Book         *Book      `bun:"rel:belongs-to,join:book_id=id" json:"book,omitempty"`
	IsAvailable  bool       `json:"is_available"`
	BorrowerID   *int       `json:"borrower_id"`
	Borrower     *User      `bun:"rel:belongs-to,join:borrower_id=id" json:"borrower,omitempty"`
	BorrowedDate *time.Time `json:"borrowed_date"`
	DueDate      *time.Time `json:"due_date"`
	QRCode       *string    `bun:"qr_code" json:"qr_code"`
}

// NewBookCopy returns an available copy of the given book.
func NewBookCopy(bookID int) *BookCopy {
	return &BookCopy{BookID: bookID, IsAvailable: true}
}

// State is derived from whether the copy has a borrower.
func (c *BookCopy) State() CopyState {
	if c.BorrowerID == nil {
		return CopyStateAvailable
	}
	return CopyStateBorrowed
}

// Loan is what a copy carries while it is borrowed.
type Loan struct {
	BorrowerID   int
	BorrowedDate time.Time
	DueDate      time.Time
}

// Transition moves the copy into state `to`, writing the availability flag,
// borrower and both dates together. Moving to borrowed requires a loan and an
// available copy; moving to available requires a borrowed copy.
func (c *BookCopy) Transition(to CopyState, loan *Loan) error {
	from := c.State()
	switch {
	case from == CopyStateAvailable && to == CopyStateBorrowed:
		if loan == nil {
			return errors.Wrap(ErrInvalidTransition, "borrowing requires a loan")
		}
		borrowerID := loan.BorrowerID
		borrowed := Date(loan.BorrowedDate)
		due := Date(loan.DueDate)
		c.IsAvailable = false
		c.BorrowerID = &borrowerID
		c.BorrowedDate = &borrowed
		c.DueDate = &due
	case from == CopyStateBorrowed && to == CopyStateAvailable:
		c.IsAvailable = true
		c.BorrowerID = nil
		c.BorrowedDate = nil
		c.DueDate = nil
	default:
		return errors.Wrap(ErrInvalidTransition, fmt.Sprintf("copy %d: %s -> %s", c.ID, from, to))
	}
	return nil
}

// Consistent reports whether the availability flag, borrower and dates agree.
func (c *BookCopy) Consistent() bool {
	if c.BorrowerID == nil {
		return c.IsAvailable && c.BorrowedDate == nil && c.DueDate == nil
	}
	return !c.IsAvailable && c.BorrowedDate != nil && c.DueDate != nil
}

// Date truncates t to midnight UTC of its calendar day in t's location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// The dates the store can round-trip. SQLite keeps them as text with a
// four-digit year.
var (
	MinDate = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	MaxDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// DaysBetween counts calendar days from one date to another, negative when
// `to` is earlier. It doesn't go through time.Duration, which can't span more
// than about 292 years.
func DaysBetween(from, to time.Time) int {
	const secondsPerDay = 24 * 60 * 60
	return int(Date(to).Unix()/secondsPerDay - Date(from).Unix()/secondsPerDay)
}

// DateString formats a date as YYYY-MM-DD.
func DateString(t time.Time) string {
	return t.Format(time.DateOnly)
}
