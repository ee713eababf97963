package loans

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/lendshelf/lendshelf/pkg/qrcodes"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Borrowing statuses, derived from the due date on every read.
const (
	StatusOverdue  = "overdue"
	StatusDueToday = "due_today"
	StatusNotDue   = "not_due"
)

type BorrowOptions struct {
	BookID int
	User   *models.User
	// Days defaults to the configured loan length. Any value is accepted.
	Days *int
	// Today defaults to the current date.
	Today *time.Time
}

type BorrowResult struct {
	Success    bool   `json:"success"`
	BookTitle  string `json:"book_title"`
	BookAuthor string `json:"book_author"`
	DueDate    string `json:"due_date"`
	CopyID     int    `json:"copy_id"`
}

type Borrowing struct {
	CopyID        int          `json:"copy_id"`
	Book          *models.Book `json:"book"`
	BorrowedDate  string       `json:"borrowed_date"`
	DueDate       string       `json:"due_date"`
	Status        string       `json:"status"`
	DaysOverdue   *int         `json:"days_overdue,omitempty"`
	DaysRemaining *int         `json:"days_remaining,omitempty"`
}

type Service struct {
	db          *bun.DB
	qrService   *qrcodes.Service
	defaultDays int
}

func NewService(db *bun.DB, qrService *qrcodes.Service, defaultDays int) *Service {
	return &Service{db: db, qrService: qrService, defaultDays: defaultDays}
}

func (svc *Service) retrieveBook(ctx context.Context, id int) (*models.Book, error) {
	book := &models.Book{}
	err := svc.db.NewSelect().
		Model(book).
		Where("b.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}
	return book, nil
}

// Borrow lends the lowest-id available copy of the book to the user. The claim
// is a single UPDATE conditional on the copy still having no borrower, so two
// callers can never end up holding the same copy. Losing that race counts as
// there being no available copy.
func (svc *Service) Borrow(ctx context.Context, opts BorrowOptions) (*BorrowResult, error) {
	if opts.User == nil {
		return nil, errcodes.Unauthorized("")
	}

	book, err := svc.retrieveBook(ctx, opts.BookID)
	if err != nil {
		return nil, err
	}

	days := svc.defaultDays
	if opts.Days != nil {
		days = *opts.Days
	}
	today := models.Date(time.Now())
	if opts.Today != nil {
		today = models.Date(*opts.Today)
	}
	if days > models.DaysBetween(today, models.MaxDate) || days < models.DaysBetween(today, models.MinDate) {
		return nil, errcodes.ValidationError(fmt.Sprintf(`"days" must keep the due date between %s and %s`,
			models.DateString(models.MinDate), models.DateString(models.MaxDate)))
	}

	bc := &models.BookCopy{}
	err = svc.db.NewSelect().
		Model(bc).
		Where("bc.book_id = ?", book.ID).
		Where("bc.borrower_id IS NULL").
		Order("bc.id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NoAvailableCopy()
		}
		return nil, errors.WithStack(err)
	}

	err = bc.Transition(models.CopyStateBorrowed, &models.Loan{
		BorrowerID:   opts.User.ID,
		BorrowedDate: today,
		DueDate:      today.AddDate(0, 0, days),
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	bc.UpdatedAt = time.Now()

	res, err := svc.db.NewUpdate().
		Model(bc).
		Column(models.CopyStateColumns...).
		WherePK().
		Where("borrower_id IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errcodes.NoAvailableCopy()
	}

	if svc.qrService != nil {
		svc.qrService.Ensure(ctx, bc)
	}

	return &BorrowResult{
		Success:    true,
		BookTitle:  book.Title,
		BookAuthor: book.Author,
		DueDate:    models.DateString(*bc.DueDate),
		CopyID:     bc.ID,
	}, nil
}

// Return gives back the lowest-id copy of the book the user holds. It's a
// no-op when they hold none.
func (svc *Service) Return(ctx context.Context, bookID int, user *models.User) error {
	if user == nil {
		return errcodes.Unauthorized("")
	}

	book, err := svc.retrieveBook(ctx, bookID)
	if err != nil {
		return err
	}

	bc := &models.BookCopy{}
	err = svc.db.NewSelect().
		Model(bc).
		Where("bc.book_id = ?", book.ID).
		Where("bc.borrower_id = ?", user.ID).
		Order("bc.id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return errors.WithStack(err)
	}

	if err := bc.Transition(models.CopyStateAvailable, nil); err != nil {
		return errors.WithStack(err)
	}
	bc.UpdatedAt = time.Now()

	_, err = svc.db.NewUpdate().
		Model(bc).
		Column(models.CopyStateColumns...).
		WherePK().
		Where("borrower_id = ?", user.ID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	if svc.qrService != nil {
		svc.qrService.Ensure(ctx, bc)
	}
	return nil
}

// ReleaseAll returns every copy the user holds. It runs before a user is
// deleted.
func (svc *Service) ReleaseAll(ctx context.Context, db bun.IDB, userID int) (int, error) {
	res, err := db.NewUpdate().
		Model((*models.BookCopy)(nil)).
		Set("is_available = ?", true).
		Set("borrower_id = NULL").
		Set("borrowed_date = NULL").
		Set("due_date = NULL").
		Set("updated_at = ?", time.Now()).
		Where("borrower_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListBorrowings returns the user's borrowed copies, soonest due first, with
// their status relative to today.
func (svc *Service) ListBorrowings(ctx context.Context, user *models.User, today time.Time) ([]*Borrowing, error) {
	if user == nil {
		return nil, errcodes.Unauthorized("")
	}

	copies := []*models.BookCopy{}
	err := svc.db.NewSelect().
		Model(&copies).
		Relation("Book").
		Where("bc.borrower_id = ?", user.ID).
		Order("bc.due_date ASC", "bc.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	today = models.Date(today)
	borrowings := make([]*Borrowing, 0, len(copies))
	for _, bc := range copies {
		if bc.DueDate == nil || bc.BorrowedDate == nil {
			continue
		}
		b := &Borrowing{
			CopyID:       bc.ID,
			Book:         bc.Book,
			BorrowedDate: models.DateString(*bc.BorrowedDate),
			DueDate:      models.DateString(*bc.DueDate),
		}
		b.Status, b.DaysOverdue, b.DaysRemaining = Classify(*bc.DueDate, today)
		borrowings = append(borrowings, b)
	}
	return borrowings, nil
}

// Classify compares a due date with today. Exactly one of the day counts is
// set unless the copy is due today.
func Classify(due, today time.Time) (string, *int, *int) {
	days := models.DaysBetween(today, due)
	switch {
	case days < 0:
		overdue := -days
		return StatusOverdue, &overdue, nil
	case days == 0:
		return StatusDueToday, nil, nil
	default:
		return StatusNotDue, nil, &days
	}
}
