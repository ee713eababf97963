package loans

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/binder"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/mediastore"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/lendshelf/lendshelf/pkg/qrcodes"
	"github.com/lendshelf/lendshelf/pkg/testutils"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type disabledQR struct{}

func (disabledQR) Available() bool                { return false }
func (disabledQR) Render(string) ([]byte, error) { return nil, nil }

func newTestService(t *testing.T) (*bun.DB, *Service) {
	t.Helper()
	db := testutils.NewTestDB(t)
	qrService := qrcodes.NewService(db, mediastore.NewMemoryStore(), disabledQR{})
	return db, NewService(db, qrService, 7)
}

func createBookWithCopies(t *testing.T, db *bun.DB, title string, n int) *models.Book {
	t.Helper()
	book := testutils.CreateBook(t, db, title, "作者")
	for i := 0; i < n; i++ {
		_, err := db.NewInsert().Model(models.NewBookCopy(book.ID)).Exec(context.Background())
		require.NoError(t, err)
	}
	return book
}

func loadCopies(t *testing.T, db *bun.DB, bookID int) []*models.BookCopy {
	t.Helper()
	copies := []*models.BookCopy{}
	err := db.NewSelect().Model(&copies).Where("bc.book_id = ?", bookID).Order("bc.id ASC").Scan(context.Background())
	require.NoError(t, err)
	return copies
}

func TestBorrow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, svc := newTestService(t)
	user := testutils.CreateUser(t, db, "reader", models.RoleReader, "password123")
	book := createBookWithCopies(t, db, "骆驼祥子", 2)
	today := time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC)

	result, err := svc.Borrow(ctx, BorrowOptions{BookID: book.ID, User: user, Today: &today})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "骆驼祥子", result.BookTitle)
	assert.Equal(t, "作者", result.BookAuthor)
	assert.Equal(t, "2026-10-25", result.DueDate)

	copies := loadCopies(t, db, book.ID)
	assert.Equal(t, copies[0].ID, result.CopyID)
	assert.Equal(t, models.CopyStateBorrowed, copies[0].State())
	assert.True(t, copies[0].Consistent())
	assert.Equal(t, "2026-10-18", models.DateString(*copies[0].BorrowedDate))
	assert.Equal(t, models.CopyStateAvailable, copies[1].State())

	result, err = svc.Borrow(ctx, BorrowOptions{BookID: book.ID, User: user, Days: pointerutil.Int(-2), Today: &today})
	require.NoError(t, err)
	assert.Equal(t, "2026-10-16", result.DueDate)
	assert.Equal(t, copies[1].ID, result.CopyID)

	_, err = svc.Borrow(ctx, BorrowOptions{BookID: book.ID, User: user, Today: &today})
	assert.Equal(t, errcodes.NoAvailableCopy(), err)
}

func TestBorrow_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, svc := newTestService(t)
	user := testutils.CreateUser(t, db, "reader", models.RoleReader, "password123")
	book := createBookWithCopies(t, db, "四世同堂", 1)

	_, err := svc.Borrow(ctx, BorrowOptions{BookID: book.ID})
	assert.Equal(t, errcodes.Unauthorized(""), err)

	_, err = svc.Borrow(ctx, BorrowOptions{BookID: 999, User: user})
	assert.Equal(t, errcodes.NotFound("Book"), err)

	empty := createBookWithCopies(t, db, "空书", 0)
	_, err = svc.Borrow(ctx, BorrowOptions{BookID: empty.ID, User: user})
	assert.Equal(t, errcodes.NoAvailableCopy(), err)

	// Nothing changed.
	copies := loadCopies(t, db, book.ID)
	assert.Equal(t, models.CopyStateAvailable, copies[0].State())
}

func TestBorrow_ConcurrentClaims(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, svc := newTestService(t)
	book := createBookWithCopies(t, db, "正红旗下", 3)

	users := make([]*models.User, 10)
	for i := range users {
		users[i] = testutils.CreateUser(t, db, "reader"+strconv.Itoa(i), models.RoleReader, "password123")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for _, user := range users {
		wg.Add(1)
		go func(user *models.User) {
			defer wg.Done()
			_, err := svc.Borrow(ctx, BorrowOptions{BookID: book.ID, User: user})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if assert.Equal(t, errcodes.NoAvailableCopy(), err) {
				rejected++
			}
		}(user)
	}
	wg.Wait()

	// A caller that loses the claim is rejected even if another copy is still
	// free, so only the upper bound is fixed.
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.LessOrEqual(t, succeeded, 3)
	assert.Equal(t, len(users), succeeded+rejected)

	borrowers := map[int]bool{}
	for _, bc := range loadCopies(t, db, book.ID) {
		assert.True(t, bc.Consistent())
		if bc.BorrowerID == nil {
			continue
		}
		assert.False(t, borrowers[*bc.BorrowerID], "copy holders must be distinct")
		borrowers[*bc.BorrowerID] = true
	}
	assert.Len(t, borrowers, succeeded)
}

func TestReturn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, svc := newTestService(t)
	alice := testutils.CreateUser(t, db, "alice", models.RoleReader, "password123")
	bob := testutils.CreateUser(t, db, "bob", models.RoleReader, "password123")
	book := createBookWithCopies(t, db, "茶馆", 2)

	_, err := svc.Borrow(ctx, BorrowOptions{BookID: book.ID, User: alice})
	require.NoError(t, err)

	// Bob holds nothing, so this is a no-op.
	require.NoError(t, svc.Return(ctx, book.ID, bob))
	copies := loadCopies(t, db, book.ID)
	assert.Equal(t, models.CopyStateBorrowed, copies[0].State())

	require.NoError(t, svc.Return(ctx, book.ID, alice))
	copies = loadCopies(t, db, book.ID)
	assert.Equal(t, models.CopyStateAvailable, copies[0].State())
	assert.True(t, copies[0].Consistent())

	assert.Equal(t, errcodes.NotFound("Book"), svc.Return(ctx, 999, alice))
	assert.Equal(t, errcodes.Unauthorized(""), svc.Return(ctx, book.ID, nil))
}

func TestReleaseAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, svc := newTestService(t)
	user := testutils.CreateUser(t, db, "leaving", models.RoleReader, "password123")
	first := createBookWithCopies(t, db, "家", 1)
	second := createBookWithCopies(t, db, "春", 1)

	for _, book := range []*models.Book{first, second} {
		_, err := svc.Borrow(ctx, BorrowOptions{BookID: book.ID, User: user})
		require.NoError(t, err)
	}

	n, err := svc.ReleaseAll(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, book := range []*models.Book{first, second} {
		bc := loadCopies(t, db, book.ID)[0]
		assert.Equal(t, models.CopyStateAvailable, bc.State())
		assert.True(t, bc.Consistent())
	}
}

func TestListBorrowings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, svc := newTestService(t)
	user := testutils.CreateUser(t, db, "reader", models.RoleReader, "password123")
	today := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	lent := today.AddDate(0, 0, -10)

	for title, days := range map[string]int{"逾期": 7, "今天": 10, "未到期": 14} {
		book := createBookWithCopies(t, db, title, 1)
		_, err := svc.Borrow(ctx, BorrowOptions{BookID: book.ID, User: user, Days: pointerutil.Int(days), Today: &lent})
		require.NoError(t, err)
	}

	borrowings, err := svc.ListBorrowings(ctx, user, today)
	require.NoError(t, err)
	require.Len(t, borrowings, 3)

	assert.Equal(t, "逾期", borrowings[0].Book.Title)
	assert.Equal(t, StatusOverdue, borrowings[0].Status)
	require.NotNil(t, borrowings[0].DaysOverdue)
	assert.Equal(t, 3, *borrowings[0].DaysOverdue)
	assert.Nil(t, borrowings[0].DaysRemaining)

	assert.Equal(t, StatusDueToday, borrowings[1].Status)
	assert.Nil(t, borrowings[1].DaysOverdue)
	assert.Nil(t, borrowings[1].DaysRemaining)

	assert.Equal(t, StatusNotDue, borrowings[2].Status)
	require.NotNil(t, borrowings[2].DaysRemaining)
	assert.Equal(t, 4, *borrowings[2].DaysRemaining)
}

func TestBorrow_LongLoans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, svc := newTestService(t)
	user := testutils.CreateUser(t, db, "reader", models.RoleReader, "password123")
	today := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	long := createBookWithCopies(t, db, "千年", 1)
	result, err := svc.Borrow(ctx, BorrowOptions{BookID: long.ID, User: user, Days: pointerutil.Int(200000), Today: &today})
	require.NoError(t, err)
	assert.Equal(t, "2574-05-18", result.DueDate)

	last := createBookWithCopies(t, db, "万年", 1)
	maxDays := models.DaysBetween(today, models.MaxDate)
	result, err = svc.Borrow(ctx, BorrowOptions{BookID: last.ID, User: user, Days: pointerutil.Int(maxDays), Today: &today})
	require.NoError(t, err)
	assert.Equal(t, "9999-12-31", result.DueDate)

	borrowings, err := svc.ListBorrowings(ctx, user, today)
	require.NoError(t, err)
	require.Len(t, borrowings, 2)
	require.NotNil(t, borrowings[0].DaysRemaining)
	assert.Equal(t, 200000, *borrowings[0].DaysRemaining)
	require.NotNil(t, borrowings[1].DaysRemaining)
	assert.Equal(t, maxDays, *borrowings[1].DaysRemaining)

	tooLong := createBookWithCopies(t, db, "永远", 1)
	for _, days := range []int{maxDays + 1, 3000000, -800000} {
		_, err = svc.Borrow(ctx, BorrowOptions{BookID: tooLong.ID, User: user, Days: pointerutil.Int(days), Today: &today})
		var e *errcodes.Error
		require.ErrorAs(t, err, &e, "days=%d", days)
		assert.Equal(t, http.StatusUnprocessableEntity, e.HTTPCode)
	}
	copies := loadCopies(t, db, tooLong.ID)
	assert.Equal(t, models.CopyStateAvailable, copies[0].State())
}

func TestHandlers(t *testing.T) {
	t.Parallel()
	db, svc := newTestService(t)
	user := testutils.CreateUser(t, db, "reader", models.RoleReader, "password123")
	book := createBookWithCopies(t, db, "月牙儿", 1)

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle
	authService := auth.NewService(db, "test-secret")
	authMiddleware := auth.NewMiddleware(authService)
	RegisterRoutes(e, e.Group("/books"), svc, authMiddleware)

	token, err := authService.GenerateToken(user)
	require.NoError(t, err)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		}
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rr := httptest.NewRecorder()
		e.ServeHTTP(rr, req)
		return rr
	}

	borrowPath := "/books/" + strconv.Itoa(book.ID) + "/borrow"

	rr := do(http.MethodPost, borrowPath, `{"days":3}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	result := BorrowResult{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, models.DateString(models.Date(time.Now()).AddDate(0, 0, 3)), result.DueDate)

	rr = do(http.MethodPost, borrowPath, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "no_available_copy")

	rr = do(http.MethodGet, "/borrowings", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":1`)

	rr = do(http.MethodPost, "/books/"+strconv.Itoa(book.ID)+"/return", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	req := httptest.NewRequest(http.MethodPost, borrowPath, nil)
	rr = httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
