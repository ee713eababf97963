package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/binder"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/loans"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/lendshelf/lendshelf/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	auth.BcryptCost = bcrypt.MinCost
}

func newTestService(t *testing.T) (*bun.DB, *Service, *loans.Service) {
	t.Helper()
	db := testutils.NewTestDB(t)
	loanService := loans.NewService(db, nil, 7)
	return db, NewService(db, loanService), loanService
}

func TestDeleteUser_ReleasesBorrowedCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, svc, loanService := newTestService(t)

	reader := testutils.CreateUser(t, db, "小明", models.RoleReader, "password123")
	other := testutils.CreateUser(t, db, "小红", models.RoleReader, "password123")
	book := testutils.CreateBook(t, db, "城南旧事", "林海音")
	for i := 0; i < 2; i++ {
		_, err := db.NewInsert().Model(models.NewBookCopy(book.ID)).Exec(ctx)
		require.NoError(t, err)
	}

	_, err := loanService.Borrow(ctx, loans.BorrowOptions{BookID: book.ID, User: reader})
	require.NoError(t, err)
	_, err = loanService.Borrow(ctx, loans.BorrowOptions{BookID: book.ID, User: other})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, reader.ID))

	_, err = svc.RetrieveUser(ctx, reader.ID)
	assert.ErrorIs(t, err, errcodes.NotFound("User"))

	copies := []*models.BookCopy{}
	require.NoError(t, db.NewSelect().Model(&copies).Order("bc.id ASC").Scan(ctx))
	require.Len(t, copies, 2)
	assert.True(t, copies[0].IsAvailable)
	assert.Nil(t, copies[0].BorrowerID)
	assert.Nil(t, copies[0].DueDate)
	assert.False(t, copies[1].IsAvailable)
	require.NotNil(t, copies[1].BorrowerID)
	assert.Equal(t, other.ID, *copies[1].BorrowerID)
}

func TestDeleteUser_KeepsTheirJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, svc, _ := newTestService(t)

	admin := testutils.CreateUser(t, db, "admin", models.RoleAdmin, "password123")
	job := &models.Job{
		CreatedAt:   time.Now(),
		Type:        models.JobTypeQRCodes,
		Status:      models.JobStatusPending,
		Data:        "{}",
		CreatedByID: &admin.ID,
	}
	_, err := db.NewInsert().Model(job).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, admin.ID))

	stored := &models.Job{}
	require.NoError(t, db.NewSelect().Model(stored).Where("j.id = ?", job.ID).Scan(ctx))
	assert.Nil(t, stored.CreatedByID)
}

func TestDeleteUser_NotFound(t *testing.T) {
	t.Parallel()
	_, svc, _ := newTestService(t)

	err := svc.DeleteUser(context.Background(), 999)
	assert.ErrorIs(t, err, errcodes.NotFound("User"))
}

func TestListUsersWithTotal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, svc, _ := newTestService(t)

	for _, name := range []string{"甲", "乙", "丙"} {
		testutils.CreateUser(t, db, name, models.RoleReader, "password123")
	}

	limit, offset := 2, 1
	users, total, err := svc.ListUsersWithTotal(ctx, ListUsersOptions{Limit: &limit, Offset: &offset})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, users, 2)
	assert.Equal(t, "乙", users[0].Username)
	require.NotNil(t, users[0].Role)
	assert.Equal(t, models.RoleReader, users[0].Role.Name)
}

func TestHandlers(t *testing.T) {
	t.Parallel()
	db, svc, _ := newTestService(t)
	admin := testutils.CreateUser(t, db, "admin", models.RoleAdmin, "password123")
	reader := testutils.CreateUser(t, db, "reader", models.RoleReader, "password123")

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle
	authService := auth.NewService(db, "test-secret")
	RegisterRoutes(e, svc, auth.NewMiddleware(authService))

	adminToken, err := authService.GenerateToken(admin)
	require.NoError(t, err)
	readerToken, err := authService.GenerateToken(reader)
	require.NoError(t, err)

	do := func(token, method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		}
		if token != "" {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		e.ServeHTTP(rr, req)
		return rr
	}
	readerPath := "/users/" + strconv.Itoa(reader.ID)
	adminPath := "/users/" + strconv.Itoa(admin.ID)

	rr := do("", http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(readerToken, http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(adminToken, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"total":2`)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = do(adminToken, http.MethodPost, readerPath, `{"role":"admin"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"name":"admin"`)

	rr = do(adminToken, http.MethodPost, adminPath, `{"is_active":false}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	// Users reset their own password with the current one.
	rr = do(readerToken, http.MethodPost, readerPath+"/reset-password", `{"current_password":"wrong","new_password":"newpassword"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = do(readerToken, http.MethodPost, readerPath+"/reset-password", `{"current_password":"password123","new_password":"newpassword"}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	_, err = authService.Authenticate(context.Background(), "reader", "newpassword")
	assert.NoError(t, err)

	rr = do(adminToken, http.MethodDelete, adminPath, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(adminToken, http.MethodDelete, readerPath, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(adminToken, http.MethodGet, readerPath, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
