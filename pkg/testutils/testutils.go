// Package testutils has fixtures shared by the package tests.
package testutils

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lendshelf/lendshelf/pkg/migrations"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

// NewTestDB returns a migrated in-memory database. The pool is limited to one
// connection since every connection to ":memory:" gets its own database.
func NewTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// CreateUser inserts an active user with the given role and password, loaded
// with its role and permissions.
func CreateUser(t *testing.T, db *bun.DB, username, roleName, password string) *models.User {
	t.Helper()
	ctx := context.Background()

	role := &models.Role{}
	err := db.NewSelect().Model(role).Where("r.name = ?", roleName).Scan(ctx)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		RoleID:       role.ID,
		IsActive:     true,
	}
	_, err = db.NewInsert().Model(user).Returning("*").Exec(ctx)
	require.NoError(t, err)

	err = db.NewSelect().
		Model(user).
		Relation("Role").
		Relation("Role.Permissions").
		WherePK().
		Scan(ctx)
	require.NoError(t, err)

	return user
}

// CreateBook inserts a book with no copies. Callers that need copies go
// through the books service so reconciliation runs.
func CreateBook(t *testing.T, db *bun.DB, title, author string) *models.Book {
	t.Helper()

	book := &models.Book{Title: title, Author: author, CopiesCount: 0}
	_, err := db.NewInsert().Model(book).Returning("*").Exec(context.Background())
	require.NoError(t, err)
	return book
}
