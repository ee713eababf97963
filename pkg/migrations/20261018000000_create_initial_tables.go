package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE roles (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL UNIQUE,
				is_system BOOLEAN NOT NULL DEFAULT FALSE
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE permissions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				role_id INTEGER REFERENCES roles (id) ON DELETE CASCADE NOT NULL,
				resource TEXT NOT NULL,
				operation TEXT NOT NULL
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_permissions_role_resource_operation ON permissions (role_id, resource, operation)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				username TEXT NOT NULL,
				email TEXT,
				password_hash TEXT NOT NULL,
				role_id INTEGER REFERENCES roles (id) NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT TRUE
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_users_username ON users (username COLLATE NOCASE)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE books (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				title TEXT NOT NULL,
				author TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				keywords TEXT,
				recommended_age INTEGER,
				copies_count INTEGER NOT NULL DEFAULT 1,
				cover_image TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_books_title ON books (title)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE book_copies (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				book_id INTEGER REFERENCES books (id) ON DELETE CASCADE NOT NULL,
				is_available BOOLEAN NOT NULL DEFAULT TRUE,
				borrower_id INTEGER REFERENCES users (id),
				borrowed_date TIMESTAMPTZ,
				due_date TIMESTAMPTZ,
				qr_code TEXT,
				CHECK ((is_available AND borrower_id IS NULL AND borrowed_date IS NULL AND due_date IS NULL)
					OR (NOT is_available AND borrower_id IS NOT NULL AND borrowed_date IS NOT NULL AND due_date IS NOT NULL))
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_book_copies_book_id_is_available ON book_copies (book_id, is_available)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_book_copies_borrower_id ON book_copies (borrower_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE book_images (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				book_id INTEGER REFERENCES books (id) ON DELETE CASCADE NOT NULL,
				image TEXT NOT NULL,
				caption TEXT NOT NULL DEFAULT '',
				sort_order INTEGER NOT NULL DEFAULT 0
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_book_images_book_id_sort_order ON book_images (book_id, sort_order)`)
		if err != nil {
			return errors.WithStack(err)
		}

		return seedRoles(db)
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"book_images", "book_copies", "books", "users", "permissions", "roles"} {
			if _, err := db.Exec(`DROP TABLE IF EXISTS ` + table); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}

func seedRoles(db *bun.DB) error {
	grants := []struct {
		role        string
		permissions [][2]string
	}{
		{
			role: "admin",
			permissions: [][2]string{
				{"books", "read"}, {"books", "write"},
				{"loans", "read"}, {"loans", "write"},
				{"jobs", "read"}, {"jobs", "write"},
				{"users", "read"}, {"users", "write"},
			},
		},
		{
			role:        "reader",
			permissions: [][2]string{{"books", "read"}, {"loans", "write"}},
		},
	}

	for _, g := range grants {
		var roleID int
		err := db.QueryRow(`INSERT INTO roles (name, is_system) VALUES (?, TRUE) RETURNING id`, g.role).Scan(&roleID)
		if err != nil {
			return errors.WithStack(err)
		}
		for _, p := range g.permissions {
			_, err = db.Exec(`INSERT INTO permissions (role_id, resource, operation) VALUES (?, ?, ?)`, roleID, p[0], p[1])
			if err != nil {
				return errors.WithStack(err)
			}
		}
	}
	return nil
}
