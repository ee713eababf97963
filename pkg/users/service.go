package users

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"time"

	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/loans"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

type ListUsersOptions struct {
	Limit  *int
	Offset *int

	includeTotal bool
}

type UpdateUserOptions struct {
	Columns []string
}

type Service struct {
	db          *bun.DB
	loanService *loans.Service
}

func NewService(db *bun.DB, loanService *loans.Service) *Service {
	return &Service{db: db, loanService: loanService}
}

func (svc *Service) RetrieveUser(ctx context.Context, id int) (*models.User, error) {
	user := &models.User{}
	err := svc.db.NewSelect().
		Model(user).
		Relation("Role").
		Relation("Role.Permissions").
		Where("u.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("User")
		}
		return nil, errors.WithStack(err)
	}
	return user, nil
}

func (svc *Service) ListUsers(ctx context.Context, opts ListUsersOptions) ([]*models.User, error) {
	u, _, err := svc.listUsersWithTotal(ctx, opts)
	return u, err
}

func (svc *Service) ListUsersWithTotal(ctx context.Context, opts ListUsersOptions) ([]*models.User, int, error) {
	opts.includeTotal = true
	return svc.listUsersWithTotal(ctx, opts)
}

func (svc *Service) listUsersWithTotal(ctx context.Context, opts ListUsersOptions) ([]*models.User, int, error) {
	users := []*models.User{}
	var total int
	var err error

	q := svc.db.NewSelect().
		Model(&users).
		Relation("Role").
		Order("u.id ASC")
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	return users, total, nil
}

func (svc *Service) UpdateUser(ctx context.Context, user *models.User, opts UpdateUserOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	user.UpdatedAt = time.Now()
	columns := append(slices.Clone(opts.Columns), "updated_at")

	res, err := svc.db.NewUpdate().
		Model(user).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return errcodes.Conflict("Username " + user.Username + " is already taken.")
		}
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("User")
	}
	return nil
}

// RoleByName looks up one of the seeded roles.
func (svc *Service) RoleByName(ctx context.Context, name string) (*models.Role, error) {
	role := &models.Role{}
	err := svc.db.NewSelect().Model(role).Where("r.name = ?", name).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.ValidationError("Role " + name + " doesn't exist.")
		}
		return nil, errors.WithStack(err)
	}
	return role, nil
}

func (svc *Service) ResetPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return svc.UpdateUser(ctx, user, UpdateUserOptions{Columns: []string{"password_hash"}})
}

// DeleteUser deletes the user. Copies they still hold go back on the shelf
// in the same transaction; their jobs keep existing without a creator.
func (svc *Service) DeleteUser(ctx context.Context, id int) error {
	log := logger.FromContext(ctx).Data(logger.Data{"user_id": id})

	return svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*models.User)(nil)).
			Where("u.id = ?", id).
			Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if !exists {
			return errcodes.NotFound("User")
		}

		released, err := svc.loanService.ReleaseAll(ctx, tx, id)
		if err != nil {
			return err
		}

		_, err = tx.NewUpdate().
			Model((*models.Job)(nil)).
			Set("created_by_id = NULL").
			Where("created_by_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewDelete().
			Model((*models.User)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		log.Info("deleted user", logger.Data{"released_copies": released})
		return nil
	})
}
