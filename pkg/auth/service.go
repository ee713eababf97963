package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

// TokenExpiry is how long JWT tokens are valid.
const TokenExpiry = 7 * 24 * time.Hour

// BcryptCost is the cost factor for bcrypt hashing. Tests lower it.
var BcryptCost = 12

// JWTClaims represents the claims in a JWT token.
type JWTClaims struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Service struct {
	db        *bun.DB
	jwtSecret []byte
}

func NewService(db *bun.DB, jwtSecret string) *Service {
	return &Service{
		db:        db,
		jwtSecret: []byte(jwtSecret),
	}
}

// CountUsers returns the total number of users.
func (s *Service) CountUsers(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().Model((*models.User)(nil)).Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}

// activeUser loads an active user, with the role permissions the middleware
// checks, matching the given column.
func (s *Service) activeUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	err := s.db.NewSelect().
		Model(user).
		Relation("Role").
		Relation("Role.Permissions").
		Where(where, arg).
		Where("u.is_active = ?", true).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return user, errors.WithStack(err)
}

// Authenticate checks the credentials. Unknown users, inactive users and wrong
// passwords all get the same error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.activeUser(ctx, "u.username = ? COLLATE NOCASE", username)
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPassword(password, user.PasswordHash) {
		return nil, errcodes.Unauthorized("Invalid username or password.")
	}
	return user, nil
}

func (s *Service) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return signed, nil
}

func (s *Service) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// GetUserByID is how the middleware resolves a token back to a user, so
// deactivated users are NotFound.
func (s *Service) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	user, err := s.activeUser(ctx, "u.id = ?", id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errcodes.NotFound("User")
	}
	return user, nil
}

// CreateUser creates an active user with the named role.
func (s *Service) CreateUser(ctx context.Context, username string, email *string, password, roleName string) (*models.User, error) {
	role := &models.Role{}
	err := s.db.NewSelect().
		Model(role).
		Where("r.name = ?", roleName).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Role")
		}
		return nil, errors.WithStack(err)
	}

	exists, err := s.db.NewSelect().
		Model((*models.User)(nil)).
		Where("u.username = ? COLLATE NOCASE", username).
		Exists(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if exists {
		return nil, errcodes.Conflict("Username " + username + " is already taken.")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		RoleID:       role.ID,
		IsActive:     true,
	}
	_, err = s.db.NewInsert().Model(user).Returning("*").Exec(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, errcodes.Conflict("Username " + username + " is already taken.")
		}
		return nil, errors.WithStack(err)
	}

	return s.GetUserByID(ctx, user.ID)
}

// CreateFirstAdmin creates the first admin user during setup.
func (s *Service) CreateFirstAdmin(ctx context.Context, username string, email *string, password string) (*models.User, error) {
	count, err := s.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errcodes.Forbidden("Running setup again")
	}
	return s.CreateUser(ctx, username, email, password, models.RoleAdmin)
}

// Register creates a reader account.
func (s *Service) Register(ctx context.Context, username string, email *string, password string) (*models.User, error) {
	return s.CreateUser(ctx, username, email, password, models.RoleReader)
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(hashed), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
