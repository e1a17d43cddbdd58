// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the credential store: user lookups by
// unique field, creation, and the two profile mutations the API exposes.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-empatalk-backend/internal/domain"
)

// ErrDuplicate indicates a unique constraint rejected the write.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation detects unique-constraint failures across drivers that
// do not translate them to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite: "UNIQUE constraint failed"; Postgres: "duplicate key value violates unique constraint".
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// CreateUser inserts u, assigning an ID when empty. A clash on name or email
// is reported as ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUser fetches a user by primary key.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return firstUser(ctx, db, "id = ?", id)
}

// GetUserByEmail fetches a user by exact email.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return firstUser(ctx, db, "email = ?", email)
}

// FindUserByIdentifier resolves a login identifier that may be either an
// email or a username.
func FindUserByIdentifier(ctx context.Context, db *gorm.DB, identifier string) (*domain.User, error) {
	return firstUser(ctx, db, "email = ? OR name = ?", identifier, identifier)
}

func firstUser(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where(query, args...).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// EmailTaken reports whether any user already registered email.
func EmailTaken(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).Where("email = ?", email).Count(&n).Error
	return n > 0, err
}

// NameTaken reports whether name belongs to a user other than exceptID.
// Pass an empty exceptID to check against every user.
func NameTaken(ctx context.Context, db *gorm.DB, name, exceptID string) (bool, error) {
	var n int64
	q := db.WithContext(ctx).Model(&domain.User{}).Where("name = ?", name)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	err := q.Count(&n).Error
	return n > 0, err
}

// UpdateUserName renames a user. It returns ErrNotFound when no row matches
// and ErrDuplicate when the name is already in use.
func UpdateUserName(ctx context.Context, db *gorm.DB, id, name string) error {
	return updateUser(ctx, db, id, "name", name)
}

// UpdatePasswordHash replaces the stored password hash.
func UpdatePasswordHash(ctx context.Context, db *gorm.DB, id, hash string) error {
	return updateUser(ctx, db, id, "password_hash", hash)
}

func updateUser(ctx context.Context, db *gorm.DB, id, column string, value any) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
