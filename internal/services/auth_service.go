// Package services – AuthService
//
// AuthService owns account registration, login, token verification, and
// profile changes. Usernames and emails are NFC-normalized and trimmed
// before they are compared or stored, so visually identical names collide.
package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-empatalk-backend/internal/auth"
	"github.com/tbourn/go-empatalk-backend/internal/domain"
	"github.com/tbourn/go-empatalk-backend/internal/repo"
)

// nameSuggestionAttempts bounds how many alternatives register tries.
const nameSuggestionAttempts = 10

// TokenIssuer signs and verifies bearer tokens.
type TokenIssuer interface {
	Issue(userID string) (string, error)
	Verify(token string) (string, error)
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  *domain.User
	Token string
}

// AuthService implements the account use-cases.
type AuthService struct {
	DB     *gorm.DB
	Tokens TokenIssuer

	// BcryptCost is passed to auth.HashPassword; out-of-range values fall
	// back to bcrypt's default.
	BcryptCost int

	// Intn returns a value in [0, n); used for name suggestions.
	Intn func(n int) int
}

// NewAuthService constructs an AuthService with a random suggestion source.
func NewAuthService(db *gorm.DB, tokens TokenIssuer, bcryptCost int) *AuthService {
	return &AuthService{DB: db, Tokens: tokens, BcryptCost: bcryptCost, Intn: rand.IntN}
}

// Register creates an account and returns it with a fresh token.
//
// A registered email yields ErrEmailTaken. A taken name yields a
// *NameTakenError carrying the first free "<name><0..9999>" alternative out
// of ten attempts; the account is not created under the suggestion.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Register")
	defer span.End()

	name, email = normalizeName(name), normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, ErrMissingFields
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, auth.ErrPasswordTooLong
	}

	taken, err := repo.EmailTaken(ctx, s.DB, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	taken, err = repo.NameTaken(ctx, s.DB, name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		suggestion, err := s.suggestName(ctx, name)
		if err != nil {
			return nil, err
		}
		return nil, &NameTakenError{Name: name, Suggestion: suggestion}
	}

	hash, err := auth.HashPassword(password, s.BcryptCost)
	if err != nil {
		return nil, err
	}
	u := &domain.User{Name: name, Email: email, PasswordHash: hash}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, repo.ErrDuplicate) {
			if taken, _ := repo.EmailTaken(ctx, s.DB, email); taken {
				return nil, ErrEmailTaken
			}
			return nil, &NameTakenError{Name: name}
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))

	tok, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: tok}, nil
}

// Login verifies a password for the account whose email or name equals
// identifier.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Login")
	defer span.End()

	identifier = normalizeName(identifier)
	if identifier == "" || password == "" {
		return nil, ErrMissingFields
	}
	u, err := repo.FindUserByIdentifier(ctx, s.DB, identifier)
	// Emails are stored lower-cased; names are case-sensitive.
	if errors.Is(err, repo.ErrNotFound) && strings.Contains(identifier, "@") {
		u, err = repo.GetUserByEmail(ctx, s.DB, normalizeEmail(identifier))
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredential
	}
	span.SetAttributes(attribute.String("user.id", u.ID))

	tok, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: tok}, nil
}

// Authenticate resolves a bearer token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	uid, err := s.Tokens.Verify(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	u, err := repo.GetUser(ctx, s.DB, uid)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return u, nil
}

// Me returns the public profile of userID.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// ChangePassword replaces the stored hash after verifying oldPassword.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "ChangePassword",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if oldPassword == "" || newPassword == "" {
		return ErrMissingFields
	}
	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !auth.CheckPassword(u.PasswordHash, oldPassword) {
		return ErrInvalidCredential
	}
	hash, err := auth.HashPassword(newPassword, s.BcryptCost)
	if err != nil {
		return err
	}
	if err := repo.UpdatePasswordHash(ctx, s.DB, userID, hash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// UpdateUsername renames userID. Keeping one's own name is a no-op success.
func (s *AuthService) UpdateUsername(ctx context.Context, userID, name string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "UpdateUsername",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	name = normalizeName(name)
	if name == "" {
		return nil, ErrMissingFields
	}
	taken, err := repo.NameTaken(ctx, s.DB, name, userID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, &NameTakenError{Name: name}
	}
	switch err := repo.UpdateUserName(ctx, s.DB, userID, name); {
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrUserNotFound
	case errors.Is(err, repo.ErrDuplicate):
		return nil, &NameTakenError{Name: name}
	case err != nil:
		return nil, err
	}
	return s.Me(ctx, userID)
}

// suggestName returns the first free "<name><n>" candidate, or "" when
// every attempt collides.
func (s *AuthService) suggestName(ctx context.Context, name string) (string, error) {
	intn := s.Intn
	if intn == nil {
		intn = rand.IntN
	}
	for i := 0; i < nameSuggestionAttempts; i++ {
		candidate := name + strconv.Itoa(intn(10000))
		taken, err := repo.NameTaken(ctx, s.DB, candidate, "")
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", nil
}

func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func normalizeEmail(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}
