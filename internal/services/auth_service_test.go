package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-empatalk-backend/internal/auth"
	"github.com/tbourn/go-empatalk-backend/internal/repo"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	iss, err := auth.NewIssuer("test-secret-0123456789", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return NewAuthService(newTestDB(t), iss, 4)
}

func TestRegister_Success_IssuesUsableToken(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, " alice ", "Alice@Example.com", "pw123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User.Name != "alice" || res.User.Email != "alice@example.com" || res.Token == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.User.PasswordHash == "pw123" {
		t.Fatalf("password stored in clear")
	}

	u, err := svc.Authenticate(ctx, res.Token)
	if err != nil || u.ID != res.User.ID {
		t.Fatalf("Authenticate: %+v err=%v", u, err)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	svc := newAuthService(t)
	for _, in := range [][3]string{{"", "a@b.c", "pw"}, {"n", " ", "pw"}, {"n", "a@b.c", ""}} {
		if _, err := svc.Register(context.Background(), in[0], in[1], in[2]); !errors.Is(err, ErrMissingFields) {
			t.Fatalf("%v: expected ErrMissingFields, got %v", in, err)
		}
	}
	if _, err := svc.Register(context.Background(), "n", "a@b.c", strings.Repeat("x", 73)); !errors.Is(err, auth.ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "alice", "alice@example.com", "pw"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.Register(ctx, "bob", "ALICE@example.com", "pw"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegister_NameTaken_SuggestsFreeAlternative(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "alice", "alice@example.com", "pw"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.Register(ctx, "alice7", "alice7@example.com", "pw"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// First candidate collides with alice7, second is free.
	seq := []int{7, 42}
	svc.Intn = func(n int) int {
		if n != 10000 {
			t.Fatalf("unexpected bound %d", n)
		}
		v := seq[0]
		seq = seq[1:]
		return v
	}

	_, err := svc.Register(ctx, "alice", "new@example.com", "pw")
	var nt *NameTakenError
	if !errors.As(err, &nt) {
		t.Fatalf("expected *NameTakenError, got %v", err)
	}
	if nt.Suggestion != "alice42" {
		t.Fatalf("suggestion = %q; want alice42", nt.Suggestion)
	}
	if !strings.Contains(nt.Error(), "alice42") {
		t.Fatalf("message should carry the suggestion: %q", nt.Error())
	}
	// Nothing was created under the suggestion.
	if taken, _ := repo.NameTaken(ctx, svc.DB, "alice42", ""); taken {
		t.Fatalf("suggestion must not be auto-registered")
	}

	// Resubmitting with the suggested name succeeds.
	if _, err := svc.Register(ctx, nt.Suggestion, "new@example.com", "pw"); err != nil {
		t.Fatalf("register with suggestion: %v", err)
	}
}

func TestRegister_NameTaken_NoFreeAlternative(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()
	_, _ = svc.Register(ctx, "bob", "bob@example.com", "pw")
	_, _ = svc.Register(ctx, "bob1", "bob1@example.com", "pw")

	calls := 0
	svc.Intn = func(int) int { calls++; return 1 }

	_, err := svc.Register(ctx, "bob", "other@example.com", "pw")
	var nt *NameTakenError
	if !errors.As(err, &nt) || nt.Suggestion != "" {
		t.Fatalf("expected NameTakenError without suggestion, got %v", err)
	}
	if calls != 10 {
		t.Fatalf("expected 10 attempts, got %d", calls)
	}
}

func TestLogin_ByEmailOrName(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, "carol", "carol@example.com", "secret")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	for _, ident := range []string{"carol", "carol@example.com", "Carol@Example.com"} {
		res, err := svc.Login(ctx, ident, "secret")
		if err != nil || res.User.ID != reg.User.ID || res.Token == "" {
			t.Fatalf("login %q: %+v err=%v", ident, res, err)
		}
	}

	if _, err := svc.Login(ctx, "carol", "wrong"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "secret"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.Login(ctx, "", "secret"); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
}

func TestAuthenticate_Failures(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("garbage token: %v", err)
	}
	// Well-formed token for a user that does not exist.
	tok, _ := svc.Tokens.Issue("ghost")
	if _, err := svc.Authenticate(ctx, tok); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ghost token: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()
	reg, _ := svc.Register(ctx, "dave", "dave@example.com", "old")

	if err := svc.ChangePassword(ctx, reg.User.ID, "", "new"); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
	if err := svc.ChangePassword(ctx, reg.User.ID, "nope", "new"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if err := svc.ChangePassword(ctx, "missing", "old", "new"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := svc.ChangePassword(ctx, reg.User.ID, "old", strings.Repeat("x", 73)); !errors.Is(err, auth.ErrPasswordTooLong) {
		t.Fatalf("expected auth.ErrPasswordTooLong, got %v", err)
	}
	if err := svc.ChangePassword(ctx, reg.User.ID, "old", "new"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Login(ctx, "dave", "old"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := svc.Login(ctx, "dave", "new"); err != nil {
		t.Fatalf("new password should work: %v", err)
	}
}

func TestUpdateUsername(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()
	a, _ := svc.Register(ctx, "erin", "erin@example.com", "pw")
	_, _ = svc.Register(ctx, "frank", "frank@example.com", "pw")

	var nt *NameTakenError
	if _, err := svc.UpdateUsername(ctx, a.User.ID, "frank"); !errors.As(err, &nt) {
		t.Fatalf("expected NameTakenError, got %v", err)
	}
	if _, err := svc.UpdateUsername(ctx, a.User.ID, "  "); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
	if _, err := svc.UpdateUsername(ctx, "missing", "zed"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	// Keeping one's own name is allowed.
	if u, err := svc.UpdateUsername(ctx, a.User.ID, "erin"); err != nil || u.Name != "erin" {
		t.Fatalf("same name: %+v err=%v", u, err)
	}
	u, err := svc.UpdateUsername(ctx, a.User.ID, "erin2")
	if err != nil || u.Name != "erin2" || u.Email != "erin@example.com" {
		t.Fatalf("rename: %+v err=%v", u, err)
	}
	me, err := svc.Me(ctx, a.User.ID)
	if err != nil || me.Name != "erin2" {
		t.Fatalf("Me: %+v err=%v", me, err)
	}
	if _, err := svc.Me(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
