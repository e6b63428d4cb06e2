package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"chatbot-server/internal/domain"
	"chatbot-server/internal/store"
	"github.com/google/uuid"
)

func newTestService(t *testing.T) (*Service, store.Repository) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return NewService(repo, testSecret, 15*time.Minute, 30*24*time.Hour), repo
}

func TestRegisterThenLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, pair, err := svc.Register(ctx, "a@x.com", "pw1", "Alice")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.ID == "" || user.Email != "a@x.com" || user.Name != "Alice" {
		t.Errorf("Unexpected user: %+v", user)
	}
	if user.PasswordHash == "pw1" {
		t.Fatal("Password stored in plaintext")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("Expected token pair on register")
	}

	claims, err := svc.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != "a@x.com" {
		t.Errorf("Unexpected claims: %+v", claims)
	}

	if _, _, err := svc.Login(ctx, "a@x.com", "pw1"); err != nil {
		t.Errorf("Login with correct password failed: %v", err)
	}
	if _, _, err := svc.Login(ctx, "a@x.com", "pw2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestLoginUnknownEmailIndistinguishable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@x.com", "pw1", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, _, unknownErr := svc.Login(ctx, "nobody@x.com", "pw1")
	_, _, wrongPwErr := svc.Login(ctx, "a@x.com", "bad")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongPwErr, ErrInvalidCredentials) {
		t.Fatalf("Expected ErrInvalidCredentials for both cases, got %v / %v", unknownErr, wrongPwErr)
	}
	if unknownErr.Error() != wrongPwErr.Error() {
		t.Error("Unknown email and wrong password must be indistinguishable")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "a@x.com", "pw1", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, _, err := svc.Register(ctx, "a@x.com", "pw2", ""); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "", "pw1", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for missing email, got %v", err)
	}
	if _, _, err := svc.Register(ctx, "a@x.com", "", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for missing password, got %v", err)
	}
}

func TestRotateSingleUse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "a@x.com", "pw1", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	user, next, err := svc.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("First rotation failed: %v", err)
	}
	if user.Email != "a@x.com" {
		t.Errorf("Unexpected rotated user: %+v", user)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("Rotation must mint a fresh secret")
	}

	// The presented token is single-use.
	if _, _, err := svc.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Expected ErrTokenRevoked on reuse, got %v", err)
	}

	// The replacement still works.
	if _, _, err := svc.Rotate(ctx, next.RefreshToken); err != nil {
		t.Errorf("Rotation of replacement failed: %v", err)
	}
}

func TestRotateChainPointer(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "a@x.com", "pw1", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, _, err := svc.Rotate(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Rotation failed: %v", err)
	}

	old, err := repo.GetRefreshTokenByHash(ctx, HashRefreshSecret(pair.RefreshToken))
	if err != nil {
		t.Fatalf("GetRefreshTokenByHash failed: %v", err)
	}
	if old == nil || !old.Revoked {
		t.Fatal("Rotated token must be revoked")
	}
	if old.ReplacedByID == "" {
		t.Error("Rotated token must point at its replacement")
	}
}

func TestRotateUnknownToken(t *testing.T) {
	svc, _ := newTestService(t)

	if _, _, err := svc.Rotate(context.Background(), "never-issued"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestRotateExpiredToken(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "a@x.com", "pw1", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}
	err = repo.CreateRefreshToken(ctx, &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: HashRefreshSecret(secret),
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateRefreshToken failed: %v", err)
	}

	if _, _, err := svc.Rotate(ctx, secret); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "a@x.com", "pw1", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	// Revoking again is not an error.
	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Errorf("Second logout failed: %v", err)
	}
	// Revoking an unknown token is not an error either.
	if err := svc.Logout(ctx, "never-issued"); err != nil {
		t.Errorf("Logout of unknown token failed: %v", err)
	}

	// The revoked token can no longer be rotated.
	if _, _, err := svc.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Expected ErrTokenRevoked after logout, got %v", err)
	}
}
