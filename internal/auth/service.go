package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatbot-server/internal/domain"
	"chatbot-server/internal/store"
	"github.com/google/uuid"
)

// Service implements registration, login, access-token verification and
// refresh-token rotation on top of the store.
type Service struct {
	repo       store.Repository
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService creates an auth service. secret signs access tokens; accessTTL
// and refreshTTL bound the two credential lifetimes.
func NewService(repo store.Repository, secret []byte, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// TokenPair is a freshly minted access token plus the plaintext refresh
// secret. The plaintext leaves the process exactly once, in the response
// cookie, and is never persisted.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RefreshTTL returns the configured refresh-token lifetime.
func (s *Service) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Register creates a new user with a bcrypt-hashed password and issues the
// first token pair.
func (s *Service) Register(ctx context.Context, email, password, name string) (*domain.User, *TokenPair, error) {
	if email == "" {
		return nil, nil, fmt.Errorf("%w: email", ErrValidation)
	}
	if password == "" {
		return nil, nil, fmt.Errorf("%w: password", ErrValidation)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Login checks credentials and issues a new token pair. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.User, *TokenPair, error) {
	if email == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: email and password", ErrValidation)
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("look up user: %w", err)
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// VerifyAccess validates an access token and returns its claims.
func (s *Service) VerifyAccess(tokenStr string) (*Claims, error) {
	return ParseAccessToken(s.secret, tokenStr)
}

// Rotate exchanges a refresh token for a new token pair. The presented token
// is looked up by hash, revoked, and chained to its replacement in one store
// transaction; a token can be rotated exactly once.
func (s *Service) Rotate(ctx context.Context, presented string) (*domain.User, *TokenPair, error) {
	if presented == "" {
		return nil, nil, fmt.Errorf("%w: refresh token", ErrValidation)
	}

	hash := HashRefreshSecret(presented)
	existing, err := s.repo.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		return nil, nil, fmt.Errorf("look up refresh token: %w", err)
	}
	if existing == nil {
		return nil, nil, ErrInvalidToken
	}
	if existing.Revoked {
		return nil, nil, ErrTokenRevoked
	}
	if existing.Expired(time.Now()) {
		return nil, nil, ErrTokenExpired
	}

	user, err := s.repo.GetUserByID(ctx, existing.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("look up token user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrInvalidToken
	}

	secret, err := NewRefreshSecret()
	if err != nil {
		return nil, nil, err
	}
	replacement := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: HashRefreshSecret(secret),
		ExpiresAt: time.Now().Add(s.refreshTTL),
		CreatedAt: time.Now(),
	}

	rotated, err := s.repo.RotateRefreshToken(ctx, hash, replacement)
	if err != nil {
		return nil, nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !rotated {
		// Lost a race with a concurrent rotation of the same secret.
		return nil, nil, ErrTokenRevoked
	}

	access, err := SignAccessToken(s.secret, user.ID, user.Email, user.Name, s.accessTTL)
	if err != nil {
		return nil, nil, err
	}
	return user, &TokenPair{
		AccessToken:      access,
		RefreshToken:     secret,
		RefreshExpiresAt: replacement.ExpiresAt,
	}, nil
}

// Logout revokes the refresh token matching the presented secret. Revoking a
// token that is already revoked or unknown is not an error.
func (s *Service) Logout(ctx context.Context, presented string) error {
	if presented == "" {
		return fmt.Errorf("%w: refresh token", ErrValidation)
	}
	if err := s.repo.RevokeRefreshToken(ctx, HashRefreshSecret(presented)); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *Service) issueTokens(ctx context.Context, user *domain.User) (*TokenPair, error) {
	access, err := SignAccessToken(s.secret, user.ID, user.Email, user.Name, s.accessTTL)
	if err != nil {
		return nil, err
	}

	secret, err := NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	token := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: HashRefreshSecret(secret),
		ExpiresAt: time.Now().Add(s.refreshTTL),
		CreatedAt: time.Now(),
	}
	if err := s.repo.CreateRefreshToken(ctx, token); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     secret,
		RefreshExpiresAt: token.ExpiresAt,
	}, nil
}
