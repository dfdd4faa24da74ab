package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/config"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType  `json:"token_type"`
	UserID    uuid.UUID  `json:"user_id"`
	Role      model.Role `json:"role"`
}

// AuthService handles password checks, token issuance and refresh rotation.
type AuthService struct {
	cfg   *config.Config
	users UserStore
	now   Clock
	log   zerolog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, users UserStore, clock Clock, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:   cfg,
		users: users,
		now:   clock,
		log:   log.With().Str("component", "auth_service").Logger(),
	}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashRefreshToken returns the hex SHA-256 digest stored in place of a refresh token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Register creates an account with the given role and logs it in.
func (s *AuthService) Register(ctx context.Context, name, email, password string, role model.Role) (*model.LoginResponse, error) {
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		Name:         strings.TrimSpace(name),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Str("user_id", u.ID.String()).Str("role", string(role)).Msg("User registered")
	return s.startSession(ctx, u)
}

// Login verifies credentials and issues a fresh token pair, replacing any
// previously stored refresh token. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.burnPasswordCheck(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := s.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, err
	}

	return s.startSession(ctx, u)
}

func (s *AuthService) startSession(ctx context.Context, u *model.User) (*model.LoginResponse, error) {
	pair, hash, err := s.issuePair(u)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetRefreshTokenHash(ctx, u.ID, hash); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	u.RefreshTokenHash = &hash
	return &model.LoginResponse{TokenPair: *pair, User: u}, nil
}

// Refresh rotates a refresh token. The presented token must verify, belong
// to an existing user and match the stored hash; exactly one concurrent
// caller holding the same token can win the swap. Every failure is
// ErrInvalidRefreshToken.
func (s *AuthService) Refresh(ctx context.Context, token string) (*model.TokenPair, error) {
	claims, err := s.parse(token, s.cfg.RefreshSecret, TokenTypeRefresh)
	if err != nil {
		s.log.Debug().Err(err).Msg("Refresh token rejected")
		return nil, ErrInvalidRefreshToken
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	presented := HashRefreshToken(token)
	if u.RefreshTokenHash == nil ||
		subtle.ConstantTimeCompare([]byte(*u.RefreshTokenHash), []byte(presented)) != 1 {
		s.log.Warn().Str("user_id", u.ID.String()).Msg("Stale refresh token presented, possible reuse")
		return nil, ErrInvalidRefreshToken
	}

	pair, newHash, err := s.issuePair(u)
	if err != nil {
		return nil, err
	}

	rotated, err := s.users.RotateRefreshTokenHash(ctx, u.ID, presented, newHash)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !rotated {
		s.log.Warn().Str("user_id", u.ID.String()).Msg("Refresh token rotated concurrently, possible reuse")
		return nil, ErrInvalidRefreshToken
	}

	return pair, nil
}

// Logout is advisory. The stored refresh hash is left in place and issued
// access tokens stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) {
	s.log.Info().Str("user_id", userID.String()).Msg("User logged out")
}

// Me returns the authenticated user's profile.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ValidateAccessToken parses and validates an access JWT, returning the claims.
func (s *AuthService) ValidateAccessToken(tokenStr string) (*Claims, error) {
	return s.parse(tokenStr, s.cfg.JWTSecret, TokenTypeAccess)
}

func (s *AuthService) issuePair(u *model.User) (*model.TokenPair, string, error) {
	now := s.now()

	access := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
		},
		TokenType: TokenTypeAccess,
		UserID:    u.ID,
		Role:      u.Role,
	}
	accessStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, "", fmt.Errorf("sign access token: %w", err)
	}

	// jti keeps two refresh tokens issued in the same second distinct.
	refresh := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTokenTTL)),
		},
		TokenType: TokenTypeRefresh,
		UserID:    u.ID,
		Role:      u.Role,
	}
	refreshStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString([]byte(s.cfg.RefreshSecret))
	if err != nil {
		return nil, "", fmt.Errorf("sign refresh token: %w", err)
	}

	return &model.TokenPair{
		AccessToken:  accessStr,
		RefreshToken: refreshStr,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
	}, HashRefreshToken(refreshStr), nil
}

func (s *AuthService) parse(tokenStr, secret string, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("unexpected token type %q", claims.TokenType)
	}
	return claims, nil
}

// burnPasswordCheck runs one bcrypt comparison against a throwaway hash for
// logins naming an unknown email.
func (s *AuthService) burnPasswordCheck(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("rurallearn-dummy-password"), s.cfg.BcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}
