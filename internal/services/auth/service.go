package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/donorconnect/api/config"
	"github.com/donorconnect/api/internal/database"
	"github.com/donorconnect/api/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	db     *database.DB
	config *config.Config
}

func NewService(db *database.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// HashPassword hashes a password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword compares a password with its hash
func (s *Service) ComparePassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// GenerateAccessToken generates a JWT access token
func (s *Service) GenerateAccessToken(user *models.User) (string, error) {
	claims := &Claims{
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.config.JWTAccessExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// GenerateRefreshToken generates a random refresh token
func (s *Service) GenerateRefreshToken() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// SaveRefreshToken saves a refresh token to the database
func (s *Service) SaveRefreshToken(ctx context.Context, userID string, token string) error {
	parsedUserID, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("invalid user ID format: %w", err)
	}
	expiresAt := time.Now().Add(s.config.JWTRefreshExpiry)
	return s.db.CreateRefreshToken(ctx, parsedUserID, token, expiresAt)
}

// ValidateRefreshToken validates a refresh token and returns the user ID
func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	refreshToken, err := s.db.GetRefreshToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("invalid refresh token")
	}

	if time.Now().After(refreshToken.ExpiresAt) {
		return "", fmt.Errorf("refresh token expired")
	}

	return refreshToken.UserID.String(), nil
}

// DeleteRefreshToken removes a refresh token
func (s *Service) DeleteRefreshToken(ctx context.Context, token string) error {
	return s.db.DeleteRefreshToken(ctx, token)
}
