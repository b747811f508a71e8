package database

import (
	"context"
	"fmt"
	"time"

	"github.com/donorconnect/api/internal/models"
	"github.com/google/uuid"
)

// CreateUser inserts a new user and returns the user model
func (db *DB) CreateUser(ctx context.Context, email, passwordHash string, displayName *string, role models.UserRole) (*models.User, error) {
	query := `
		INSERT INTO users (email, password_hash, display_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, password_hash, display_name, role, stripe_customer_id, created_at, updated_at
	`

	var user models.User
	err := db.Pool.QueryRow(ctx, query, email, passwordHash, displayName, role).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName,
		&user.Role, &user.StripeCustomerID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// GetUserByEmail retrieves a user by email address
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, display_name, role, stripe_customer_id, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	var user models.User
	err := db.Pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName,
		&user.Role, &user.StripeCustomerID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &user, nil
}

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, display_name, role, stripe_customer_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	err := db.Pool.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName,
		&user.Role, &user.StripeCustomerID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// UpdateUserStripeCustomerID records the Stripe customer resolved for a user
// so repeat recurring donations reuse it instead of creating duplicates
func (db *DB) UpdateUserStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	query := `
		UPDATE users
		SET stripe_customer_id = $2,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := db.Pool.Exec(ctx, query, userID, customerID)
	if err != nil {
		return fmt.Errorf("failed to update user stripe customer id: %w", err)
	}

	return nil
}

// CreateRefreshToken stores a refresh token for a user
func (db *DB) CreateRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`

	_, err := db.Pool.Exec(ctx, query, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	return nil
}

// GetRefreshToken retrieves a refresh token
func (db *DB) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1
	`

	var rt models.RefreshToken
	err := db.Pool.QueryRow(ctx, query, token).Scan(
		&rt.ID, &rt.UserID, &rt.Token, &rt.ExpiresAt, &rt.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return &rt, nil
}

// DeleteRefreshToken removes a refresh token
func (db *DB) DeleteRefreshToken(ctx context.Context, token string) error {
	query := `DELETE FROM refresh_tokens WHERE token = $1`

	_, err := db.Pool.Exec(ctx, query, token)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	return nil
}
