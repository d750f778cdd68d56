/**
 * @description
 * This file implements the user lookup the withdrawal-account-service needs to
 * translate an authenticated Clerk subject into the internal `users.id`.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresUserRepository is the PostgreSQL implementation of the UserRepository.
type PostgresUserRepository struct {
	db *pgxpool.Pool
}

// NewPostgresUserRepository creates a new instance of PostgresUserRepository.
func NewPostgresUserRepository(db *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// FindUserIDByClerkUserID retrieves the internal user ID for a Clerk user ID.
func (r *PostgresUserRepository) FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (string, error) {
	query := `SELECT id FROM users WHERE clerk_user_id = $1`
	var userID string
	err := r.db.QueryRow(ctx, query, clerkUserID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Printf("level=warn component=store msg=\"no user for clerk subject\" clerk_user_id=%s", clerkUserID)
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to find user by clerk_user_id: %w", err)
	}
	return userID, nil
}
