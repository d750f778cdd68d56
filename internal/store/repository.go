/**
 * @description
 * This file defines the interfaces for the data access layer (repositories).
 * Defining interfaces allows for dependency injection and easy mocking in tests,
 * promoting a loosely coupled architecture.
 *
 * @notes
 * - Any component that needs to interact with the database should depend on these
 *   interfaces, not on the concrete PostgreSQL implementation.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/transfa/withdrawal-account-service/internal/domain"
)

var (
	ErrUserNotFound                 = errors.New("user not found")
	ErrWithdrawalAccountNotFound    = errors.New("withdrawal account not found")
	ErrWithdrawalAccountNotVerified = errors.New("withdrawal account is not verified")
	ErrDuplicateWithdrawalAccount   = errors.New("withdrawal account already exists")
)

// WithdrawalAccountRepository defines the contract for database operations on
// the withdrawal_accounts_fiat table.
type WithdrawalAccountRepository interface {
	// CreatePending inserts a row in the pending state.
	CreatePending(ctx context.Context, account *domain.WithdrawalAccount) (*domain.WithdrawalAccount, error)
	// RecordProviderRecipient stores the provider recipient id on a pending row.
	RecordProviderRecipient(ctx context.Context, id, providerRecipientID string) error
	// MarkVerified verifies a pending row. When makeDefault is set the user's
	// previous default is demoted in the same transaction.
	MarkVerified(ctx context.Context, id, userID string, makeDefault bool) (*domain.WithdrawalAccount, error)
	MarkFailed(ctx context.Context, id, reason string) error
	ListByUserID(ctx context.Context, userID string) ([]domain.WithdrawalAccount, error)
	FindByID(ctx context.Context, id, userID string) (*domain.WithdrawalAccount, error)
	SetDefault(ctx context.Context, id, userID string) (*domain.WithdrawalAccount, error)
	// Delete removes the row and returns it as it was before deletion.
	Delete(ctx context.Context, id, userID string) (*domain.WithdrawalAccount, error)
	// FailStalePending fails pending rows created before olderThan and returns them.
	FailStalePending(ctx context.Context, olderThan time.Time, reason string) ([]domain.WithdrawalAccount, error)
	// ListFailedWithRecipient returns failed rows that still reference a
	// provider recipient, oldest update first.
	ListFailedWithRecipient(ctx context.Context, limit int) ([]domain.WithdrawalAccount, error)
	// ClearProviderRecipient forgets the recipient of a failed row once it is
	// gone at the provider.
	ClearProviderRecipient(ctx context.Context, id string) error
}

// UserRepository resolves identity provider subjects to internal users.
type UserRepository interface {
	FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (string, error)
}
