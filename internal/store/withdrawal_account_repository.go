/**
 * @description
 * This file implements the data access layer for fiat withdrawal accounts.
 *
 * @notes
 * - Default switching runs inside one transaction holding a per-user advisory
 *   lock. The partial unique index on (user_id) WHERE is_default backs it up.
 * - Unique violations are reported as ErrDuplicateWithdrawalAccount.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver.
 * - github.com/jackc/pgx/v5/pgconn: For unique violation detection.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/withdrawal-account-service/internal/domain"
)

const withdrawalAccountColumns = `
        id, user_id, country_code, currency_code, bank_type, bank_name, bank_code,
        bank_account_number, bank_account_name, provider, provider_recipient_id,
        idempotency_key, verification_status, failure_reason, last_verified_at,
        is_default, created_at, updated_at`

// PostgresWithdrawalAccountRepository is the PostgreSQL implementation of the WithdrawalAccountRepository.
type PostgresWithdrawalAccountRepository struct {
	db *pgxpool.Pool
}

// NewPostgresWithdrawalAccountRepository creates a new instance of PostgresWithdrawalAccountRepository.
func NewPostgresWithdrawalAccountRepository(db *pgxpool.Pool) *PostgresWithdrawalAccountRepository {
	return &PostgresWithdrawalAccountRepository{db: db}
}

// CreatePending inserts a new withdrawal account in the pending state.
func (r *PostgresWithdrawalAccountRepository) CreatePending(ctx context.Context, account *domain.WithdrawalAccount) (*domain.WithdrawalAccount, error) {
	query := `
        INSERT INTO withdrawal_accounts_fiat (
            id, user_id, country_code, currency_code, bank_type, bank_name, bank_code,
            bank_account_number, bank_account_name, provider, idempotency_key,
            verification_status, is_default
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', FALSE)
        RETURNING ` + withdrawalAccountColumns

	created, err := scanWithdrawalAccount(r.db.QueryRow(ctx, query,
		account.ID,
		account.UserID,
		account.CountryCode,
		account.CurrencyCode,
		account.BankType,
		account.BankName,
		account.BankCode,
		account.BankAccountNumber,
		account.BankAccountName,
		account.Provider,
		account.IdempotencyKey,
	))
	if err != nil {
		return nil, mapWriteError("failed to create withdrawal account", err)
	}
	return created, nil
}

// RecordProviderRecipient stores the provider's recipient id on a pending row.
func (r *PostgresWithdrawalAccountRepository) RecordProviderRecipient(ctx context.Context, id, providerRecipientID string) error {
	query := `
        UPDATE withdrawal_accounts_fiat
        SET provider_recipient_id = $2, updated_at = NOW()
        WHERE id = $1 AND verification_status = 'pending'
    `
	result, err := r.db.Exec(ctx, query, id, providerRecipientID)
	if err != nil {
		return mapWriteError("failed to record provider recipient", err)
	}
	if result.RowsAffected() == 0 {
		return ErrWithdrawalAccountNotFound
	}
	return nil
}

// MarkVerified moves a pending row to verified, demoting the user's previous
// default first when makeDefault is set.
func (r *PostgresWithdrawalAccountRepository) MarkVerified(ctx context.Context, id, userID string, makeDefault bool) (*domain.WithdrawalAccount, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockUser(ctx, tx, userID); err != nil {
		return nil, err
	}
	if makeDefault {
		if err := demoteDefault(ctx, tx, userID, id); err != nil {
			return nil, err
		}
	}

	query := `
        UPDATE withdrawal_accounts_fiat
        SET verification_status = 'verified',
            failure_reason = NULL,
            last_verified_at = NOW(),
            is_default = $3,
            updated_at = NOW()
        WHERE id = $1 AND user_id = $2 AND verification_status = 'pending'
        RETURNING ` + withdrawalAccountColumns

	verified, err := scanWithdrawalAccount(tx.QueryRow(ctx, query, id, userID, makeDefault))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalAccountNotFound
		}
		return nil, mapWriteError("failed to verify withdrawal account", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapWriteError("failed to commit verification", err)
	}
	return verified, nil
}

// MarkFailed records a terminal failure on a pending row.
func (r *PostgresWithdrawalAccountRepository) MarkFailed(ctx context.Context, id, reason string) error {
	query := `
        UPDATE withdrawal_accounts_fiat
        SET verification_status = 'failed', failure_reason = $2, is_default = FALSE, updated_at = NOW()
        WHERE id = $1 AND verification_status = 'pending'
    `
	result, err := r.db.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark withdrawal account failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrWithdrawalAccountNotFound
	}
	return nil
}

// ListByUserID returns the user's pending and verified withdrawal accounts,
// default first.
func (r *PostgresWithdrawalAccountRepository) ListByUserID(ctx context.Context, userID string) ([]domain.WithdrawalAccount, error) {
	query := `
        SELECT ` + withdrawalAccountColumns + `
        FROM withdrawal_accounts_fiat
        WHERE user_id = $1 AND verification_status <> 'failed'
        ORDER BY is_default DESC, created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawal accounts: %w", err)
	}
	return collectWithdrawalAccounts(rows)
}

// FindByID returns a withdrawal account owned by userID.
func (r *PostgresWithdrawalAccountRepository) FindByID(ctx context.Context, id, userID string) (*domain.WithdrawalAccount, error) {
	query := `
        SELECT ` + withdrawalAccountColumns + `
        FROM withdrawal_accounts_fiat
        WHERE id = $1 AND user_id = $2
    `
	account, err := scanWithdrawalAccount(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalAccountNotFound
		}
		return nil, fmt.Errorf("failed to find withdrawal account: %w", err)
	}
	return account, nil
}

// SetDefault makes a verified withdrawal account the user's default.
func (r *PostgresWithdrawalAccountRepository) SetDefault(ctx context.Context, id, userID string) (*domain.WithdrawalAccount, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockUser(ctx, tx, userID); err != nil {
		return nil, err
	}

	var status domain.VerificationStatus
	err = tx.QueryRow(ctx,
		`SELECT verification_status FROM withdrawal_accounts_fiat WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		id, userID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalAccountNotFound
		}
		return nil, fmt.Errorf("failed to load withdrawal account: %w", err)
	}
	if status != domain.VerificationVerified {
		return nil, ErrWithdrawalAccountNotVerified
	}

	if err := demoteDefault(ctx, tx, userID, id); err != nil {
		return nil, err
	}

	query := `
        UPDATE withdrawal_accounts_fiat
        SET is_default = TRUE, updated_at = NOW()
        WHERE id = $1 AND user_id = $2
        RETURNING ` + withdrawalAccountColumns

	account, err := scanWithdrawalAccount(tx.QueryRow(ctx, query, id, userID))
	if err != nil {
		return nil, mapWriteError("failed to set default withdrawal account", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapWriteError("failed to commit default switch", err)
	}
	return account, nil
}

// Delete removes a withdrawal account owned by userID.
func (r *PostgresWithdrawalAccountRepository) Delete(ctx context.Context, id, userID string) (*domain.WithdrawalAccount, error) {
	query := `
        DELETE FROM withdrawal_accounts_fiat
        WHERE id = $1 AND user_id = $2
        RETURNING ` + withdrawalAccountColumns

	account, err := scanWithdrawalAccount(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalAccountNotFound
		}
		return nil, fmt.Errorf("failed to delete withdrawal account: %w", err)
	}
	return account, nil
}

// FailStalePending fails every pending row created before olderThan.
func (r *PostgresWithdrawalAccountRepository) FailStalePending(ctx context.Context, olderThan time.Time, reason string) ([]domain.WithdrawalAccount, error) {
	query := `
        UPDATE withdrawal_accounts_fiat
        SET verification_status = 'failed', failure_reason = $2, is_default = FALSE, updated_at = NOW()
        WHERE verification_status = 'pending' AND created_at < $1
        RETURNING ` + withdrawalAccountColumns

	rows, err := r.db.Query(ctx, query, olderThan, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to fail stale withdrawal accounts: %w", err)
	}
	return collectWithdrawalAccounts(rows)
}

// ListFailedWithRecipient returns up to limit failed rows that still carry a
// provider recipient id.
func (r *PostgresWithdrawalAccountRepository) ListFailedWithRecipient(ctx context.Context, limit int) ([]domain.WithdrawalAccount, error) {
	query := `
        SELECT ` + withdrawalAccountColumns + `
        FROM withdrawal_accounts_fiat
        WHERE verification_status = 'failed' AND provider_recipient_id IS NOT NULL
        ORDER BY updated_at
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed withdrawal accounts: %w", err)
	}
	return collectWithdrawalAccounts(rows)
}

// ClearProviderRecipient drops the provider recipient id from a failed row.
func (r *PostgresWithdrawalAccountRepository) ClearProviderRecipient(ctx context.Context, id string) error {
	query := `
        UPDATE withdrawal_accounts_fiat
        SET provider_recipient_id = NULL, updated_at = NOW()
        WHERE id = $1 AND verification_status = 'failed'
    `
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear provider recipient: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrWithdrawalAccountNotFound
	}
	return nil
}

func lockUser(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text))`, userID); err != nil {
		return fmt.Errorf("failed to acquire user lock: %w", err)
	}
	return nil
}

func demoteDefault(ctx context.Context, tx pgx.Tx, userID, keepID string) error {
	query := `
        UPDATE withdrawal_accounts_fiat
        SET is_default = FALSE, updated_at = NOW()
        WHERE user_id = $1 AND is_default = TRUE AND id <> $2
    `
	if _, err := tx.Exec(ctx, query, userID, keepID); err != nil {
		return fmt.Errorf("failed to demote previous default: %w", err)
	}
	return nil
}

func scanWithdrawalAccount(row pgx.Row) (*domain.WithdrawalAccount, error) {
	var a domain.WithdrawalAccount
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.CountryCode,
		&a.CurrencyCode,
		&a.BankType,
		&a.BankName,
		&a.BankCode,
		&a.BankAccountNumber,
		&a.BankAccountName,
		&a.Provider,
		&a.ProviderRecipientID,
		&a.IdempotencyKey,
		&a.VerificationStatus,
		&a.FailureReason,
		&a.LastVerifiedAt,
		&a.IsDefault,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectWithdrawalAccounts(rows pgx.Rows) ([]domain.WithdrawalAccount, error) {
	defer rows.Close()

	accounts := make([]domain.WithdrawalAccount, 0)
	for rows.Next() {
		account, err := scanWithdrawalAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal account row: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate withdrawal account rows: %w", err)
	}
	return accounts, nil
}

func mapWriteError(action string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		log.Printf("level=warn component=store msg=\"unique constraint violation\" constraint=%s", pgErr.ConstraintName)
		return fmt.Errorf("%s: %w", action, ErrDuplicateWithdrawalAccount)
	}
	return fmt.Errorf("%s: %w", action, err)
}
