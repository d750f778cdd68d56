/**
 * @description
 * This file defines the core domain model for a fiat WithdrawalAccount. A
 * withdrawal account is a user's registered payout destination (a bank account
 * or mobile wallet) backed by a Flutterwave transfer recipient.
 *
 * @notes
 * - Rows are created in the `pending` state before the provider is called and
 *   move to `verified` or `failed` afterwards.
 * - At most one verified row per user carries IsDefault.
 */
package domain

import "time"

// VerificationStatus tracks a withdrawal account through registration.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

// ProviderFlutterwave is the provider recorded on every withdrawal account.
const ProviderFlutterwave = "flutterwave"

// WithdrawalAccount represents a row of the withdrawal_accounts_fiat table.
type WithdrawalAccount struct {
	ID                  string             `json:"id"`
	UserID              string             `json:"user_id"`
	CountryCode         string             `json:"country_code"`
	CurrencyCode        string             `json:"currency_code"`
	BankType            BankType           `json:"bank_type"`
	BankName            string             `json:"bank_name"`
	BankCode            string             `json:"bank_code"`
	BankAccountNumber   string             `json:"bank_account_number"`
	BankAccountName     string             `json:"bank_account_name"`
	Provider            string             `json:"provider"`
	ProviderRecipientID *string            `json:"provider_recipient_id,omitempty"`
	IdempotencyKey      string             `json:"idempotency_key"`
	VerificationStatus  VerificationStatus `json:"verification_status"`
	FailureReason       *string            `json:"failure_reason,omitempty"`
	LastVerifiedAt      *time.Time         `json:"last_verified_at,omitempty"`
	IsDefault           bool               `json:"is_default"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// BankFields is the persistence-shaped projection of a validated request.
type BankFields struct {
	CountryCode       string
	CurrencyCode      string
	BankType          BankType
	BankName          string
	BankCode          string
	BankAccountNumber string
	BankAccountName   string
}

// WithdrawalAccountSummary is the display-safe view returned to clients.
type WithdrawalAccountSummary struct {
	ID                      string             `json:"id"`
	CurrencyCode            string             `json:"currency_code"`
	CountryCode             string             `json:"country_code"`
	BankType                BankType           `json:"bank_type"`
	BankName                string             `json:"bank_name"`
	BankCode                string             `json:"bank_code"`
	BankAccountNumberMasked string             `json:"bank_account_number_masked"`
	BankAccountName         string             `json:"bank_account_name"`
	IsDefault               bool               `json:"is_default"`
	Provider                string             `json:"provider"`
	VerificationStatus      VerificationStatus `json:"verification_status"`
	LastVerifiedAt          *time.Time         `json:"last_verified_at,omitempty"`
	CreatedAt               time.Time          `json:"created_at"`
}
