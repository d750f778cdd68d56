/**
 * @description
 * This file defines the domain models for events published and consumed by the
 * withdrawal-account-service over RabbitMQ.
 *
 * @notes
 * - Events carry identifiers and display-safe fields only; full account
 *   numbers never leave the service.
 */
package domain

import "time"

const (
	// RoutingKeyWithdrawalAccountCreated is published after a record is verified.
	RoutingKeyWithdrawalAccountCreated = "withdrawal_account.created"
	// RoutingKeyRecipientOrphaned is published when a provider recipient has no
	// surviving local record and must be deleted at the provider.
	RoutingKeyRecipientOrphaned = "withdrawal_account.recipient_orphaned"
)

// WithdrawalAccountCreatedEvent announces a newly verified withdrawal account.
type WithdrawalAccountCreatedEvent struct {
	WithdrawalAccountID     string    `json:"withdrawal_account_id"`
	UserID                  string    `json:"user_id"`
	CountryCode             string    `json:"country_code"`
	CurrencyCode            string    `json:"currency_code"`
	BankType                BankType  `json:"bank_type"`
	BankAccountNumberMasked string    `json:"bank_account_number_masked"`
	IsDefault               bool      `json:"is_default"`
	Timestamp               time.Time `json:"timestamp"`
}

// RecipientOrphanedEvent requests deletion of a provider recipient.
type RecipientOrphanedEvent struct {
	ProviderRecipientID string    `json:"provider_recipient_id"`
	WithdrawalAccountID string    `json:"withdrawal_account_id,omitempty"`
	UserID              string    `json:"user_id,omitempty"`
	Reason              string    `json:"reason"`
	Timestamp           time.Time `json:"timestamp"`
}
