/**
 * @description
 * This file contains the core business logic for the withdrawal-account-service,
 * implemented as a `WithdrawalAccountService`. It orchestrates registration by
 * coordinating the database repository, the Flutterwave client and the event
 * publisher.
 *
 * Registration is a saga:
 * 1. A pending row is inserted before the provider is called.
 * 2. A provider failure marks the row failed. When the provider outcome is
 *    unknown the call is replayed once with the same idempotency key; if it
 *    is still unknown the row stays pending for the reconciler.
 * 3. A persistence failure after the provider call deletes the provider
 *    recipient. If that deletion fails, a recipient_orphaned event is published
 *    for the cleanup consumer.
 *
 * @notes
 * - This service layer keeps the API handlers (controllers) thin and focused
 *   on HTTP concerns, while the business logic remains independent.
 * - Access tokens and full account numbers are never logged.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/withdrawal-account-service/internal/domain"
	"github.com/transfa/withdrawal-account-service/internal/store"
	"github.com/transfa/withdrawal-account-service/pkg/flutterwave"
)

const compensationTimeout = 20 * time.Second

// ErrAccessTokenUnavailable is returned when no provider access token can be obtained.
var ErrAccessTokenUnavailable = errors.New("failed to get access token for flutterwave")

// ProviderError wraps a failed provider call. Message is the provider's
// error message, or "Unknown error" when none was returned.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("failed to create transfer recipient: %s", e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed database write during registration.
type PersistenceError struct {
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to save account: %s", e.Message)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RecipientProvider is the subset of the Flutterwave client the service uses.
type RecipientProvider interface {
	AccessToken(ctx context.Context) (string, error)
	CreateTransferRecipient(ctx context.Context, accessToken string, req domain.CreateTransferRecipientRequest, idempotencyKey, traceID string) (*domain.TransferRecipient, error)
	DeleteTransferRecipient(ctx context.Context, accessToken, recipientID, traceID string) error
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// WithdrawalAccountService provides methods for managing withdrawal accounts.
type WithdrawalAccountService struct {
	repo      store.WithdrawalAccountRepository
	provider  RecipientProvider
	publisher EventPublisher
	exchange  string
	now       func() time.Time
}

// NewWithdrawalAccountService creates a new instance of WithdrawalAccountService.
func NewWithdrawalAccountService(repo store.WithdrawalAccountRepository, provider RecipientProvider, publisher EventPublisher, exchange string) *WithdrawalAccountService {
	return &WithdrawalAccountService{
		repo:      repo,
		provider:  provider,
		publisher: publisher,
		exchange:  exchange,
		now:       time.Now,
	}
}

// Create registers a withdrawal account for userID and returns its masked summary.
func (s *WithdrawalAccountService) Create(ctx context.Context, userID string, req *WithdrawalAccountRequest) (*domain.WithdrawalAccountSummary, error) {
	fields := NormalizeForDB(req)
	log.Printf("level=info component=service msg=\"registering withdrawal account\" user_id=%s bank_type=%s country=%s currency=%s bank_code=%s account_number=%s is_default=%t",
		userID, fields.BankType, fields.CountryCode, fields.CurrencyCode, fields.BankCode, MaskAccountNumber(fields.BankAccountNumber), req.IsDefault)

	accessToken, err := s.provider.AccessToken(ctx)
	if err != nil {
		log.Printf("level=error component=service msg=\"access token unavailable\" user_id=%s err=%v", userID, err)
		return nil, fmt.Errorf("%w: %v", ErrAccessTokenUnavailable, err)
	}

	idempotencyKey := uuid.NewString()
	traceID := uuid.NewString()

	pending, err := s.repo.CreatePending(ctx, &domain.WithdrawalAccount{
		ID:                 uuid.NewString(),
		UserID:             userID,
		CountryCode:        fields.CountryCode,
		CurrencyCode:       fields.CurrencyCode,
		BankType:           fields.BankType,
		BankName:           fields.BankName,
		BankCode:           fields.BankCode,
		BankAccountNumber:  fields.BankAccountNumber,
		BankAccountName:    fields.BankAccountName,
		Provider:           domain.ProviderFlutterwave,
		IdempotencyKey:     idempotencyKey,
		VerificationStatus: domain.VerificationPending,
	})
	if err != nil {
		log.Printf("level=error component=service msg=\"pending insert failed\" user_id=%s err=%v", userID, err)
		return nil, &PersistenceError{Message: persistenceMessage(err), Err: err}
	}

	log.Printf("level=info component=service msg=\"creating transfer recipient\" withdrawal_account_id=%s idempotency_key=%s trace_id=%s", pending.ID, idempotencyKey, traceID)
	payload := NormalizeForTransferRecipient(req)
	recipient, err := s.provider.CreateTransferRecipient(ctx, accessToken, payload, idempotencyKey, traceID)
	if flutterwave.IsOutcomeUnknown(err) {
		recipient, err = s.replayCreate(ctx, pending, accessToken, payload, err)
	}
	if err != nil {
		message := providerMessage(err)
		if flutterwave.IsOutcomeUnknown(err) {
			log.Printf("level=error component=service msg=\"transfer recipient outcome unknown; leaving withdrawal account pending\" withdrawal_account_id=%s idempotency_key=%s trace_id=%s err=%v", pending.ID, idempotencyKey, traceID, err)
			return nil, &ProviderError{Message: message, Err: err}
		}
		log.Printf("level=warn component=service msg=\"transfer recipient creation failed\" withdrawal_account_id=%s trace_id=%s err=%v", pending.ID, traceID, err)
		s.markFailed(ctx, pending.ID, message)
		return nil, &ProviderError{Message: message, Err: err}
	}
	log.Printf("level=info component=service msg=\"transfer recipient created\" withdrawal_account_id=%s recipient_id=%s trace_id=%s", pending.ID, recipient.ID, traceID)

	if err := s.repo.RecordProviderRecipient(ctx, pending.ID, recipient.ID); err != nil {
		return nil, s.compensate(ctx, pending, accessToken, recipient.ID, err)
	}

	verified, err := s.repo.MarkVerified(ctx, pending.ID, userID, req.IsDefault)
	if err != nil {
		return nil, s.compensate(ctx, pending, accessToken, recipient.ID, err)
	}

	summary := Summarize(verified)
	s.publish(ctx, domain.RoutingKeyWithdrawalAccountCreated, domain.WithdrawalAccountCreatedEvent{
		WithdrawalAccountID:     verified.ID,
		UserID:                  verified.UserID,
		CountryCode:             verified.CountryCode,
		CurrencyCode:            verified.CurrencyCode,
		BankType:                verified.BankType,
		BankAccountNumberMasked: summary.BankAccountNumberMasked,
		IsDefault:               verified.IsDefault,
		Timestamp:               s.now().UTC(),
	})

	log.Printf("level=info component=service msg=\"withdrawal account verified\" withdrawal_account_id=%s user_id=%s is_default=%t", verified.ID, userID, verified.IsDefault)
	return &summary, nil
}

// List returns the user's withdrawal accounts as masked summaries.
func (s *WithdrawalAccountService) List(ctx context.Context, userID string) ([]domain.WithdrawalAccountSummary, error) {
	accounts, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.WithdrawalAccountSummary, 0, len(accounts))
	for i := range accounts {
		summaries = append(summaries, Summarize(&accounts[i]))
	}
	return summaries, nil
}

// Get returns one of the user's withdrawal accounts.
func (s *WithdrawalAccountService) Get(ctx context.Context, userID, accountID string) (*domain.WithdrawalAccountSummary, error) {
	account, err := s.repo.FindByID(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	summary := Summarize(account)
	return &summary, nil
}

// SetDefault makes a verified withdrawal account the user's default.
func (s *WithdrawalAccountService) SetDefault(ctx context.Context, userID, accountID string) (*domain.WithdrawalAccountSummary, error) {
	account, err := s.repo.SetDefault(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	summary := Summarize(account)
	return &summary, nil
}

// Delete removes a withdrawal account and, best effort, its provider recipient.
func (s *WithdrawalAccountService) Delete(ctx context.Context, userID, accountID string) error {
	account, err := s.repo.Delete(ctx, accountID, userID)
	if err != nil {
		return err
	}
	log.Printf("level=info component=service msg=\"withdrawal account deleted\" withdrawal_account_id=%s user_id=%s", account.ID, userID)

	if account.ProviderRecipientID == nil || *account.ProviderRecipientID == "" {
		return nil
	}
	recipientID := *account.ProviderRecipientID

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	accessToken, err := s.provider.AccessToken(cleanupCtx)
	if err == nil {
		err = s.provider.DeleteTransferRecipient(cleanupCtx, accessToken, recipientID, uuid.NewString())
	}
	if err != nil && !flutterwave.IsNotFound(err) {
		log.Printf("level=warn component=service msg=\"provider recipient delete failed; scheduling cleanup\" recipient_id=%s err=%v", recipientID, err)
		s.publishOrphan(cleanupCtx, account, recipientID, "withdrawal account deleted")
	}
	return nil
}

// replayCreate repeats a create call whose outcome is unknown. The stored
// idempotency key makes Flutterwave return the recipient it already created.
func (s *WithdrawalAccountService) replayCreate(ctx context.Context, pending *domain.WithdrawalAccount, accessToken string, payload domain.CreateTransferRecipientRequest, cause error) (*domain.TransferRecipient, error) {
	traceID := uuid.NewString()
	log.Printf("level=warn component=service msg=\"transfer recipient outcome unknown; replaying\" withdrawal_account_id=%s idempotency_key=%s trace_id=%s err=%v", pending.ID, pending.IdempotencyKey, traceID, cause)

	replayCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	return s.provider.CreateTransferRecipient(replayCtx, accessToken, payload, pending.IdempotencyKey, traceID)
}

// compensate undoes a registered provider recipient after a persistence
// failure and marks the pending row failed.
func (s *WithdrawalAccountService) compensate(ctx context.Context, pending *domain.WithdrawalAccount, accessToken, recipientID string, cause error) error {
	log.Printf("level=error component=service msg=\"persistence failed after provider call; compensating\" withdrawal_account_id=%s recipient_id=%s err=%v", pending.ID, recipientID, cause)

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.provider.DeleteTransferRecipient(cleanupCtx, accessToken, recipientID, uuid.NewString()); err != nil && !flutterwave.IsNotFound(err) {
		log.Printf("level=warn component=service msg=\"compensating delete failed; scheduling cleanup\" recipient_id=%s err=%v", recipientID, err)
		s.publishOrphan(cleanupCtx, pending, recipientID, "persistence failed after recipient creation")
	}

	s.markFailed(cleanupCtx, pending.ID, "persistence failed after recipient creation")
	return &PersistenceError{Message: persistenceMessage(cause), Err: cause}
}

func (s *WithdrawalAccountService) markFailed(ctx context.Context, id, reason string) {
	if err := s.repo.MarkFailed(ctx, id, reason); err != nil && !errors.Is(err, store.ErrWithdrawalAccountNotFound) {
		log.Printf("level=error component=service msg=\"failed to mark withdrawal account failed\" withdrawal_account_id=%s err=%v", id, err)
	}
}

func (s *WithdrawalAccountService) publishOrphan(ctx context.Context, account *domain.WithdrawalAccount, recipientID, reason string) {
	s.publish(ctx, domain.RoutingKeyRecipientOrphaned, domain.RecipientOrphanedEvent{
		ProviderRecipientID: recipientID,
		WithdrawalAccountID: account.ID,
		UserID:              account.UserID,
		Reason:              reason,
		Timestamp:           s.now().UTC(),
	})
}

func (s *WithdrawalAccountService) publish(ctx context.Context, routingKey string, event interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, s.exchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed\" exchange=%s routing_key=%s err=%v", s.exchange, routingKey, err)
	}
}

// Summarize converts a stored withdrawal account into its display-safe view.
func Summarize(a *domain.WithdrawalAccount) domain.WithdrawalAccountSummary {
	return domain.WithdrawalAccountSummary{
		ID:                      a.ID,
		CurrencyCode:            a.CurrencyCode,
		CountryCode:             a.CountryCode,
		BankType:                a.BankType,
		BankName:                a.BankName,
		BankCode:                a.BankCode,
		BankAccountNumberMasked: MaskAccountNumber(a.BankAccountNumber),
		BankAccountName:         a.BankAccountName,
		IsDefault:               a.IsDefault,
		Provider:                a.Provider,
		VerificationStatus:      a.VerificationStatus,
		LastVerifiedAt:          a.LastVerifiedAt,
		CreatedAt:               a.CreatedAt,
	}
}

func providerMessage(err error) string {
	var apiErr *flutterwave.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Unknown error"
}

func persistenceMessage(err error) string {
	if errors.Is(err, store.ErrDuplicateWithdrawalAccount) {
		return "This withdrawal account is already registered."
	}
	return "Could not save the withdrawal account. Please try again."
}
