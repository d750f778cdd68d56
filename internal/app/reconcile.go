/**
 * @description
 * Reconciliation of withdrawal accounts stuck in the pending state, for
 * example after a crash between the provider call and verification or a
 * provider call whose outcome was never learned. Each pass also deletes
 * provider recipients still referenced by failed rows, so cleanup does not
 * depend on the broker having been reachable.
 */
package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/transfa/withdrawal-account-service/internal/domain"
	"github.com/transfa/withdrawal-account-service/internal/store"
	"github.com/transfa/withdrawal-account-service/pkg/flutterwave"
)

const (
	stalePendingReason = "registration did not complete"
	sweepBatchSize     = 50
)

// PendingReconciler fails stale pending rows and schedules cleanup of any
// provider recipient they already carry.
type PendingReconciler struct {
	repo       store.WithdrawalAccountRepository
	provider   RecipientProvider
	publisher  EventPublisher
	exchange   string
	staleAfter time.Duration
	now        func() time.Time
}

// NewPendingReconciler creates a new PendingReconciler.
func NewPendingReconciler(repo store.WithdrawalAccountRepository, provider RecipientProvider, publisher EventPublisher, exchange string, staleAfter time.Duration) *PendingReconciler {
	return &PendingReconciler{
		repo:       repo,
		provider:   provider,
		publisher:  publisher,
		exchange:   exchange,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Reconcile runs one pass and returns the number of rows failed.
func (r *PendingReconciler) Reconcile(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.staleAfter)
	accounts, err := r.repo.FailStalePending(ctx, cutoff, stalePendingReason)
	if err != nil {
		return 0, err
	}

	for _, account := range accounts {
		if account.ProviderRecipientID == nil || *account.ProviderRecipientID == "" {
			log.Printf("level=warn component=reconciler msg=\"stale pending row has no recipient id; provider outcome unknown\" withdrawal_account_id=%s user_id=%s idempotency_key=%s", account.ID, account.UserID, account.IdempotencyKey)
			continue
		}
		event := domain.RecipientOrphanedEvent{
			ProviderRecipientID: *account.ProviderRecipientID,
			WithdrawalAccountID: account.ID,
			UserID:              account.UserID,
			Reason:              stalePendingReason,
			Timestamp:           r.now().UTC(),
		}
		if err := r.publisher.Publish(ctx, r.exchange, domain.RoutingKeyRecipientOrphaned, event); err != nil {
			log.Printf("level=error component=reconciler msg=\"failed to publish recipient cleanup\" withdrawal_account_id=%s recipient_id=%s err=%v", account.ID, event.ProviderRecipientID, err)
		}
	}
	return len(accounts), nil
}

// SweepFailedRecipients deletes the provider recipients of failed rows and
// clears them locally. It returns the number of rows cleared.
func (r *PendingReconciler) SweepFailedRecipients(ctx context.Context) (int, error) {
	accounts, err := r.repo.ListFailedWithRecipient(ctx, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		return 0, nil
	}

	accessToken, err := r.provider.AccessToken(ctx)
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, account := range accounts {
		recipientID := *account.ProviderRecipientID
		err := r.provider.DeleteTransferRecipient(ctx, accessToken, recipientID, uuid.NewString())
		if err != nil && !flutterwave.IsNotFound(err) {
			log.Printf("level=warn component=reconciler msg=\"recipient delete failed; will retry\" withdrawal_account_id=%s recipient_id=%s err=%v", account.ID, recipientID, err)
			continue
		}
		if err := r.repo.ClearProviderRecipient(ctx, account.ID); err != nil && !errors.Is(err, store.ErrWithdrawalAccountNotFound) {
			log.Printf("level=error component=reconciler msg=\"failed to clear provider recipient\" withdrawal_account_id=%s err=%v", account.ID, err)
			continue
		}
		cleared++
	}
	return cleared, nil
}

// Run is the cron entrypoint.
func (r *PendingReconciler) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Sweep before failing stale rows so freshly failed rows get their
	// cleanup event first.
	swept, err := r.SweepFailedRecipients(ctx)
	if err != nil {
		log.Printf("level=error component=reconciler msg=\"failed recipient sweep failed\" err=%v", err)
	} else if swept > 0 {
		log.Printf("level=info component=reconciler msg=\"failed recipient sweep finished\" cleared=%d", swept)
	}

	log.Printf("level=info component=reconciler msg=\"starting stale pending reconciliation\" stale_after=%s", r.staleAfter)
	count, err := r.Reconcile(ctx)
	if err != nil {
		log.Printf("level=error component=reconciler msg=\"stale pending reconciliation failed\" err=%v", err)
		return
	}
	log.Printf("level=info component=reconciler msg=\"stale pending reconciliation finished\" failed=%d", count)
}
