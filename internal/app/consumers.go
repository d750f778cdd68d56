/**
 * @description
 * This file defines the event handler that processes
 * `withdrawal_account.recipient_orphaned` messages from RabbitMQ. Each message
 * names a Flutterwave transfer recipient that no longer has a local record
 * and must be deleted at the provider.
 *
 * @dependencies
 * - context, encoding/json, log: Standard Go libraries.
 * - The service's internal packages for domain models and the Flutterwave client.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/withdrawal-account-service/internal/domain"
	"github.com/transfa/withdrawal-account-service/pkg/flutterwave"
)

// RecipientCleanupHandler deletes orphaned provider recipients.
type RecipientCleanupHandler struct {
	provider RecipientProvider
	timeout  time.Duration
}

// NewRecipientCleanupHandler creates a new instance of RecipientCleanupHandler.
func NewRecipientCleanupHandler(provider RecipientProvider) *RecipientCleanupHandler {
	return &RecipientCleanupHandler{
		provider: provider,
		timeout:  30 * time.Second,
	}
}

// HandleRecipientOrphaned processes a recipient_orphaned event. It returns
// true to ack and false to requeue.
func (h *RecipientCleanupHandler) HandleRecipientOrphaned(body []byte) bool {
	var event domain.RecipientOrphanedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=cleanup_consumer msg=\"malformed recipient_orphaned event; acking\" err=%v", err)
		return true
	}
	if event.ProviderRecipientID == "" {
		log.Printf("level=warn component=cleanup_consumer msg=\"recipient_orphaned event missing recipient id; acking\" withdrawal_account_id=%s", event.WithdrawalAccountID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	accessToken, err := h.provider.AccessToken(ctx)
	if err != nil {
		log.Printf("level=warn component=cleanup_consumer msg=\"access token unavailable; requeueing\" recipient_id=%s err=%v", event.ProviderRecipientID, err)
		return false
	}

	traceID := uuid.NewString()
	err = h.provider.DeleteTransferRecipient(ctx, accessToken, event.ProviderRecipientID, traceID)
	switch {
	case err == nil:
		log.Printf("level=info component=cleanup_consumer msg=\"orphaned recipient deleted\" recipient_id=%s trace_id=%s reason=%q", event.ProviderRecipientID, traceID, event.Reason)
		return true
	case flutterwave.IsNotFound(err):
		log.Printf("level=info component=cleanup_consumer msg=\"orphaned recipient already gone\" recipient_id=%s", event.ProviderRecipientID)
		return true
	case isPermanentProviderError(err):
		log.Printf("level=error component=cleanup_consumer msg=\"provider rejected recipient delete; acking\" recipient_id=%s trace_id=%s err=%v", event.ProviderRecipientID, traceID, err)
		return true
	default:
		log.Printf("level=warn component=cleanup_consumer msg=\"recipient delete failed; requeueing\" recipient_id=%s trace_id=%s err=%v", event.ProviderRecipientID, traceID, err)
		return false
	}
}

// isPermanentProviderError reports 4xx responses that a retry cannot fix.
func isPermanentProviderError(err error) bool {
	var apiErr *flutterwave.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
		apiErr.StatusCode != http.StatusUnauthorized &&
		apiErr.StatusCode != http.StatusRequestTimeout &&
		apiErr.StatusCode != http.StatusTooManyRequests
}
