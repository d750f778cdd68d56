package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/transfa/withdrawal-account-service/internal/domain"
	"github.com/transfa/withdrawal-account-service/internal/store"
	"github.com/transfa/withdrawal-account-service/pkg/flutterwave"
)

type accountRepoStub struct {
	store.WithdrawalAccountRepository

	createErr error
	recordErr error
	verifyErr error
	deleteErr error
	staleErr  error

	pending           *domain.WithdrawalAccount
	recordedRecipient string
	verifyCalls       int
	verifiedDefault   bool
	failed            map[string]string
	listed            []domain.WithdrawalAccount
	deleted           *domain.WithdrawalAccount
	stale             []domain.WithdrawalAccount
	staleCutoff       time.Time

	failedWithRecipient []domain.WithdrawalAccount
	cleared             []string
}

func (s *accountRepoStub) CreatePending(ctx context.Context, account *domain.WithdrawalAccount) (*domain.WithdrawalAccount, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	created := *account
	created.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	created.UpdatedAt = created.CreatedAt
	s.pending = &created
	return &created, nil
}

func (s *accountRepoStub) RecordProviderRecipient(ctx context.Context, id, providerRecipientID string) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recordedRecipient = providerRecipientID
	s.pending.ProviderRecipientID = &providerRecipientID
	return nil
}

func (s *accountRepoStub) MarkVerified(ctx context.Context, id, userID string, makeDefault bool) (*domain.WithdrawalAccount, error) {
	s.verifyCalls++
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	verified := *s.pending
	verified.VerificationStatus = domain.VerificationVerified
	verified.IsDefault = makeDefault
	now := verified.CreatedAt.Add(time.Second)
	verified.LastVerifiedAt = &now
	s.verifiedDefault = makeDefault
	return &verified, nil
}

func (s *accountRepoStub) MarkFailed(ctx context.Context, id, reason string) error {
	if s.failed == nil {
		s.failed = map[string]string{}
	}
	s.failed[id] = reason
	return nil
}

func (s *accountRepoStub) ListByUserID(ctx context.Context, userID string) ([]domain.WithdrawalAccount, error) {
	return s.listed, nil
}

func (s *accountRepoStub) FindByID(ctx context.Context, id, userID string) (*domain.WithdrawalAccount, error) {
	for i := range s.listed {
		if s.listed[i].ID == id && s.listed[i].UserID == userID {
			return &s.listed[i], nil
		}
	}
	return nil, store.ErrWithdrawalAccountNotFound
}

func (s *accountRepoStub) Delete(ctx context.Context, id, userID string) (*domain.WithdrawalAccount, error) {
	if s.deleteErr != nil {
		return nil, s.deleteErr
	}
	return s.deleted, nil
}

func (s *accountRepoStub) FailStalePending(ctx context.Context, olderThan time.Time, reason string) ([]domain.WithdrawalAccount, error) {
	s.staleCutoff = olderThan
	if s.staleErr != nil {
		return nil, s.staleErr
	}
	return s.stale, nil
}

func (s *accountRepoStub) ListFailedWithRecipient(ctx context.Context, limit int) ([]domain.WithdrawalAccount, error) {
	if len(s.failedWithRecipient) > limit {
		return s.failedWithRecipient[:limit], nil
	}
	return s.failedWithRecipient, nil
}

func (s *accountRepoStub) ClearProviderRecipient(ctx context.Context, id string) error {
	s.cleared = append(s.cleared, id)
	return nil
}

type providerStub struct {
	token     string
	tokenErr  error
	recipient *domain.TransferRecipient
	createErr error
	deleteErr error
	// createErrs is consumed one entry per call before createErr applies.
	createErrs []error
	deleteErrs map[string]error

	createCalls        int
	idempotencyKeys    []string
	lastPayload        domain.CreateTransferRecipientRequest
	lastIdempotencyKey string
	lastTraceID        string
	deletedIDs         []string
}

func (s *providerStub) AccessToken(ctx context.Context) (string, error) {
	if s.tokenErr != nil {
		return "", s.tokenErr
	}
	return s.token, nil
}

func (s *providerStub) CreateTransferRecipient(ctx context.Context, accessToken string, req domain.CreateTransferRecipientRequest, idempotencyKey, traceID string) (*domain.TransferRecipient, error) {
	s.createCalls++
	s.lastPayload = req
	s.lastIdempotencyKey = idempotencyKey
	s.lastTraceID = traceID
	s.idempotencyKeys = append(s.idempotencyKeys, idempotencyKey)
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return nil, err
		}
		return s.recipient, nil
	}
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.recipient, nil
}

func (s *providerStub) DeleteTransferRecipient(ctx context.Context, accessToken, recipientID, traceID string) error {
	s.deletedIDs = append(s.deletedIDs, recipientID)
	if err, ok := s.deleteErrs[recipientID]; ok {
		return err
	}
	return s.deleteErr
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type publisherStub struct {
	events []publishedEvent
	err    error
}

func (s *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	s.events = append(s.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return s.err
}

func newTestService(repo *accountRepoStub, provider *providerStub, publisher *publisherStub) *WithdrawalAccountService {
	return NewWithdrawalAccountService(repo, provider, publisher, "withdrawal_account_events")
}

func TestCreate_Success(t *testing.T) {
	repo := &accountRepoStub{}
	provider := &providerStub{token: "tok", recipient: &domain.TransferRecipient{ID: "rcb_1"}}
	publisher := &publisherStub{}
	svc := newTestService(repo, provider, publisher)

	summary, err := svc.Create(context.Background(), "user-1", mustParse(t, ngnBankBody))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if summary.BankAccountNumberMasked != "••••••6789" {
		t.Fatalf("unexpected masked number %q", summary.BankAccountNumberMasked)
	}
	if summary.CurrencyCode != "NGN" || summary.CountryCode != "NG" || summary.BankType != domain.BankTypeNGN {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.VerificationStatus != domain.VerificationVerified || !summary.IsDefault || summary.Provider != domain.ProviderFlutterwave {
		t.Fatalf("unexpected summary state: %+v", summary)
	}

	if repo.pending.IdempotencyKey == "" || repo.pending.IdempotencyKey != provider.lastIdempotencyKey {
		t.Fatalf("expected pending row to carry the provider idempotency key, got %q vs %q", repo.pending.IdempotencyKey, provider.lastIdempotencyKey)
	}
	if provider.lastTraceID == "" || provider.lastTraceID == provider.lastIdempotencyKey {
		t.Fatal("expected a distinct trace id")
	}
	if repo.pending.BankCode != "044" || repo.pending.BankAccountNumber != "0123456789" {
		t.Fatalf("expected normalized bank fields on the pending row, got %+v", repo.pending)
	}
	if repo.recordedRecipient != "rcb_1" || !repo.verifiedDefault {
		t.Fatalf("expected recipient rcb_1 recorded and verified as default, got %q default=%t", repo.recordedRecipient, repo.verifiedDefault)
	}

	if len(publisher.events) != 1 || publisher.events[0].routingKey != domain.RoutingKeyWithdrawalAccountCreated {
		t.Fatalf("expected one created event, got %+v", publisher.events)
	}
	event := publisher.events[0].body.(domain.WithdrawalAccountCreatedEvent)
	if event.BankAccountNumberMasked != "••••••6789" {
		t.Fatalf("event must carry the masked number, got %q", event.BankAccountNumberMasked)
	}
}

func TestCreate_FreshKeysPerAttempt(t *testing.T) {
	repo := &accountRepoStub{}
	provider := &providerStub{token: "tok", recipient: &domain.TransferRecipient{ID: "rcb_1"}}
	svc := newTestService(repo, provider, &publisherStub{})

	if _, err := svc.Create(context.Background(), "user-1", mustParse(t, ngnBankBody)); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	firstKey, firstTrace := provider.lastIdempotencyKey, provider.lastTraceID

	if _, err := svc.Create(context.Background(), "user-1", mustParse(t, ngnBankBody)); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if provider.lastIdempotencyKey == firstKey || provider.lastTraceID == firstTrace {
		t.Fatal("expected new idempotency key and trace id for each attempt")
	}
}

func TestCreate_ProviderErrorMarksFailed(t *testing.T) {
	repo := &accountRepoStub{}
	provider := &providerStub{
		token:     "tok",
		createErr: &flutterwave.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid account number"},
	}
	svc := newTestService(repo, provider, &publisherStub{})

	_, err := svc.Create(context.Background(), "user-1", mustParse(t, ngnBankBody))

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if providerErr.Message != "Invalid account number" {
		t.Fatalf("expected provider message, got %q", providerErr.Message)
	}
	if repo.failed[repo.pending.ID] != "Invalid account number" {
		t.Fatalf("expected pending row marked failed, got %v", repo.failed)
	}
	if repo.verifyCalls != 0 {
		t.Fatal("expected no verification after provider failure")
	}
}

func TestCreate_ProviderErrorWithoutMessage(t *testing.T) {
	repo := &accountRepoStub{}
	provider := &providerStub{token: "tok", createErr: errors.New("connection reset")}
	svc := newTestService(repo, provider, &publisherStub{})

	_, err := svc.Create(context.Background(), "user-1", mustParse(t, ngnBankBody))

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) || providerErr.Message != "Unknown error" {
		t.Fatalf("expected Unknown error provider failure, got %v", err)
	}
}

func TestCreate_UnknownOutcomeReplaysWithSameKey(t *testing.T) {
	repo := &accountRepoStub{}
	lost := fmt.Errorf("%w: response is missing the recipient id", flutterwave.ErrOutcomeUnknown)
	provider := &providerStub{
		token:      "tok",
		recipient:  &domain.TransferRecipient{ID: "rcb_9"},
		createErrs: []error{lost, nil},
	}
	svc := newTestService(repo, provider, &publisherStub{})

	summary, err := svc.Create(context.Background(), "user-1", mustParse(t, ngnBankBody))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if provider.createCalls != 2 {
		t.Fatalf("expected one replay, got %d provider calls", provider.createCalls)
	}
	if provider.idempotencyKeys[0] != provider.idempotencyKeys[1] || provider.idempotencyKeys[0] != repo.pending.IdempotencyKey {
		t.Fatalf("expected the replay to reuse the stored idempotency key, got %v", provider.idempotencyKeys)
	}
	if repo.recordedRecipient != "rcb_9" || summary.VerificationStatus != domain.VerificationVerified {
		t.Fatalf("expected replayed recipient to be recorded and verified, got %q %s", repo.recordedRecipient, summary.VerificationStatus)
	}
}

func TestCreate_UnresolvedOutcomeLeavesRowPending(t *testing.T) {
	repo := &accountRepoStub{}
	lost := fmt.Errorf("%w: http request failed: EOF", flutterwave.ErrOutcomeUnknown)
	provider := &providerStub{token: "tok", createErr: lost}
	publisher := &publisherStub{}
	svc := newTestService(repo, provider, publisher)

	_, err := svc.Create(context.Background(), "user-1", mustParse(t, ngnBankBody))

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) || providerErr.Message != "Unknown error" {
		t.Fatalf("expected Unknown error provider failure, got %v", err)
	}
	if provider.createCalls != 2 {
		t.Fatalf("expected one replay, got %d provider calls", provider.createCalls)
	}
	if _, failed := repo.failed[repo.pending.ID]; failed {
		t.Fatal("row with an unknown provider outcome must stay pending")
	}
	if repo.verifyCalls != 0 || len(provider.deletedIDs) != 0 || len(publisher.events) != 0 {
		t.Fatalf("expected no verification, deletes or events, got verify=%d deletes=%v events=%d", repo.verifyCalls, provider.deletedIDs, len(publisher.events))
	}
}

func TestCreate_ReplayRejectedMarksFailed(t *testing.T) {
	repo := &accountRepoStub{}
	lost := fmt.Errorf("%w: http request failed: EOF", flutterwave.ErrOutcomeUnknown)
	provider := &providerStub{
		token:      "tok",
		createErrs: []error{lost, &flutterwave.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid bank code"}},
	}
	svc := newTestService(repo, provider, &publisherStub{})

	if _, err := svc.Create(context.Background(), "user-1", mustParse(t, ngnBankBody)); err == nil {
		t.Fatal("expected error")
	}
	if repo.failed[repo.pending.ID] != "Invalid bank code" {
		t.Fatalf("expected the definitive rejection to fail the row, got %v", repo.failed)
	}
}

func TestCreate_AccessTokenUnavailable(t *testing.T) {
	repo := &accountRepoStub{}
	provider := &providerStub{tokenErr: errors.New("idp down")}
	svc := newTestService(repo, provider, &publisherStub{})

	_, err := svc.Create(context.Background(), "user-1", mustParse(t, ngnBankBody))
	if !errors.Is(err, ErrAccessTokenUnavailable) {
		t.Fatalf("expected ErrAccessTokenUnavailable, got %v", err)
	}
	if repo.pending != nil || provider.createCalls != 0 {
		t.Fatal("expected no insert and no provider call without a token")
	}
}

func TestCreate_PendingInsertFailureSkipsProvider(t *testing.T) {
	repo := &accountRepoStub{createErr: store.ErrDuplicateWithdrawalAccount}
	provider := &providerStub{token: "tok"}
	svc := newTestService(repo, provider, &publisherStub{})

	_, err := svc.Create(context.Background(), "user-1", mustParse(t, ngnBankBody))

	var persistenceErr *PersistenceError
	if !errors.As(err, &persistenceErr) {
		t.Fatalf("expected *PersistenceError, got %v", err)
	}
	if !strings.Contains(persistenceErr.Message, "already registered") {
		t.Fatalf("unexpected message %q", persistenceErr.Message)
	}
	if provider.createCalls != 0 {
		t.Fatal("expected provider not to be called")
	}
}

func TestCreate_VerifyFailureCompensates(t *testing.T) {
	repo := &accountRepoStub{verifyErr: errors.New("deadlock detected")}
	provider := &providerStub{token: "tok", recipient: &domain.TransferRecipient{ID: "rcb_9"}}
	publisher := &publisherStub{}
	svc := newTestService(repo, provider, publisher)

	_, err := svc.Create(context.Background(), "user-1", mustParse(t, ngnBankBody))

	var persistenceErr *PersistenceError
	if !errors.As(err, &persistenceErr) {
		t.Fatalf("expected *PersistenceError, got %v", err)
	}
	if len(provider.deletedIDs) != 1 || provider.deletedIDs[0] != "rcb_9" {
		t.Fatalf("expected compensating delete of rcb_9, got %v", provider.deletedIDs)
	}
	if _, ok := repo.failed[repo.pending.ID]; !ok {
		t.Fatal("expected pending row marked failed")
	}
	if len(publisher.events) != 0 {
		t.Fatalf("expected no events after successful compensation, got %+v", publisher.events)
	}
}

func TestCreate_FailedCompensationPublishesOrphan(t *testing.T) {
	repo := &accountRepoStub{recordErr: errors.New("connection lost")}
	provider := &providerStub{
		token:     "tok",
		recipient: &domain.TransferRecipient{ID: "rcb_9"},
		deleteErr: &flutterwave.APIError{StatusCode: http.StatusBadGateway},
	}
	publisher := &publisherStub{}
	svc := newTestService(repo, provider, publisher)

	if _, err := svc.Create(context.Background(), "user-1", mustParse(t, ngnBankBody)); err == nil {
		t.Fatal("expected error")
	}

	if len(publisher.events) != 1 || publisher.events[0].routingKey != domain.RoutingKeyRecipientOrphaned {
		t.Fatalf("expected one orphan event, got %+v", publisher.events)
	}
	event := publisher.events[0].body.(domain.RecipientOrphanedEvent)
	if event.ProviderRecipientID != "rcb_9" || event.WithdrawalAccountID != repo.pending.ID {
		t.Fatalf("unexpected orphan event: %+v", event)
	}
}

func TestList_MasksAccountNumbers(t *testing.T) {
	repo := &accountRepoStub{listed: []domain.WithdrawalAccount{
		{ID: "a", BankAccountNumber: "0123456789", VerificationStatus: domain.VerificationVerified, IsDefault: true},
		{ID: "b", BankAccountNumber: "233241234567", VerificationStatus: domain.VerificationPending},
	}}
	svc := newTestService(repo, &providerStub{}, &publisherStub{})

	summaries, err := svc.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(summaries) != 2 || summaries[0].BankAccountNumberMasked != "••••••6789" || summaries[1].BankAccountNumberMasked != "••••••••4567" {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
}

func TestDelete_ProviderFailurePublishesOrphan(t *testing.T) {
	recipientID := "rcb_5"
	repo := &accountRepoStub{deleted: &domain.WithdrawalAccount{ID: "acc-5", UserID: "user-1", ProviderRecipientID: &recipientID}}
	provider := &providerStub{token: "tok", deleteErr: errors.New("timeout")}
	publisher := &publisherStub{}
	svc := newTestService(repo, provider, publisher)

	if err := svc.Delete(context.Background(), "user-1", "acc-5"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(publisher.events) != 1 || publisher.events[0].routingKey != domain.RoutingKeyRecipientOrphaned {
		t.Fatalf("expected orphan event, got %+v", publisher.events)
	}
}

func TestDelete_RecipientAlreadyGone(t *testing.T) {
	recipientID := "rcb_5"
	repo := &accountRepoStub{deleted: &domain.WithdrawalAccount{ID: "acc-5", ProviderRecipientID: &recipientID}}
	provider := &providerStub{token: "tok", deleteErr: &flutterwave.APIError{StatusCode: http.StatusNotFound}}
	publisher := &publisherStub{}
	svc := newTestService(repo, provider, publisher)

	if err := svc.Delete(context.Background(), "user-1", "acc-5"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("expected no orphan event for a missing recipient, got %+v", publisher.events)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo := &accountRepoStub{deleteErr: store.ErrWithdrawalAccountNotFound}
	svc := newTestService(repo, &providerStub{}, &publisherStub{})

	if err := svc.Delete(context.Background(), "user-1", "missing"); !errors.Is(err, store.ErrWithdrawalAccountNotFound) {
		t.Fatalf("expected ErrWithdrawalAccountNotFound, got %v", err)
	}
}

func TestGet_ScopedToUser(t *testing.T) {
	repo := &accountRepoStub{listed: []domain.WithdrawalAccount{
		{ID: "acc-1", UserID: "user-1", BankAccountNumber: "0123456789"},
	}}
	svc := newTestService(repo, &providerStub{}, &publisherStub{})

	summary, err := svc.Get(context.Background(), "user-1", "acc-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if summary.BankAccountNumberMasked != "••••••6789" {
		t.Fatalf("unexpected masked number %q", summary.BankAccountNumberMasked)
	}

	if _, err := svc.Get(context.Background(), "user-2", "acc-1"); !errors.Is(err, store.ErrWithdrawalAccountNotFound) {
		t.Fatalf("expected another user's account to be hidden, got %v", err)
	}
}
