package app

import (
	"errors"
	"net/http"
	"testing"

	"github.com/transfa/withdrawal-account-service/pkg/flutterwave"
)

func TestHandleRecipientOrphaned(t *testing.T) {
	validBody := []byte(`{"provider_recipient_id":"rcb_1","withdrawal_account_id":"acc-1","reason":"test"}`)

	tests := []struct {
		name        string
		body        []byte
		provider    *providerStub
		wantAck     bool
		wantDeletes int
	}{
		{name: "malformed body", body: []byte("{"), provider: &providerStub{}, wantAck: true},
		{name: "missing recipient id", body: []byte(`{"reason":"x"}`), provider: &providerStub{}, wantAck: true},
		{name: "deleted", body: validBody, provider: &providerStub{token: "tok"}, wantAck: true, wantDeletes: 1},
		{
			name:        "already gone",
			body:        validBody,
			provider:    &providerStub{token: "tok", deleteErr: &flutterwave.APIError{StatusCode: http.StatusNotFound}},
			wantAck:     true,
			wantDeletes: 1,
		},
		{
			name:        "permanent rejection",
			body:        validBody,
			provider:    &providerStub{token: "tok", deleteErr: &flutterwave.APIError{StatusCode: http.StatusUnprocessableEntity}},
			wantAck:     true,
			wantDeletes: 1,
		},
		{
			name:        "rate limited",
			body:        validBody,
			provider:    &providerStub{token: "tok", deleteErr: &flutterwave.APIError{StatusCode: http.StatusTooManyRequests}},
			wantAck:     false,
			wantDeletes: 1,
		},
		{
			name:        "transient failure",
			body:        validBody,
			provider:    &providerStub{token: "tok", deleteErr: errors.New("timeout")},
			wantAck:     false,
			wantDeletes: 1,
		},
		{name: "no token", body: validBody, provider: &providerStub{tokenErr: errors.New("idp down")}, wantAck: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewRecipientCleanupHandler(tc.provider)
			if got := handler.HandleRecipientOrphaned(tc.body); got != tc.wantAck {
				t.Fatalf("expected ack=%t, got %t", tc.wantAck, got)
			}
			if len(tc.provider.deletedIDs) != tc.wantDeletes {
				t.Fatalf("expected %d deletes, got %d", tc.wantDeletes, len(tc.provider.deletedIDs))
			}
		})
	}
}
