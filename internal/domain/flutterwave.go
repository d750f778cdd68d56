/**
 * @description
 * This file defines the Go structs that map to the Flutterwave v4 transfer
 * recipient endpoints.
 *
 * @notes
 * - These structs are used by the Flutterwave client to serialize requests
 *   and deserialize responses. Optional sections are pointers so that the
 *   payload only carries what the recipient type needs.
 */
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RecipientName is a recipient's legal name.
type RecipientName struct {
	First  string `json:"first"`
	Middle string `json:"middle,omitempty"`
	Last   string `json:"last"`
}

// RecipientAddress is the postal address Flutterwave requires for
// international bank rails.
type RecipientAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// RecipientBank holds bank rail details.
type RecipientBank struct {
	AccountNumber string `json:"account_number"`
	Code          string `json:"code,omitempty"`
	Name          string `json:"name,omitempty"`
	SortCode      string `json:"sort_code,omitempty"`
	RoutingNumber string `json:"routing_number,omitempty"`
	SwiftCode     string `json:"swift_code,omitempty"`
	AccountType   string `json:"account_type,omitempty"`
	Branch        string `json:"branch,omitempty"`
}

// RecipientMobileMoney holds mobile wallet details.
type RecipientMobileMoney struct {
	Network string `json:"network"`
	MSISDN  string `json:"msisdn"`
	Country string `json:"country,omitempty"`
}

// CreateTransferRecipientRequest is the payload for POST /transfers/recipients.
type CreateTransferRecipientRequest struct {
	Type        BankType              `json:"type"`
	Name        *RecipientName        `json:"name,omitempty"`
	Email       string                `json:"email,omitempty"`
	Address     *RecipientAddress     `json:"address,omitempty"`
	Bank        *RecipientBank        `json:"bank,omitempty"`
	MobileMoney *RecipientMobileMoney `json:"mobile_money,omitempty"`
}

// TransferRecipient is the provider's record of a payout destination.
type TransferRecipient struct {
	ID          string                `json:"id"`
	Type        string                `json:"type"`
	Name        *RecipientName        `json:"name,omitempty"`
	Currency    string                `json:"currency,omitempty"`
	Email       string                `json:"email,omitempty"`
	Address     *RecipientAddress     `json:"address,omitempty"`
	Bank        *RecipientBank        `json:"bank,omitempty"`
	MobileMoney *RecipientMobileMoney `json:"mobile_money,omitempty"`
}

// UnmarshalJSON accepts the recipient id as a JSON string or number.
func (r *TransferRecipient) UnmarshalJSON(data []byte) error {
	type plain TransferRecipient
	aux := struct {
		ID json.RawMessage `json:"id"`
		*plain
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	raw := bytes.TrimSpace(aux.ID)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		r.ID = ""
	case raw[0] == '"':
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return err
		}
		r.ID = id
	default:
		var id json.Number
		if err := json.Unmarshal(raw, &id); err != nil {
			return fmt.Errorf("recipient id must be a string or number: %w", err)
		}
		r.ID = id.String()
	}
	return nil
}

// TransferRecipientResponse wraps a single recipient.
type TransferRecipientResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Data    TransferRecipient `json:"data"`
}

// FlutterwaveErrorEnvelope is the body Flutterwave returns on non-2xx responses.
type FlutterwaveErrorEnvelope struct {
	Status string `json:"status"`
	Error  struct {
		Type             string `json:"type"`
		Code             string `json:"code"`
		Message          string `json:"message"`
		ValidationErrors []struct {
			FieldName string `json:"field_name"`
			Message   string `json:"message"`
		} `json:"validation_errors"`
	} `json:"error"`
}
