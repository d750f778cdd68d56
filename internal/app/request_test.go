package app

import (
	"errors"
	"testing"

	"github.com/transfa/withdrawal-account-service/internal/domain"
)

const (
	ngnBankBody = `{"country_code":"ng","currency_code":"NGN","bank_code":"044","bank_name":"Access Bank","bank_account_number":"0123456789","bank_account_name":"Ada Chi Obi","is_default":true}`
	ghsBankBody = `{"country_code":"GH","currency_code":"GHS","bank_code":"GH280100","bank_name":"Ecobank","bank_account_number":"1441000565","bank_account_name":"Kofi Mensah","recipient":{"first_name":"Kofi","last_name":"Mensah"}}`
	ghsMomoBody = `{"country_code":"GH","currency_code":"GHS","is_mobile_money":true,"network":"mtn","bank_name":"MTN MoMo","bank_account_number":"233241234567","bank_account_name":"Kofi Mensah","recipient":{"first_name":"Kofi","last_name":"Mensah","email":"kofi@example.com"}}`
	gbpBankBody = `{"country_code":"GB","currency_code":"GBP","bank_name":"Barclays","bank_account_number":"31926819","sort_code":"200000","bank_account_name":"Jane Doe","recipient":{"first_name":"Jane","last_name":"Doe"},"address":{"line1":"1 High Street","city":"London","state":"London","postal_code":"EC1A1BB","country":"gb"}}`
	usdBankBody = `{"country_code":"US","currency_code":"USD","bank_name":"Chase","bank_account_number":"000123456789","routing_number":"021000021","account_type":"checking","swift_code":"chasus33","bank_account_name":"John Roe","recipient":{"first_name":"John","last_name":"Roe"},"address":{"line1":"270 Park Ave","city":"New York","state":"NY","postal_code":"10017","country":"US"}}`
)

func TestParseWithdrawalAccountRequest_InfersBankType(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.BankType
	}{
		{name: "single variant country", body: ngnBankBody, want: domain.BankTypeNGN},
		{
			name: "single variant ignores mobile money flag",
			body: `{"country_code":"NG","currency_code":"NGN","is_mobile_money":true,"bank_code":"044","bank_name":"Access Bank","bank_account_number":"0123456789","bank_account_name":"Ada Obi"}`,
			want: domain.BankTypeNGN,
		},
		{name: "two variants, bank", body: ghsBankBody, want: domain.BankTypeGHS},
		{name: "two variants, mobile money", body: ghsMomoBody, want: domain.BankTypeMobileMoneyGHS},
		{name: "gbp", body: gbpBankBody, want: domain.BankTypeGBP},
		{name: "usd", body: usdBankBody, want: domain.BankTypeUSD},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := ParseWithdrawalAccountRequest([]byte(tc.body))
			if err != nil {
				t.Fatalf("ParseWithdrawalAccountRequest returned error: %v", err)
			}
			if req.BankType != tc.want {
				t.Fatalf("expected bank type %s, got %s", tc.want, req.BankType)
			}
		})
	}
}

func TestParseWithdrawalAccountRequest_UppercasesCountryAndCurrency(t *testing.T) {
	req, err := ParseWithdrawalAccountRequest([]byte(`{"country_code":"ng","currency_code":"ngn","bank_code":"044","bank_name":"Access Bank","bank_account_number":"0123456789","bank_account_name":"Ada Obi"}`))
	if err != nil {
		t.Fatalf("ParseWithdrawalAccountRequest returned error: %v", err)
	}
	if req.CountryCode != "NG" || req.CurrencyCode != "NGN" {
		t.Fatalf("expected NG/NGN, got %s/%s", req.CountryCode, req.CurrencyCode)
	}
}

func TestParseWithdrawalAccountRequest_InvalidBody(t *testing.T) {
	for _, body := range []string{"", "{", "[]", "null", `"text"`} {
		_, err := ParseWithdrawalAccountRequest([]byte(body))
		if !errors.Is(err, ErrInvalidBody) {
			t.Fatalf("body %q: expected ErrInvalidBody, got %v", body, err)
		}
	}
}

func TestParseWithdrawalAccountRequest_UnsupportedCountry(t *testing.T) {
	for _, body := range []string{
		`{"country_code":"ZZ","currency_code":"NGN"}`,
		`{"currency_code":"NGN"}`,
		`{"country_code":"ZZ","currency_code":12,"bank_account_number":false}`,
	} {
		_, err := ParseWithdrawalAccountRequest([]byte(body))
		if !errors.Is(err, ErrNoBankTypes) {
			t.Fatalf("body %s: expected ErrNoBankTypes, got %v", body, err)
		}
	}
}

func TestParseWithdrawalAccountRequest_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantPath string
	}{
		{
			name:     "missing bank code",
			body:     `{"country_code":"NG","currency_code":"NGN","bank_name":"Access Bank","bank_account_number":"0123456789","bank_account_name":"Ada Obi"}`,
			wantPath: "bank_code",
		},
		{
			name:     "short nuban",
			body:     `{"country_code":"NG","currency_code":"NGN","bank_code":"044","bank_name":"Access Bank","bank_account_number":"01234","bank_account_name":"Ada Obi"}`,
			wantPath: "bank_account_number",
		},
		{
			name:     "non digit account number",
			body:     `{"country_code":"NG","currency_code":"NGN","bank_code":"044","bank_name":"Access Bank","bank_account_number":"01234567.9","bank_account_name":"Ada Obi"}`,
			wantPath: "bank_account_number",
		},
		{
			name:     "currency mismatch",
			body:     `{"country_code":"GH","currency_code":"NGN","bank_code":"GH280100","bank_name":"Ecobank","bank_account_number":"1441000565","bank_account_name":"Kofi Mensah","recipient":{"first_name":"Kofi","last_name":"Mensah"}}`,
			wantPath: "currency_code",
		},
		{
			name:     "currency wrong length",
			body:     `{"country_code":"NG","currency_code":"NG"}`,
			wantPath: "currency_code",
		},
		{
			name:     "flag with wrong type",
			body:     `{"country_code":"NG","currency_code":"NGN","is_default":"yes"}`,
			wantPath: "is_default",
		},
		{
			name:     "nested recipient field",
			body:     `{"country_code":"GH","currency_code":"GHS","bank_code":"GH280100","bank_name":"Ecobank","bank_account_number":"1441000565","bank_account_name":"Kofi Mensah","recipient":{"first_name":"Kofi"}}`,
			wantPath: "recipient.last_name",
		},
		{
			name:     "missing recipient",
			body:     `{"country_code":"KE","currency_code":"KES","bank_code":"KE01","bank_name":"KCB","bank_account_number":"1100223344","bank_account_name":"Wanjiru Kamau"}`,
			wantPath: "recipient",
		},
		{
			name:     "unknown field for schema",
			body:     `{"country_code":"NG","currency_code":"NGN","bank_code":"044","bank_name":"Access Bank","bank_account_number":"0123456789","bank_account_name":"Ada Obi","sort_code":"200000"}`,
			wantPath: "sort_code",
		},
		{
			name:     "unsupported network",
			body:     `{"country_code":"GH","currency_code":"GHS","is_mobile_money":true,"network":"ORANGE","bank_name":"Orange Money","bank_account_number":"233241234567","bank_account_name":"Kofi Mensah","recipient":{"first_name":"Kofi","last_name":"Mensah"}}`,
			wantPath: "network",
		},
		{
			name:     "usd account type",
			body:     `{"country_code":"US","currency_code":"USD","bank_name":"Chase","bank_account_number":"000123456789","routing_number":"021000021","account_type":"business","bank_account_name":"John Roe","recipient":{"first_name":"John","last_name":"Roe"},"address":{"line1":"270 Park Ave","city":"New York","state":"NY","postal_code":"10017","country":"US"}}`,
			wantPath: "account_type",
		},
		{
			name:     "gbp address country",
			body:     `{"country_code":"GB","currency_code":"GBP","bank_name":"Barclays","bank_account_number":"31926819","sort_code":"200000","bank_account_name":"Jane Doe","recipient":{"first_name":"Jane","last_name":"Doe"},"address":{"line1":"1 High Street","city":"London","state":"London","postal_code":"EC1A1BB","country":"GBR"}}`,
			wantPath: "address.country",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseWithdrawalAccountRequest([]byte(tc.body))
			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("expected *RequestError, got %v", err)
			}
			if reqErr.Path != tc.wantPath {
				t.Fatalf("expected path %q, got %q (%s)", tc.wantPath, reqErr.Path, reqErr.Message)
			}
			if reqErr.Message == "" {
				t.Fatal("expected a message")
			}
		})
	}
}

func TestParseWithdrawalAccountRequest_NormalizesNetwork(t *testing.T) {
	req, err := ParseWithdrawalAccountRequest([]byte(ghsMomoBody))
	if err != nil {
		t.Fatalf("ParseWithdrawalAccountRequest returned error: %v", err)
	}
	if req.mobileMoney == nil || req.mobileMoney.Network != "MTN" {
		t.Fatalf("expected network MTN, got %+v", req.mobileMoney)
	}
}
