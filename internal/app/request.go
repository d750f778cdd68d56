/**
 * @description
 * This file parses and validates the body of a withdrawal account
 * registration request.
 *
 * Parsing runs in a fixed order:
 * 1. The body must be a JSON object.
 * 2. The country code selects the candidate bank types. Unsupported
 *    countries are rejected before anything else is validated.
 * 3. The envelope (country, currency, flags) is validated and the bank type
 *    is inferred from the candidates and `is_mobile_money`.
 * 4. The body is decoded again into the strict form for the bank type's
 *    schema family and validated field by field.
 *
 * @dependencies
 * - github.com/go-playground/validator/v10: struct tag validation.
 */
package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/transfa/withdrawal-account-service/internal/domain"
)

var (
	// ErrInvalidBody is returned when the body is not a JSON object.
	ErrInvalidBody = errors.New("invalid request body")
	// ErrNoBankTypes is returned when the country has no supported bank types.
	ErrNoBankTypes = errors.New("no bank types found for the specified country code")
)

// RequestError is a schema violation at a specific field path.
type RequestError struct {
	Path    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("error parsing the body (%s): %s", e.Path, e.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type requestEnvelope struct {
	CountryCode   string `json:"country_code" validate:"required,len=2,alpha"`
	CurrencyCode  string `json:"currency_code" validate:"required,len=3,alpha"`
	IsDefault     bool   `json:"is_default"`
	IsMobileMoney bool   `json:"is_mobile_money"`
}

type recipientForm struct {
	FirstName  string `json:"first_name" validate:"required,max=50"`
	MiddleName string `json:"middle_name,omitempty" validate:"omitempty,max=50"`
	LastName   string `json:"last_name" validate:"required,max=50"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
}

type addressForm struct {
	Line1      string `json:"line1" validate:"required,max=100"`
	Line2      string `json:"line2,omitempty" validate:"omitempty,max=100"`
	City       string `json:"city" validate:"required,max=60"`
	State      string `json:"state" validate:"required,max=60"`
	PostalCode string `json:"postal_code" validate:"required,max=12"`
	Country    string `json:"country" validate:"required,len=2,alpha"`
}

type ngnBankForm struct {
	requestEnvelope   `validate:"-"`
	BankCode          string `json:"bank_code" validate:"required,number,min=3,max=6"`
	BankName          string `json:"bank_name" validate:"required,max=100"`
	BankAccountNumber string `json:"bank_account_number" validate:"required,number,len=10"`
	BankAccountName   string `json:"bank_account_name" validate:"required,min=3,max=100"`
}

type localBankForm struct {
	requestEnvelope   `validate:"-"`
	BankCode          string         `json:"bank_code" validate:"required,max=20"`
	BankName          string         `json:"bank_name" validate:"required,max=100"`
	BankAccountNumber string         `json:"bank_account_number" validate:"required,number,min=6,max=20"`
	BankAccountName   string         `json:"bank_account_name" validate:"required,min=3,max=100"`
	Recipient         *recipientForm `json:"recipient" validate:"required"`
}

type gbpBankForm struct {
	requestEnvelope   `validate:"-"`
	BankName          string         `json:"bank_name" validate:"required,max=100"`
	BankAccountNumber string         `json:"bank_account_number" validate:"required,number,len=8"`
	SortCode          string         `json:"sort_code" validate:"required,number,len=6"`
	BankAccountName   string         `json:"bank_account_name" validate:"required,min=3,max=100"`
	Recipient         *recipientForm `json:"recipient" validate:"required"`
	Address           *addressForm   `json:"address" validate:"required"`
}

type usdBankForm struct {
	requestEnvelope   `validate:"-"`
	BankName          string         `json:"bank_name" validate:"required,max=100"`
	BankAccountNumber string         `json:"bank_account_number" validate:"required,number,min=4,max=17"`
	RoutingNumber     string         `json:"routing_number" validate:"required,number,len=9"`
	AccountType       string         `json:"account_type" validate:"required,oneof=checking savings"`
	SwiftCode         string         `json:"swift_code,omitempty" validate:"omitempty,alphanum,min=8,max=11"`
	BankAccountName   string         `json:"bank_account_name" validate:"required,min=3,max=100"`
	Recipient         *recipientForm `json:"recipient" validate:"required"`
	Address           *addressForm   `json:"address" validate:"required"`
}

type mobileMoneyForm struct {
	requestEnvelope   `validate:"-"`
	Network           string         `json:"network" validate:"required"`
	BankName          string         `json:"bank_name" validate:"required,max=100"`
	BankAccountNumber string         `json:"bank_account_number" validate:"required,number,min=9,max=15"`
	BankAccountName   string         `json:"bank_account_name" validate:"required,min=3,max=100"`
	Recipient         *recipientForm `json:"recipient" validate:"required"`
}

// WithdrawalAccountRequest is a validated registration request. Exactly one
// of the family forms is set, matching BankType.Family().
type WithdrawalAccountRequest struct {
	BankType      domain.BankType
	CountryCode   string
	CurrencyCode  string
	IsDefault     bool
	IsMobileMoney bool

	ngnBank     *ngnBankForm
	localBank   *localBankForm
	gbpBank     *gbpBankForm
	usdBank     *usdBankForm
	mobileMoney *mobileMoneyForm
}

// ParseWithdrawalAccountRequest decodes and validates a registration body.
// It returns ErrInvalidBody, ErrNoBankTypes or a *RequestError on failure.
func ParseWithdrawalAccountRequest(body []byte) (*WithdrawalAccountRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidBody)
	}

	var countryCode string
	_ = json.Unmarshal(fields["country_code"], &countryCode)
	countryCode = strings.ToUpper(strings.TrimSpace(countryCode))
	candidates := domain.BankTypesForCountry(countryCode)
	if len(candidates) == 0 {
		return nil, ErrNoBankTypes
	}

	var envelope requestEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, decodeError(err)
	}
	envelope.CountryCode = countryCode
	envelope.CurrencyCode = strings.ToUpper(strings.TrimSpace(envelope.CurrencyCode))
	if err := validate.Struct(envelope); err != nil {
		return nil, validationError(err)
	}

	bankType, _ := domain.InferBankType(candidates, envelope.IsMobileMoney)
	if envelope.CurrencyCode != bankType.Currency() {
		return nil, &RequestError{
			Path:    "currency_code",
			Message: fmt.Sprintf("Currency must be %s for %s", bankType.Currency(), countryCode),
		}
	}

	req := &WithdrawalAccountRequest{
		BankType:      bankType,
		CountryCode:   countryCode,
		CurrencyCode:  envelope.CurrencyCode,
		IsDefault:     envelope.IsDefault,
		IsMobileMoney: envelope.IsMobileMoney,
	}

	var err error
	switch bankType.Family() {
	case domain.SchemaNGNBank:
		req.ngnBank = &ngnBankForm{}
		err = decodeForm(body, req.ngnBank)
	case domain.SchemaLocalBank:
		req.localBank = &localBankForm{}
		err = decodeForm(body, req.localBank)
	case domain.SchemaGBPBank:
		req.gbpBank = &gbpBankForm{}
		err = decodeForm(body, req.gbpBank)
	case domain.SchemaUSDBank:
		req.usdBank = &usdBankForm{}
		err = decodeForm(body, req.usdBank)
	case domain.SchemaMobileMoney:
		req.mobileMoney = &mobileMoneyForm{}
		if err = decodeForm(body, req.mobileMoney); err == nil {
			err = validateNetwork(countryCode, req.mobileMoney)
		}
	default:
		err = fmt.Errorf("bank type %s has no schema", bankType)
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func decodeForm(body []byte, form interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(form); err != nil {
		return decodeError(err)
	}
	if err := validate.Struct(form); err != nil {
		return validationError(err)
	}
	return nil
}

func validateNetwork(countryCode string, form *mobileMoneyForm) error {
	network := strings.ToUpper(strings.TrimSpace(form.Network))
	networks := domain.MobileNetworks(countryCode)
	for _, candidate := range networks {
		if candidate == network {
			form.Network = network
			return nil
		}
	}
	return &RequestError{
		Path:    "network",
		Message: fmt.Sprintf("Must be one of: %s", strings.Join(networks, ", ")),
	}
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &RequestError{
			Path:    typeErr.Field,
			Message: fmt.Sprintf("Expected %s, received %s", typeErr.Type.Kind(), typeErr.Value),
		}
	}
	if msg := err.Error(); strings.HasPrefix(msg, "json: unknown field ") {
		field := strings.Trim(strings.TrimPrefix(msg, "json: unknown field "), `"`)
		return &RequestError{Path: field, Message: "Unrecognized key"}
	}
	return fmt.Errorf("%w: %v", ErrInvalidBody, err)
}

// validationError converts the first validator failure into a RequestError.
func validationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err
	}
	fe := validationErrs[0]
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	return &RequestError{Path: path, Message: errorMessage(fe)}
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "len":
		return fmt.Sprintf("Must be exactly %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "number":
		return "Must contain digits only"
	case "alpha":
		return "Must contain letters only"
	case "alphanum":
		return "Must contain letters and digits only"
	case "email":
		return "Invalid email"
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return "Invalid value"
	}
}
