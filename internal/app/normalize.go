/**
 * @description
 * This file converts a validated WithdrawalAccountRequest into the two shapes
 * the registration flow needs: the persisted bank fields and the Flutterwave
 * transfer recipient payload. Both conversions only rename and restructure.
 */
package app

import (
	"strings"

	"github.com/transfa/withdrawal-account-service/internal/domain"
)

// NormalizeForDB returns the bank fields stored on the withdrawal account.
// bank_code holds the rail's routing identifier: the bank code, the mobile
// money network, the GBP sort code or the USD routing number.
func NormalizeForDB(req *WithdrawalAccountRequest) domain.BankFields {
	fields := domain.BankFields{
		CountryCode:  strings.ToUpper(req.CountryCode),
		CurrencyCode: strings.ToUpper(req.CurrencyCode),
		BankType:     req.BankType,
	}

	switch {
	case req.ngnBank != nil:
		fields.BankName = req.ngnBank.BankName
		fields.BankCode = req.ngnBank.BankCode
		fields.BankAccountNumber = req.ngnBank.BankAccountNumber
		fields.BankAccountName = req.ngnBank.BankAccountName
	case req.localBank != nil:
		fields.BankName = req.localBank.BankName
		fields.BankCode = req.localBank.BankCode
		fields.BankAccountNumber = req.localBank.BankAccountNumber
		fields.BankAccountName = req.localBank.BankAccountName
	case req.gbpBank != nil:
		fields.BankName = req.gbpBank.BankName
		fields.BankCode = req.gbpBank.SortCode
		fields.BankAccountNumber = req.gbpBank.BankAccountNumber
		fields.BankAccountName = req.gbpBank.BankAccountName
	case req.usdBank != nil:
		fields.BankName = req.usdBank.BankName
		fields.BankCode = req.usdBank.RoutingNumber
		fields.BankAccountNumber = req.usdBank.BankAccountNumber
		fields.BankAccountName = req.usdBank.BankAccountName
	case req.mobileMoney != nil:
		fields.BankName = req.mobileMoney.BankName
		fields.BankCode = req.mobileMoney.Network
		fields.BankAccountNumber = req.mobileMoney.BankAccountNumber
		fields.BankAccountName = req.mobileMoney.BankAccountName
	}

	fields.BankName = strings.TrimSpace(fields.BankName)
	fields.BankCode = strings.TrimSpace(fields.BankCode)
	fields.BankAccountNumber = strings.TrimSpace(fields.BankAccountNumber)
	fields.BankAccountName = strings.TrimSpace(fields.BankAccountName)
	return fields
}

// NormalizeForTransferRecipient builds the Flutterwave create-recipient payload.
func NormalizeForTransferRecipient(req *WithdrawalAccountRequest) domain.CreateTransferRecipientRequest {
	payload := domain.CreateTransferRecipientRequest{Type: req.BankType}

	switch {
	case req.ngnBank != nil:
		payload.Name = splitAccountName(req.ngnBank.BankAccountName)
		payload.Bank = &domain.RecipientBank{
			AccountNumber: req.ngnBank.BankAccountNumber,
			Code:          req.ngnBank.BankCode,
		}
	case req.localBank != nil:
		payload.Name, payload.Email = recipientName(req.localBank.Recipient)
		payload.Bank = &domain.RecipientBank{
			AccountNumber: req.localBank.BankAccountNumber,
			Code:          req.localBank.BankCode,
			Name:          req.localBank.BankName,
		}
	case req.gbpBank != nil:
		payload.Name, payload.Email = recipientName(req.gbpBank.Recipient)
		payload.Address = recipientAddress(req.gbpBank.Address)
		payload.Bank = &domain.RecipientBank{
			AccountNumber: req.gbpBank.BankAccountNumber,
			SortCode:      req.gbpBank.SortCode,
			Name:          req.gbpBank.BankName,
		}
	case req.usdBank != nil:
		payload.Name, payload.Email = recipientName(req.usdBank.Recipient)
		payload.Address = recipientAddress(req.usdBank.Address)
		payload.Bank = &domain.RecipientBank{
			AccountNumber: req.usdBank.BankAccountNumber,
			RoutingNumber: req.usdBank.RoutingNumber,
			SwiftCode:     strings.ToUpper(req.usdBank.SwiftCode),
			AccountType:   req.usdBank.AccountType,
			Name:          req.usdBank.BankName,
		}
	case req.mobileMoney != nil:
		payload.Name, payload.Email = recipientName(req.mobileMoney.Recipient)
		payload.MobileMoney = &domain.RecipientMobileMoney{
			Network: req.mobileMoney.Network,
			MSISDN:  req.mobileMoney.BankAccountNumber,
			Country: req.CountryCode,
		}
	}

	return payload
}

// splitAccountName turns "Ada Chi Obi" into first, middle and last names.
// A single-word name is used as both first and last name.
func splitAccountName(accountName string) *domain.RecipientName {
	parts := strings.Fields(accountName)
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return &domain.RecipientName{First: parts[0], Last: parts[0]}
	default:
		return &domain.RecipientName{
			First:  parts[0],
			Middle: strings.Join(parts[1:len(parts)-1], " "),
			Last:   parts[len(parts)-1],
		}
	}
}

func recipientName(r *recipientForm) (*domain.RecipientName, string) {
	if r == nil {
		return nil, ""
	}
	return &domain.RecipientName{
		First:  strings.TrimSpace(r.FirstName),
		Middle: strings.TrimSpace(r.MiddleName),
		Last:   strings.TrimSpace(r.LastName),
	}, strings.TrimSpace(r.Email)
}

func recipientAddress(a *addressForm) *domain.RecipientAddress {
	if a == nil {
		return nil
	}
	return &domain.RecipientAddress{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    strings.ToUpper(a.Country),
	}
}
