/**
 * @description
 * This file defines the closed set of bank types (payout rails) supported for
 * withdrawal accounts, and the per-country lookup table used to pick one.
 *
 * @notes
 * - The order of bank types per country is significant: the bank rail comes
 *   first and the mobile money rail second. Inference relies on it.
 * - Bank type values double as the Flutterwave transfer recipient `type`.
 */
package domain

import "strings"

// BankType identifies the payout rail, and therefore the validation schema and
// provider payload shape, of a withdrawal account.
type BankType string

const (
	BankTypeNGN            BankType = "bank_ngn"
	BankTypeGHS            BankType = "bank_ghs"
	BankTypeKES            BankType = "bank_kes"
	BankTypeZAR            BankType = "bank_zar"
	BankTypeGBP            BankType = "bank_gbp"
	BankTypeUSD            BankType = "bank_usd"
	BankTypeMobileMoneyGHS BankType = "mobile_money_ghs"
	BankTypeMobileMoneyKES BankType = "mobile_money_kes"
	BankTypeMobileMoneyUGX BankType = "mobile_money_ugx"
	BankTypeMobileMoneyRWF BankType = "mobile_money_rwf"
	BankTypeMobileMoneyTZS BankType = "mobile_money_tzs"
	BankTypeMobileMoneyZMW BankType = "mobile_money_zmw"
	BankTypeMobileMoneyXAF BankType = "mobile_money_xaf"
	BankTypeMobileMoneyXOF BankType = "mobile_money_xof"
)

// SchemaFamily groups bank types that share a request schema and payload shape.
type SchemaFamily string

const (
	SchemaNGNBank     SchemaFamily = "ngn_bank"
	SchemaLocalBank   SchemaFamily = "local_bank"
	SchemaGBPBank     SchemaFamily = "gbp_bank"
	SchemaUSDBank     SchemaFamily = "usd_bank"
	SchemaMobileMoney SchemaFamily = "mobile_money"
)

type bankTypeInfo struct {
	currency string
	family   SchemaFamily
}

var bankTypes = map[BankType]bankTypeInfo{
	BankTypeNGN:            {currency: "NGN", family: SchemaNGNBank},
	BankTypeGHS:            {currency: "GHS", family: SchemaLocalBank},
	BankTypeKES:            {currency: "KES", family: SchemaLocalBank},
	BankTypeZAR:            {currency: "ZAR", family: SchemaLocalBank},
	BankTypeGBP:            {currency: "GBP", family: SchemaGBPBank},
	BankTypeUSD:            {currency: "USD", family: SchemaUSDBank},
	BankTypeMobileMoneyGHS: {currency: "GHS", family: SchemaMobileMoney},
	BankTypeMobileMoneyKES: {currency: "KES", family: SchemaMobileMoney},
	BankTypeMobileMoneyUGX: {currency: "UGX", family: SchemaMobileMoney},
	BankTypeMobileMoneyRWF: {currency: "RWF", family: SchemaMobileMoney},
	BankTypeMobileMoneyTZS: {currency: "TZS", family: SchemaMobileMoney},
	BankTypeMobileMoneyZMW: {currency: "ZMW", family: SchemaMobileMoney},
	BankTypeMobileMoneyXAF: {currency: "XAF", family: SchemaMobileMoney},
	BankTypeMobileMoneyXOF: {currency: "XOF", family: SchemaMobileMoney},
}

// countryBankTypes is ordered: bank first, mobile money second.
var countryBankTypes = map[string][]BankType{
	"NG": {BankTypeNGN},
	"GH": {BankTypeGHS, BankTypeMobileMoneyGHS},
	"KE": {BankTypeKES, BankTypeMobileMoneyKES},
	"UG": {BankTypeMobileMoneyUGX},
	"RW": {BankTypeMobileMoneyRWF},
	"TZ": {BankTypeMobileMoneyTZS},
	"ZM": {BankTypeMobileMoneyZMW},
	"CM": {BankTypeMobileMoneyXAF},
	"CI": {BankTypeMobileMoneyXOF},
	"SN": {BankTypeMobileMoneyXOF},
	"ZA": {BankTypeZAR},
	"GB": {BankTypeGBP},
	"US": {BankTypeUSD},
}

// mobileNetworks lists the wallet operators Flutterwave pays out to per country.
var mobileNetworks = map[string][]string{
	"GH": {"MTN", "VODAFONE", "AIRTELTIGO"},
	"KE": {"MPESA", "AIRTEL"},
	"UG": {"MTN", "AIRTEL"},
	"RW": {"MTN", "AIRTEL"},
	"TZ": {"MPESA", "AIRTEL", "TIGO", "HALOPESA"},
	"ZM": {"MTN", "AIRTEL", "ZAMTEL"},
	"CM": {"MTN", "ORANGE"},
	"CI": {"MTN", "ORANGE", "MOOV", "WAVE"},
	"SN": {"ORANGE", "FREE", "WAVE"},
}

// BankTypesForCountry returns the ordered bank types supported for an ISO
// alpha-2 country code. The returned slice is a copy; it is empty for
// unsupported countries.
func BankTypesForCountry(countryCode string) []BankType {
	types := countryBankTypes[strings.ToUpper(strings.TrimSpace(countryCode))]
	out := make([]BankType, len(types))
	copy(out, types)
	return out
}

// InferBankType picks the bank type for a request. With two candidates the
// mobile money flag selects the second; with one it is returned as is.
func InferBankType(candidates []BankType, isMobileMoney bool) (BankType, bool) {
	switch len(candidates) {
	case 0:
		return "", false
	case 2:
		if isMobileMoney {
			return candidates[1], true
		}
		return candidates[0], true
	default:
		return candidates[0], true
	}
}

// MobileNetworks returns the supported mobile money operators for a country.
func MobileNetworks(countryCode string) []string {
	networks := mobileNetworks[strings.ToUpper(countryCode)]
	out := make([]string, len(networks))
	copy(out, networks)
	return out
}

// Currency is the ISO 4217 code paid out on this rail.
func (b BankType) Currency() string {
	return bankTypes[b].currency
}

// Family returns the schema family of the bank type.
func (b BankType) Family() SchemaFamily {
	return bankTypes[b].family
}
