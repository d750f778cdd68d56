package app

import "strings"

const maskRune = '•'

// MaskAccountNumber replaces all but the last four characters with '•'.
// Values of four characters or fewer are returned unchanged.
func MaskAccountNumber(accountNumber string) string {
	runes := []rune(accountNumber)
	if len(runes) <= 4 {
		return accountNumber
	}
	return strings.Repeat(string(maskRune), len(runes)-4) + string(runes[len(runes)-4:])
}
