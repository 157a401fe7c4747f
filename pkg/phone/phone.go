// Package phone normalises Nigerian mobile numbers to the 234XXXXXXXXXX form
// used as the account identity.
package phone

import (
	"errors"
	"strings"
)

var ErrInvalid = errors.New("invalid Nigerian phone number")

const countryCode = "234"

// Normalize accepts 0XXXXXXXXXX, XXXXXXXXXX, 234XXXXXXXXXX and +234XXXXXXXXXX
// with any spacing or dashes.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	var local string
	switch {
	case len(digits) == 13 && strings.HasPrefix(digits, countryCode):
		local = digits[3:]
	case len(digits) == 11 && digits[0] == '0':
		local = digits[1:]
	case len(digits) == 10:
		local = digits
	default:
		return "", ErrInvalid
	}

	// mobile ranges start with 7, 8 or 9
	if local[0] != '7' && local[0] != '8' && local[0] != '9' {
		return "", ErrInvalid
	}
	return countryCode + local, nil
}

func IsValid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

// Mask keeps the first four and last three digits.
func Mask(p string) string {
	if len(p) < 8 {
		return strings.Repeat("*", len(p))
	}
	return p[:4] + "****" + p[len(p)-3:]
}

// Local renders 234XXXXXXXXXX as 0XXXXXXXXXX, the format the provider expects.
func Local(p string) string {
	if len(p) == 13 && strings.HasPrefix(p, countryCode) {
		return "0" + p[3:]
	}
	return p
}
