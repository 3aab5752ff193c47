package mpesa

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var ErrInvalidMSISDN = errors.New("mpesa: invalid mobile number")

// NormalizeMSISDN parses a Kenyan mobile number in any common notation
// (0712..., +254 712..., 254712...) and returns it as digits only, e.g.
// 254712345678.
func NormalizeMSISDN(raw string) (string, error) {
	return normalize(raw, defaultRegion)
}

func normalize(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidMSISDN
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", ErrInvalidMSISDN
	}
	if !phonenumbers.IsValidNumberForRegion(num, region) {
		return "", ErrInvalidMSISDN
	}
	switch phonenumbers.GetNumberType(num) {
	case phonenumbers.MOBILE, phonenumbers.FIXED_LINE_OR_MOBILE:
	default:
		return "", ErrInvalidMSISDN
	}
	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+"), nil
}
