// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const fallbackRegion = "US"

// NormalizeE164 formats a phone number to E.164 using region for numbers
// without a country prefix. The second return value reports whether the number
// parsed as valid; when it did not, the trimmed input is returned unchanged.
func NormalizeE164(input, region string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed, false
	}
	if region == "" {
		region = fallbackRegion
	}

	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return trimmed, false
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed, false
	}

	return phonenumbers.Format(number, phonenumbers.E164), true
}
