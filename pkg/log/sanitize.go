package log

import "strings"

// Field name fragments that mark a value as a credential.
var secretKeyFragments = []string{"token", "secret", "authorization", "password", "api_key"}

// Field name fragments that mark a value as a recipient phone number.
var phoneKeyFragments = []string{"phone", "recipient", "to"}

// SanitizeField masks sensitive values before they reach any log sink.
// Credentials keep only their last 4 characters; phone numbers keep the
// prefix and last 2 digits so operators can still correlate messages.
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lower := strings.ToLower(key)
	for _, fragment := range secretKeyFragments {
		if strings.Contains(lower, fragment) {
			return maskSecret(value)
		}
	}
	for _, fragment := range phoneKeyFragments {
		if lower == fragment || strings.Contains(lower, "phone") {
			return MaskPhone(value)
		}
	}

	return value
}

func maskSecret(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// MaskPhone keeps the leading 4 and trailing 2 characters of a phone
// number: +5215512345678 becomes +521********78.
func MaskPhone(value string) string {
	if len(value) <= 6 {
		return value
	}
	return value[:4] + strings.Repeat("*", len(value)-6) + value[len(value)-2:]
}
