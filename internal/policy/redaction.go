package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	// National identification numbers are eleven digits; BVNs share the shape.
	ninPattern = regexp.MustCompile(`\b\d{11}\b`)
)

// RedactPII masks patient identifiers before text reaches the logs. Backend
// error details can echo what the patient said.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Before phone, or every NIN would read as a phone number.
	next = ninPattern.ReplaceAllString(out, "[REDACTED_ID]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// Redact is RedactPII for log fields.
func Redact(input string) string {
	out, _ := RedactPII(input)
	return out
}
