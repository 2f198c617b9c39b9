package segment

import "regexp"

// Sensitive-pattern redaction runs before segmentation. This is best-effort
// masking, not a guarantee: patterns the expressions miss pass through.
var (
	urlPattern   = regexp.MustCompile(`https?://[^\s]+`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// Eleven-digit runs match national ID numbers; checked before the
	// looser phone pattern so IDs are not mislabeled as phone numbers.
	nationalIDPattern = regexp.MustCompile(`\b\d{11}\b`)
	phonePattern      = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
)

// Redact replaces email addresses, URLs, phone-shaped digit runs and
// national ID-shaped digit runs with literal placeholder tokens.
func Redact(text string) string {
	text = urlPattern.ReplaceAllString(text, "[URL]")
	text = emailPattern.ReplaceAllString(text, "[EMAIL]")
	text = nationalIDPattern.ReplaceAllString(text, "[ID]")
	text = phonePattern.ReplaceAllString(text, "[PHONE]")
	return text
}
