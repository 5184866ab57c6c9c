package guard

import "regexp"

// invalidSSNExact lists specific numbers known to be placeholders rather
// than real SSNs — the historical Woolworth's wallet-display number is the
// best known of these.
var invalidSSNExact = map[string]bool{
	"078-05-1120": true,
}

// ssnInvalidate rejects an SSN match that is almost certainly a false
// positive: all digits identical, an all-zero area number, an all-zero
// group number, an all-zero serial number, or the specific historical
// placeholder number.
func ssnInvalidate(matched string) bool {
	if invalidSSNExact[matched] {
		return true
	}
	digitsOnly := regexp.MustCompile(`\d`).FindAllString(matched, -1)
	if len(digitsOnly) == 9 {
		allSame := true
		for _, d := range digitsOnly[1:] {
			if d != digitsOnly[0] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	if regexp.MustCompile(`^000-\d{2}-\d{4}$`).MatchString(matched) {
		return true
	}
	if regexp.MustCompile(`^\d{3}-00-\d{4}$`).MatchString(matched) {
		return true
	}
	if regexp.MustCompile(`^\d{3}-\d{2}-0000$`).MatchString(matched) {
		return true
	}
	return false
}

// NewSSNRecognizer matches US Social Security Numbers, rejecting the
// well-known classes of false positive.
func NewSSNRecognizer() *Recognizer {
	return &Recognizer{
		entityType: "SSN",
		patterns: []pattern{
			{re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), score: 0.85},
		},
		invalidate: ssnInvalidate,
	}
}

// creditCardInvalidate rejects a matched digit sequence that fails the
// Luhn checksum — a cheap way to drop most non-card 16-digit numbers.
func creditCardInvalidate(matched string) bool {
	var digits []int
	for _, r := range matched {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 12 {
		return true
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 != 0
}

// NewCreditCardRecognizer matches common card-number groupings and rejects
// matches that fail the Luhn checksum.
func NewCreditCardRecognizer() *Recognizer {
	return &Recognizer{
		entityType: "CREDIT_CARD",
		patterns: []pattern{
			{re: regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`), score: 0.6},
		},
		invalidate: creditCardInvalidate,
	}
}

// NewPhoneNumberRecognizer matches North American phone number formats.
func NewPhoneNumberRecognizer() *Recognizer {
	return &Recognizer{
		entityType: "PHONE_NUMBER",
		patterns: []pattern{
			{re: regexp.MustCompile(`\b(?:\+?1[ -]?)?\(?\d{3}\)?[ -]?\d{3}[ -]?\d{4}\b`), score: 0.6},
		},
	}
}

// NewEmailRecognizer matches RFC-5322-adjacent email addresses (a
// pragmatic subset, not the full grammar).
func NewEmailRecognizer() *Recognizer {
	return &Recognizer{
		entityType: "EMAIL_ADDRESS",
		patterns: []pattern{
			{re: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), score: 0.85},
		},
	}
}

// BuiltinRecognizers returns the four built-in PII recognizers.
func BuiltinRecognizers() []*Recognizer {
	return []*Recognizer{
		NewSSNRecognizer(),
		NewCreditCardRecognizer(),
		NewPhoneNumberRecognizer(),
		NewEmailRecognizer(),
	}
}
