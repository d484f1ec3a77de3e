package screening

import (
	"regexp"
	"sort"
	"strings"
)

// Questions about government contracting sometimes quote contractor data.
// Anything echoed into logs goes through RedactPII first.

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	// Separator-required phone formats. A bare digit run is never treated
	// as a phone number: FAR citations and contract numbers are digit-heavy.
	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{3}[-.]\d{3}[-.]\d{4}\b`),
		regexp.MustCompile(`\(\d{3}\)\s?\d{3}[-.]\d{4}\b`),
	}

	// Dashed form only, for the same reason
	ssnPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	cardPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b4[0-9]{12}(?:[0-9]{3})?\b`),       // Visa
		regexp.MustCompile(`\b5[1-5][0-9]{14}\b`),               // MasterCard
		regexp.MustCompile(`\b3[47][0-9]{13}\b`),                // American Express
		regexp.MustCompile(`\b6(?:011|5[0-9]{2})[0-9]{12}\b`),   // Discover
	}
)

type piiMatch struct {
	start int
	end   int
	label string
}

func findPII(text string) []piiMatch {
	var matches []piiMatch

	for _, m := range emailPattern.FindAllStringIndex(text, -1) {
		matches = append(matches, piiMatch{m[0], m[1], "[EMAIL_REDACTED]"})
	}
	for _, pattern := range phonePatterns {
		for _, m := range pattern.FindAllStringIndex(text, -1) {
			matches = append(matches, piiMatch{m[0], m[1], "[PHONE_REDACTED]"})
		}
	}
	for _, m := range ssnPattern.FindAllStringIndex(text, -1) {
		matches = append(matches, piiMatch{m[0], m[1], "[SSN_REDACTED]"})
	}
	for _, pattern := range cardPatterns {
		for _, m := range pattern.FindAllStringIndex(text, -1) {
			if luhnValid(text[m[0]:m[1]]) {
				matches = append(matches, piiMatch{m[0], m[1], "[CARD_REDACTED]"})
			}
		}
	}

	return matches
}

// ContainsPII reports whether the text matches any personal data pattern
func ContainsPII(text string) bool {
	return len(findPII(text)) > 0
}

// RedactPII replaces every personal data match with a typed placeholder
func RedactPII(text string) string {
	matches := findPII(text)
	if len(matches) == 0 {
		return text
	}

	// Replace back to front so earlier offsets stay valid
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].start > matches[j].start
	})

	result := text
	for _, m := range matches {
		result = result[:m.start] + m.label + result[m.end:]
	}
	return result
}

// luhnValid runs the Luhn checksum over a candidate card number
func luhnValid(cardNumber string) bool {
	cardNumber = strings.ReplaceAll(cardNumber, " ", "")
	cardNumber = strings.ReplaceAll(cardNumber, "-", "")

	if len(cardNumber) < 13 || len(cardNumber) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(cardNumber) - 1; i >= 0; i-- {
		digit := int(cardNumber[i] - '0')
		if digit < 0 || digit > 9 {
			return false
		}
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}
