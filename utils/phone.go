package utils

import "strings"

// NormalizePhone returns the E.164 form of a phone-like string ("+" and 8 to
// 15 digits). Spaces, dashes, dots and parentheses are ignored; a leading "00"
// is treated as "+". ok is false when the input is not a phone number.
func NormalizePhone(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	var b strings.Builder
	b.WriteByte('+')
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", false
		}
	}
	out := b.String()
	if !strings.HasPrefix(s, "+") && strings.HasPrefix(out, "+00") {
		out = "+" + out[3:]
		digits -= 2
	}
	if digits < 8 || digits > 15 || out[1] == '0' {
		return "", false
	}
	return out, true
}

// LooksLikePhone is a cheap pre-check used to route free text to phone search.
func LooksLikePhone(s string) bool {
	_, ok := NormalizePhone(s)
	return ok
}
