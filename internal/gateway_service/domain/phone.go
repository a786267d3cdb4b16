package domain

import "strings"

// NormalizePhone reduces any raw WhatsApp identifier to a canonical
// digits-only customer id. Handles domain suffixes ("5511...@s.whatsapp.net"),
// composite routing ids ("owner:5511...") and punctuation ("(55) 11 ...").
// Returns "" when no digits survive.
func NormalizePhone(raw string) string {
	if raw == "" {
		return ""
	}
	s := raw
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
