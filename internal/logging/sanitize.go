package logging

import "strings"

// MaskEmail hides most of an address for logging: "ana@example.com"
// becomes "a*a@e*****e.c*m". Values without an @ are returned unchanged.
func MaskEmail(s string) string {
	s = strings.TrimSpace(s)
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return s
	}

	parts := strings.Split(s[at+1:], ".")
	for i, p := range parts {
		parts[i] = maskPart(p)
	}
	return maskPart(s[:at]) + "@" + strings.Join(parts, ".")
}

func maskPart(part string) string {
	if len(part) <= 1 {
		return "*"
	}
	return part[:1] + strings.Repeat("*", max(0, len(part)-2)) + part[len(part)-1:]
}
