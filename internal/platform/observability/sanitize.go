package observability

import (
	"strings"
	"unicode"
)

const defaultStringLimit = 256

// sanitizeString strips control characters and bounds the length so caller
// supplied values cannot inject structure into log lines.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}

	var cleaned strings.Builder
	cleaned.Grow(len(value))
	count := 0
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		if count == limit {
			break
		}
		cleaned.WriteRune(r)
		count++
	}
	return cleaned.String()
}

// SanitizeRoute bounds route patterns before they reach logs or spans.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod bounds HTTP method strings.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeOrgID bounds organisation identifiers before logging.
func SanitizeOrgID(orgID string) string {
	if orgID == "" {
		return ""
	}
	return sanitizeString(orgID, 64)
}
