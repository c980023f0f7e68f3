package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder is the string used to replace sensitive data
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns match secrets that may appear inside otherwise harmless
// values, such as request headers or error strings.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(authorization\s*:\s*basic\s+\S+)`),        // HTTP Basic credentials
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`),           // Bearer tokens
	regexp.MustCompile(`(\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53})`),         // bcrypt hashes
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{4,})`),          // password= or password:
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),            // secret= or secret:
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),             // token= or token:
}

// sensitiveFieldNames are substrings of field names whose values are always
// redacted, whatever they contain.
var sensitiveFieldNames = []string{
	"PASSWORD",
	"PASSWD",
	"SECRET",
	"TOKEN",
	"AUTHORIZATION",
	"COOKIE",
	"HASH",
}

// RedactSensitiveData replaces every secret-looking substring of value with
// RedactedPlaceholder.
//
// Example:
//
//	RedactSensitiveData("Authorization: Basic YWRtaW46c2VjcmV0")
//	// "[REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// RedactField redacts fieldValue entirely when fieldName indicates a secret,
// otherwise it scans the value for secret patterns.
//
// Example:
//
//	RedactField("ADMIN_PASSWORD", "hunter2")  // "[REDACTED]"
//	RedactField("category", "kpi")            // "kpi"
func RedactField(fieldName, fieldValue string) string {
	if IsSensitiveFieldName(fieldName) {
		return RedactedPlaceholder
	}
	return RedactSensitiveData(fieldValue)
}

// IsSensitiveFieldName reports whether a field or variable name denotes a secret.
func IsSensitiveFieldName(name string) bool {
	upper := strings.ToUpper(name)
	for _, marker := range sensitiveFieldNames {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData returns true if value matches any secret pattern.
func ContainsSensitiveData(value string) bool {
	if value == "" {
		return false
	}
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
