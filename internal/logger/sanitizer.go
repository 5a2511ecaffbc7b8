package logger

import (
	"regexp"
)

// maskValue replaces sensitive literals in logged statements.
const maskValue = "'***REDACTED***'"

// Sanitizer masks sensitive values inside compiled statement text before it
// reaches a log sink. The execution layer inlines values as SQL literals,
// so masking works on the text itself: any quoted literal compared or
// assigned to a sensitive column is redacted.
type Sanitizer struct {
	patterns []*regexp.Regexp
}

// defaultSensitiveFields are column names whose literals are redacted when
// no explicit list is configured.
var defaultSensitiveFields = []string{
	"password", "passwd", "pwd",
	"token", "api_key", "apikey", "api_token",
	"secret", "auth", "authorization",
	"credit_card", "card_number", "cvv", "cvc",
	"ssn", "social_security",
	"private_key", "priv_key",
}

// NewSanitizer creates a sanitizer for the given sensitive column names,
// falling back to a default set of common ones when none are provided.
func NewSanitizer(sensitiveFields []string) *Sanitizer {
	if len(sensitiveFields) == 0 {
		sensitiveFields = defaultSensitiveFields
	}

	patterns := make([]*regexp.Regexp, 0, len(sensitiveFields))
	for _, field := range sensitiveFields {
		// Matches `field = '...'` and `field LIKE '...'` forms, including
		// literals with escaped quotes inside.
		pattern := regexp.MustCompile(
			`(?i)(\b` + regexp.QuoteMeta(field) + `\b\s*(?:=|!=|<>|LIKE)\s*)'(?:[^'\\]|\\.)*'`)
		patterns = append(patterns, pattern)
	}
	return &Sanitizer{patterns: patterns}
}

// MaskSQL returns the statement text with sensitive literals redacted.
// The original string is never modified; unmatched text passes through.
func (s *Sanitizer) MaskSQL(sql string) string {
	for _, pattern := range s.patterns {
		sql = pattern.ReplaceAllString(sql, "${1}"+maskValue)
	}
	return sql
}
