// Package security provides identifier validation and audit logging for rackdb.
package security

import "regexp"

// identifierPattern accepts plain SQL identifiers and schema- or
// table-qualified names: letters, digits, underscore and dollar, with at
// most single dots between parts. Everything the builder injects into a
// statement outside the quoter must pass this.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)*$`)

// ValidIdentifier reports whether name is usable as a table or column name
// without quoting or escaping.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
