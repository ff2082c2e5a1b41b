package manifest

import "regexp"

// identifierPattern constrains names that end up as environment variable
// keys: product internal ids, price ids, portal env variable names and
// webhook secret env variable names.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]+$`)

// IsValidIdentifier reports whether s is usable as an environment key.
func IsValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
