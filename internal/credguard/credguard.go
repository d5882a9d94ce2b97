// Package credguard implements the Credential Guard (C8): a single
// pure predicate applied to knowledge-store intake. Grounded on the
// secret-handling discipline in services/gateway/security/security.go
// (secrets are never logged in cleartext) — the pattern list itself is
// new, since the teacher never exposed a public classifier.
package credguard

import "regexp"

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{30,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`-----BEGIN[A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*["']?[A-Za-z0-9_\-]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-\.]{20,}`),
	regexp.MustCompile(`(?i)password\s*[:=]\s*["'][^"']{6,}["']`),
}

// ContainsCredentials reports whether text matches any known secret
// shape. It never logs or returns the matched substring.
func ContainsCredentials(text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
