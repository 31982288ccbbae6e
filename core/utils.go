package core

import "strings"

// CleanString trims the leading and trailing whitespace of form input.
func CleanString(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeKey cleans s and lowers it. Emails, roles and extensions are compared in this form.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
