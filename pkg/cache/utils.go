package cache

import "strings"

// GenerateKey joins prefix and the id into one colon separated key.
func GenerateKey(prefix, id string) string {
	return prefix + ":" + id
}

// NormalizeKeyPart lowercases and trims a user-supplied key component such
// as an email address or username.
func NormalizeKeyPart(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
