package helpers

import "strings"

// NormalizeAddress lowercases and trims an email address. Address
// equality throughout the router is equality of normalized addresses;
// both the local part and the domain are folded, matching how group
// membership and directory lookups store addresses.
func NormalizeAddress(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SplitAddress splits a normalized address into local part and domain.
// The domain is empty when the address carries no "@".
func SplitAddress(email string) (string, string) {
	email = NormalizeAddress(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email, ""
	}
	return email[:at], email[at+1:]
}
