package auth

import (
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeEmail trims and lowercases an address and converts an internationalized
// domain to its ASCII form so lookups by email compare like with like.
func NormalizeEmail(email string) string {
	e := strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(e, "@")
	if at <= 0 || at == len(e)-1 {
		return e
	}
	domain, err := idna.Lookup.ToASCII(e[at+1:])
	if err != nil {
		return e
	}
	return e[:at+1] + domain
}

// LocalPart returns the part of an address before the last "@".
func LocalPart(email string) string {
	e := strings.TrimSpace(email)
	if at := strings.LastIndex(e, "@"); at >= 0 {
		return e[:at]
	}
	return e
}
