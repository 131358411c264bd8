package token

import (
	"errors"
	"strings"
)

// Classifier decides whether a join failure is credential related and worth
// one retry with a fresh token.
type Classifier func(err error) bool

// tokenErrorSignatures are provider error codes that indicate a missing,
// stale or rejected credential. Matched against message and code.
var tokenErrorSignatures = []string{
	"CAN_NOT_GET_GATEWAY_SERVER",
	"INVALID_VENDOR_KEY",
	"DYNAMIC_KEY_TIMEOUT",
	"TOKEN_EXPIRED",
}

type coder interface {
	ErrorCode() string
}

// IsTokenExpired is the default Classifier. It is a heuristic over a fixed
// provider vocabulary; a provider that renames its codes defeats it.
func IsTokenExpired(err error) bool {
	if err == nil {
		return false
	}
	var c coder
	if errors.As(err, &c) && matchesSignature(c.ErrorCode()) {
		return true
	}
	return matchesSignature(err.Error())
}

func matchesSignature(s string) bool {
	if s == "" {
		return false
	}
	for _, sig := range tokenErrorSignatures {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}
