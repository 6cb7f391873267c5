// SPDX-License-Identifier: MIT

// Package auth implements API token extraction and constant-time validation.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ExtractToken retrieves the API token from the request.
// 1. Authorization: Bearer <token>
// 2. Header: X-API-Token (legacy)
func ExtractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}

	if t := r.Header.Get("X-API-Token"); t != "" {
		return t
	}

	return ""
}

// AuthorizeToken returns true if got matches expected using constant-time
// comparison. An empty expected token never authorizes.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// AuthorizeRequest extracts a token from r and validates it against expected.
func AuthorizeRequest(r *http.Request, expected string) bool {
	if r == nil {
		return false
	}
	return AuthorizeToken(ExtractToken(r), expected)
}
