// SPDX-License-Identifier: MIT

package net

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeHost validates and normalizes a host for comparison.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.Contains(host, "://") {
		return "", fmt.Errorf("host must not include scheme: %s", raw)
	}
	if strings.Contains(host, "/") {
		return "", fmt.Errorf("host must not include path: %s", raw)
	}
	if strings.Contains(host, "@") {
		return "", fmt.Errorf("host must not include userinfo: %s", raw)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	if strings.Contains(host, "%") {
		return "", fmt.Errorf("host must not include zone: %s", raw)
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}
