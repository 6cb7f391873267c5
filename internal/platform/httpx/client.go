// Package httpx builds hardened HTTP clients for short-lived ops probes:
// startup reachability checks and the container healthcheck. Long-lived
// upstream traffic uses the emby client's own transport instead.
package httpx

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultClientTimeout         = 5 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultResponseHeaderTimeout = 3 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4
)

// NewClient returns a probe client with the given overall timeout. Dial and
// header timeouts are capped so a wedged endpoint fails fast instead of
// eating the whole budget.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	dialTimeout := timeout
	if dialTimeout > defaultDialTimeout {
		dialTimeout = defaultDialTimeout
	}

	responseHeaderTimeout := timeout
	if responseHeaderTimeout > defaultResponseHeaderTimeout {
		responseHeaderTimeout = defaultResponseHeaderTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          defaultMaxIdleConns,
			MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   dialTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			ExpectContinueTimeout: defaultExpectContinueTimeout,
		},
	}
}
