package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

//go:embed VERSION
var version string

// RequestIDHeader is set on every outbound request so a call can be matched
// against the API's own logs.
const RequestIDHeader = "X-Request-ID"

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

// RoundTrip implements the http.RoundTripper interface.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}
	return t.transport.RoundTrip(req)
}

// Version returns the embedded release version.
func Version() string {
	return strings.TrimSpace(version)
}

// UserAgent returns the User-Agent sent with every request.
func UserAgent() string {
	return "shouldiwash/" + Version()
}

// HTTPClient returns a default http client with a default user-agent set
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			transport: http.DefaultTransport,
			userAgent: UserAgent(),
		},
		Timeout: timeout,
	}
}
