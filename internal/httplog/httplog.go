// Package httplog dumps HTTP traffic to a logger at debug level.
package httplog

import (
	"net/http"
	"net/http/httputil"

	"github.com/cyclopsgroup/gitcon/internal/logging"
)

// LoggingTransport is an http.RoundTripper that logs requests and responses.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *logging.Logger
}

// NewLoggingTransport creates a new LoggingTransport. If transport is nil,
// http.DefaultTransport is used.
func NewLoggingTransport(transport http.RoundTripper, logger *logging.Logger) *LoggingTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &LoggingTransport{
		Transport: transport,
		Logger:    logging.Or(logger),
	}
}

// Wrap returns transport wrapped in a LoggingTransport when logger has debug
// logging enabled, and transport unchanged otherwise.
func Wrap(transport http.RoundTripper, logger *logging.Logger) http.RoundTripper {
	if logger == nil || !logger.DebugEnabled() {
		if transport == nil {
			return http.DefaultTransport
		}
		return transport
	}
	return NewLoggingTransport(transport, logger)
}

// RoundTrip executes a single HTTP transaction, logging the request and response.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Authorization headers are never dumped.
	dumped := req.Clone(req.Context())
	if dumped.Header.Get("Authorization") != "" {
		dumped.Header.Set("Authorization", "REDACTED")
	}

	reqDump, err := httputil.DumpRequestOut(dumped, false)
	if err != nil {
		t.Logger.Debugf("Error dumping request: %v", err)
	} else {
		t.Logger.Debugf("Request:\n%s", string(reqDump))
	}

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		t.Logger.Debugf("Error making request: %v", err)
		return resp, err // Return the response and error, even if the response is nil.
	}

	respDump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		t.Logger.Debugf("Error dumping response: %v", err)
	} else {
		t.Logger.Debugf("Response:\n%s", string(respDump))
	}

	return resp, nil
}
