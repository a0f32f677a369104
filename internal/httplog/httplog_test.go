package httplog

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cyclopsgroup/gitcon/internal/logging"
)

func TestLoggingTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("expected authorization header to reach the server, got %q", r.Header.Get("Authorization"))
		}
		_, _ = io.WriteString(w, "pong")
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: logging.Debug, Format: logging.JSON, Output: &buf})

	client := &http.Client{Transport: Wrap(srv.Client().Transport, logger)}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(bs) != "pong" {
		t.Fatalf("expected body to be readable after dumping, got %q", bs)
	}

	out := buf.String()
	for _, exp := range []string{"GET /ping", "pong", "REDACTED"} {
		if !strings.Contains(out, exp) {
			t.Fatalf("expected log to contain %q, got %s", exp, out)
		}
	}
	if strings.Contains(out, "Bearer secret") {
		t.Fatalf("expected credentials to be redacted, got %s", out)
	}
}

func TestWrapWithoutDebug(t *testing.T) {
	logger := logging.NewLogger(logging.Config{Level: logging.Info, Output: io.Discard})

	if _, ok := Wrap(nil, logger).(*LoggingTransport); ok {
		t.Fatal("expected no logging transport at info level")
	}
	if Wrap(nil, nil) != http.DefaultTransport {
		t.Fatal("expected default transport")
	}
}
