package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"

	"github.com/cyclopsgroup/gitcon/internal/s3"
)

// TokenSource provides the access token sent with each GitHub request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFrom returns a LocationToken for s3://, gs://, azblob:// and file://
// locations and a StaticToken otherwise.
func TokenFrom(s string) TokenSource {
	if s3.IsLocation(s) {
		return NewLocationToken(s)
	}
	return StaticToken(s)
}

// StaticToken is a literal token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// LocationToken is a token stored in an object. The object is read on first
// use only; surrounding whitespace is trimmed.
type LocationToken struct {
	location string

	mu    sync.Mutex
	token string
}

func NewLocationToken(location string) *LocationToken {
	return &LocationToken{location: location}
}

func (t *LocationToken) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" {
		return t.token, nil
	}

	bs, err := s3.ReadLocation(ctx, t.location)
	if err != nil {
		return "", fmt.Errorf("failed to read token from %s: %w", t.location, err)
	}

	token := strings.TrimSpace(string(bs))
	if token == "" {
		return "", fmt.Errorf("token at %s is empty", t.location)
	}

	t.token = token
	return token, nil
}

// AppToken is a GitHub App installation token. Tokens are renewed before they
// expire.
type AppToken struct {
	IntegrationID  int64
	InstallationID int64
	PrivateKey     string // PEM, or a path to a PEM file
	BaseURL        string // GitHub API URL; https://api.github.com if empty

	mu sync.Mutex
	tr *ghinstallation.Transport
}

func (a *AppToken) Token(ctx context.Context) (string, error) {
	tr, err := a.transport()
	if err != nil {
		return "", err
	}

	return tr.Token(ctx)
}

func (a *AppToken) transport() (*ghinstallation.Transport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tr != nil {
		return a.tr, nil
	}

	if a.IntegrationID == 0 || a.InstallationID == 0 {
		return nil, errors.New("github app integration and installation IDs are required")
	}

	key, err := privateKey(a.PrivateKey)
	if err != nil {
		return nil, err
	}

	tr, err := ghinstallation.New(http.DefaultTransport, a.IntegrationID, a.InstallationID, key)
	if err != nil {
		return nil, err
	}

	if a.BaseURL != "" {
		tr.BaseURL = strings.TrimSuffix(a.BaseURL, "/")
	}

	a.tr = tr
	return tr, nil
}

func privateKey(s string) ([]byte, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "-----BEGIN") {
		return []byte(s), nil
	}

	key, err := os.ReadFile(s)
	if err != nil {
		return nil, fmt.Errorf("failed to read github app private key: %w", err)
	}
	return key, nil
}
