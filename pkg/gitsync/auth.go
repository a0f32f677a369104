package gitsync

import (
	"context"
	"fmt"
	gohttp "net/http"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/cyclopsgroup/gitcon/internal/config"
	"github.com/cyclopsgroup/gitcon/pkg/credential"
	"github.com/cyclopsgroup/gitcon/pkg/github"
	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

// WithSecret configures authentication from a typed secret as returned by
// config.Secret.Typed.
func WithSecret(value any) Option {
	return func(s *Source) error {
		switch value := value.(type) {
		case nil:
			return nil

		case *config.SecretBasicAuth:
			s.auth = static(&basicAuth{
				Username: value.Username,
				Password: value.Password,
				Headers:  value.Headers,
			})

		case *config.SecretTokenAuth:
			s.auth = static(&tokenAuth{token: value.Token})

		case config.SecretGitHubApp:
			app := &github.AppToken{
				IntegrationID:  value.IntegrationID,
				InstallationID: value.InstallationID,
				PrivateKey:     value.PrivateKey,
			}
			s.auth = func(ctx context.Context) (transport.AuthMethod, error) {
				token, err := app.Token(ctx)
				if err != nil {
					return nil, err
				}
				return &http.BasicAuth{Username: "x-access-token", Password: token}, nil
			}

		case config.SecretSSHKey:
			return WithPrivateKey([]byte(value.Key), value.Passphrase, value.Fingerprints)(s)

		case config.SecretSSHKeyFile:
			s.identity = credential.KeyFile{
				Path:         value.Path,
				Passphrase:   value.Passphrase,
				Fingerprints: value.Fingerprints,
			}

		default:
			return fmt.Errorf("%w: unsupported git authentication type: %T", pkgsync.ErrInvalidArgument, value)
		}
		return nil
	}
}

func parseUserPassword(userPassword string) (transport.AuthMethod, error) {
	user, password, ok := strings.Cut(userPassword, ":")
	if !ok || user == "" {
		return nil, fmt.Errorf("%w: expected user:password", pkgsync.ErrInvalidArgument)
	}
	return &http.BasicAuth{Username: user, Password: password}, nil
}

// basicAuth provides HTTP basic authentication but in addition can set
// extra headers required for authentication.
type basicAuth struct {
	Username string
	Password string
	Headers  []string
}

func (a *basicAuth) String() string {
	masked := "*******"
	if a.Password == "" {
		masked = "<empty>"
	}
	return fmt.Sprintf("%s - %s:%s [%s]", a.Name(), a.Username, masked, strings.Join(a.Headers, ", "))
}

func (*basicAuth) Name() string {
	return "http-basic-auth-extra"
}

func (a *basicAuth) SetAuth(r *gohttp.Request) {
	r.SetBasicAuth(a.Username, a.Password)
	for _, header := range a.Headers {
		name, value, found := strings.Cut(header, ":")
		if found {
			r.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}
}

// tokenAuth provides HTTP bearer token authentication.
type tokenAuth struct {
	token string
}

func (*tokenAuth) String() string {
	return "http-bearer-token - *******"
}

func (*tokenAuth) Name() string {
	return "http-bearer-token"
}

func (a *tokenAuth) SetAuth(r *gohttp.Request) {
	r.Header.Set("Authorization", "Bearer "+a.token)
}
