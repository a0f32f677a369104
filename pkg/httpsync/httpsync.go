// Package httpsync provides a Source that downloads a fixed list of files
// relative to a base URL.
package httpsync

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyclopsgroup/gitcon/internal/config"
	"github.com/cyclopsgroup/gitcon/internal/httplog"
	"github.com/cyclopsgroup/gitcon/internal/logging"
	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

// HeaderSetter authenticates outgoing requests.
type HeaderSetter interface {
	SetHeader(*http.Request) error
}

// Source fetches files over HTTP into the working directory. Every fetch
// replaces the whole set of files or none of them.
type Source struct {
	base    *url.URL
	files   []string
	headers map[string]string
	auth    HeaderSetter
	client  *http.Client
	name    string
	logger  *logging.Logger
}

var _ pkgsync.Source = (*Source)(nil)

type Option func(*Source) error

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(s *Source) error {
		s.headers = headers
		return nil
	}
}

// WithSecret authenticates requests with a typed secret as returned by
// config.Secret.Typed.
func WithSecret(value any) Option {
	return func(s *Source) error {
		switch value := value.(type) {
		case nil:
			s.auth = nil
		case *config.SecretBasicAuth:
			s.auth = basicAuth{value}
		case *config.SecretTokenAuth:
			s.auth = tokenAuth{value}
		default:
			return fmt.Errorf("%w: unsupported secret type for http sync: %T", pkgsync.ErrInvalidArgument, value)
		}
		return nil
	}
}

func WithClient(client *http.Client) Option {
	return func(s *Source) error {
		s.client = client
		return nil
	}
}

func WithName(name string) Option {
	return func(s *Source) error {
		s.name = name
		return nil
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *Source) error {
		s.logger = logger
		return nil
	}
}

// New returns a Source fetching files, which are slash separated paths
// relative to base.
func New(base string, files []string, opts ...Option) (*Source, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgsync.ErrInvalidArgument, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported url scheme %q", pkgsync.ErrInvalidArgument, u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files to fetch from %s", pkgsync.ErrInvalidArgument, base)
	}
	for _, f := range files {
		if !fs.ValidPath(f) || f == "." {
			return nil, fmt.Errorf("%w: invalid file %q", pkgsync.ErrInvalidArgument, f)
		}
	}

	s := &Source{base: u, files: files}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.name = cmp.Or(s.name, u.String())
	s.logger = logging.Or(s.logger).With("source", s.name)
	if s.client == nil {
		s.client = &http.Client{Transport: httplog.Wrap(http.DefaultTransport, s.logger)}
	}

	return s, nil
}

func (s *Source) String() string {
	return s.base.String()
}

// Populate fetches all files into dir, which is the content root.
func (s *Source) Populate(ctx context.Context, dir string) (string, error) {
	return "", s.fetch(ctx, dir)
}

// Update fetches all files again. If any file fails, dir keeps the files of
// the previous fetch.
func (s *Source) Update(ctx context.Context, dir string) error {
	return s.fetch(ctx, dir)
}

func (s *Source) fetch(ctx context.Context, dir string) error {
	staged := make(map[string]string, len(s.files))
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}()

	for _, f := range s.files {
		target := filepath.Join(dir, filepath.FromSlash(f))
		tmp, err := s.download(ctx, f, filepath.Dir(target))
		if err != nil {
			return fmt.Errorf("fetch %s: %w", f, err)
		}
		staged[target] = tmp
	}

	for target, tmp := range staged {
		if err := os.Rename(tmp, target); err != nil {
			return err
		}
		delete(staged, target)
	}

	s.logger.Debugf("fetched %d files from %s", len(s.files), s.base)
	return nil
}

// download writes file into a temporary file in dir and returns its path.
func (s *Source) download(ctx context.Context, file, dir string) (string, error) {
	u := s.base.JoinPath(file)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	for name, value := range s.headers {
		if value != "" {
			req.Header.Set(name, value)
		}
	}
	if s.auth != nil {
		if err := s.auth.SetHeader(req); err != nil {
			return "", err
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("unsuccessful status code %d", resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(dir, ".gitcon-*")
	if err != nil {
		return "", err
	}

	_, err = io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", errors.Join(err, os.Remove(f.Name()))
	}

	return f.Name(), nil
}

type basicAuth struct {
	*config.SecretBasicAuth
}

func (a basicAuth) SetHeader(r *http.Request) error {
	r.SetBasicAuth(a.Username, a.Password)
	for _, header := range a.Headers {
		name, value, found := strings.Cut(header, ":")
		if found {
			r.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}
	return nil
}

type tokenAuth struct {
	*config.SecretTokenAuth
}

func (a tokenAuth) SetHeader(r *http.Request) error {
	r.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}
