// Package router selects a repository implementation from a descriptor
// string such as "file:/etc/app" or "github.com:acme/config@token".
package router

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sethvargo/go-envconfig"

	"github.com/cyclopsgroup/gitcon/internal/logging"
	"github.com/cyclopsgroup/gitcon/pkg/github"
	"github.com/cyclopsgroup/gitcon/pkg/repository"
	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

type options struct {
	logger         *logging.Logger
	client         *http.Client
	githubEndpoint string
}

type Option func(*options)

func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHTTPClient sets the client of URL repositories.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithGitHubEndpoint sets the GraphQL endpoint of GitHub repositories.
func WithGitHubEndpoint(url string) Option {
	return func(o *options) {
		o.githubEndpoint = url
	}
}

type route struct {
	pattern *regexp.Regexp
	groups  int
	build   func(m []string, o *options) (repository.Repository, error)
}

// Routes are tried in order; the first match wins.
var routes = []route{
	{
		pattern: regexp.MustCompile(`^file:(.+)$`),
		groups:  1,
		build: func(m []string, _ *options) (repository.Repository, error) {
			return repository.NewFileSystem(m[1]), nil
		},
	},
	{
		pattern: regexp.MustCompile(`^github\.com:([\w-]+)/([\w-]+)(@(.+))?$`),
		groups:  4,
		build: func(m []string, o *options) (repository.Repository, error) {
			return newGitHub(m[1], m[2], m[4], o), nil
		},
	},
	{
		pattern: regexp.MustCompile(`^(https?://.+)$`),
		groups:  1,
		build: func(m []string, o *options) (repository.Repository, error) {
			return repository.NewURL(m[1], o.client)
		},
	},
}

// Parse returns the repository described by descriptor:
//
//	file:<dir>                      a local directory
//	github.com:<user>/<repo>[@tok]  a GitHub repository, tok being a token or a token location
//	http(s)://<base>                files below an HTTP base URL
func Parse(descriptor string, opts ...Option) (repository.Repository, error) {
	return match(routes, strings.TrimSpace(descriptor), newOptions(opts))
}

func match(routes []route, descriptor string, o *options) (repository.Repository, error) {
	for _, r := range routes {
		m := r.pattern.FindStringSubmatch(descriptor)
		if m == nil {
			continue
		}

		if n := r.pattern.NumSubexp(); n != r.groups {
			return nil, fmt.Errorf("%w: pattern %s has %d groups, expected %d", pkgsync.ErrInternalInconsistency, r.pattern, n, r.groups)
		}

		return r.build(m, o)
	}

	return nil, fmt.Errorf("%w: %q", pkgsync.ErrUnrecognizedDescriptor, descriptor)
}

type env struct {
	Type  string `env:"GITCON_TYPE, default=file"`
	Dir   string `env:"GITCON_DIR, default=."`
	Token string `env:"GITCON_TOKEN"`
}

// FromEnv selects between a local checkout and the GitHub repository
// user/project. GITCON_TYPE=github selects GitHub and requires GITCON_TOKEN.
// Otherwise the repository is the directory <GITCON_DIR>/<project>.
func FromEnv(ctx context.Context, user, project string, opts ...Option) (repository.Repository, error) {
	var e env
	if err := envconfig.Process(ctx, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", pkgsync.ErrInvalidArgument, err)
	}

	o := newOptions(opts)

	if strings.EqualFold(e.Type, "github") {
		if e.Token == "" {
			return nil, fmt.Errorf("%w: GITCON_TOKEN is required for github repositories", pkgsync.ErrInvalidArgument)
		}
		return newGitHub(user, project, e.Token, o), nil
	}

	return repository.NewFileSystem(filepath.Join(e.Dir, project)), nil
}

func newGitHub(user, name, token string, o *options) *github.Repository {
	opts := []github.Option{github.WithLogger(o.logger)}
	if o.githubEndpoint != "" {
		opts = append(opts, github.WithEndpoint(o.githubEndpoint))
	}
	return github.New(user, name, token, opts...)
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.Or(o.logger)
	return o
}
