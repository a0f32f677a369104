// Package github serves files of a GitHub repository branch as resources,
// fetched on demand through the GitHub GraphQL API.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/shurcooL/githubv4"

	"github.com/cyclopsgroup/gitcon/internal/httplog"
	"github.com/cyclopsgroup/gitcon/internal/logging"
	"github.com/cyclopsgroup/gitcon/pkg/resource"
)

// DefaultBranch resolves to the default branch of the repository.
const DefaultBranch = "HEAD"

type Repository struct {
	user     string
	name     string
	token    string
	branch   string
	endpoint string
	tokens   TokenSource
	base     http.RoundTripper
	logger   *logging.Logger

	once   sync.Once
	client *githubv4.Client
}

type Option func(*Repository)

// WithBranch selects the branch, tag or commit files are read from.
func WithBranch(branch string) Option {
	return func(r *Repository) {
		r.branch = branch
	}
}

// WithEndpoint sets the GraphQL endpoint, e.g. for GitHub Enterprise Server.
func WithEndpoint(url string) Option {
	return func(r *Repository) {
		r.endpoint = url
	}
}

// WithTokenSource overrides the token source derived from the token string.
func WithTokenSource(tokens TokenSource) Option {
	return func(r *Repository) {
		r.tokens = tokens
	}
}

func WithTransport(tr http.RoundTripper) Option {
	return func(r *Repository) {
		r.base = tr
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// New returns the repository user/name. The token is either the token
// itself or the location of an object holding it, see TokenFrom. An empty
// token sends unauthenticated requests.
func New(user, name, token string, opts ...Option) *Repository {
	r := &Repository{
		user:   user,
		name:   name,
		token:  token,
		branch: DefaultBranch,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.tokens == nil && token != "" {
		r.tokens = TokenFrom(token)
	}
	r.logger = logging.Or(r.logger)

	return r
}

func (r *Repository) User() string {
	return r.user
}

func (r *Repository) Name() string {
	return r.name
}

// Token returns the token string the repository was created with.
func (r *Repository) Token() string {
	return r.token
}

func (r *Repository) Branch() string {
	return r.branch
}

// Resource returns the file at p, relative to the repository root.
func (r *Repository) Resource(p string) resource.Resource {
	return &blob{repo: r, path: clean(p)}
}

func (r *Repository) String() string {
	return fmt.Sprintf("github.com/%s/%s@%s", r.user, r.name, r.branch)
}

func (r *Repository) graphql() *githubv4.Client {
	r.once.Do(func() {
		client := &http.Client{Transport: &bearer{
			base:   httplog.Wrap(r.base, r.logger),
			tokens: r.tokens,
		}}

		if r.endpoint != "" {
			r.client = githubv4.NewEnterpriseClient(r.endpoint, client)
		} else {
			r.client = githubv4.NewClient(client)
		}
	})
	return r.client
}

// fetch returns the text of the blob at p.
func (r *Repository) fetch(ctx context.Context, p string) (string, error) {
	var query struct {
		Repository struct {
			Object *struct {
				Blob struct {
					Text     *string
					IsBinary bool
				} `graphql:"... on Blob"`
			} `graphql:"object(expression: $expression)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := map[string]any{
		"owner":      githubv4.String(r.user),
		"name":       githubv4.String(r.name),
		"expression": githubv4.String(r.branch + ":" + p),
	}

	if err := r.graphql().Query(ctx, &query, variables); err != nil {
		return "", fmt.Errorf("graphql query for %s:%s: %w", r, p, err)
	}

	object := query.Repository.Object
	switch {
	case object == nil:
		return "", fmt.Errorf("%s:%s: %w", r, p, fs.ErrNotExist)
	case object.Blob.IsBinary:
		return "", fmt.Errorf("%s:%s is a binary file", r, p)
	case object.Blob.Text == nil:
		return "", fmt.Errorf("%s:%s is not a file: %w", r, p, fs.ErrNotExist)
	}

	r.logger.Debugf("Fetched %s:%s", r, p)
	return *object.Blob.Text, nil
}

type blob struct {
	repo *Repository
	path string
}

func (b *blob) Read(ctx context.Context, consume func(io.Reader) error) error {
	text, err := b.repo.fetch(ctx, b.path)
	if err != nil {
		return err
	}
	return consume(strings.NewReader(text))
}

func (b *blob) Reference(rel string) resource.Resource {
	rel = strings.TrimSpace(rel)
	if strings.HasPrefix(rel, "/") {
		return &blob{repo: b.repo, path: clean(rel)}
	}
	return &blob{repo: b.repo, path: clean(path.Join(path.Dir(b.path), rel))}
}

func (b *blob) String() string {
	return b.repo.String() + ":" + b.path
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(p)), "/")
}

// bearer sets the Authorization header of every request.
type bearer struct {
	base   http.RoundTripper
	tokens TokenSource
}

func (t *bearer) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tokens == nil {
		return t.base.RoundTrip(req)
	}

	token, err := t.tokens.Token(req.Context())
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.New("empty github token")
	}

	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "bearer "+token)
	return t.base.RoundTrip(req)
}
