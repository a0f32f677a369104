// Package service hosts the repositories declared in a configuration file.
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyclopsgroup/gitcon/internal/config"
	"github.com/cyclopsgroup/gitcon/internal/logging"
	"github.com/cyclopsgroup/gitcon/pkg/credential"
	"github.com/cyclopsgroup/gitcon/pkg/gitsync"
	"github.com/cyclopsgroup/gitcon/pkg/httpsync"
	"github.com/cyclopsgroup/gitcon/pkg/objectsync"
	"github.com/cyclopsgroup/gitcon/pkg/repository"
	"github.com/cyclopsgroup/gitcon/pkg/router"
	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

const defaultParallelism = 4

// ProgressFunc is called once per repository when its initialization ends.
type ProgressFunc func(name string, err error)

type Service struct {
	workers     map[string]*worker
	logger      *logging.Logger
	session     *credential.Session
	provider    pkgsync.SecretProvider
	progress    ProgressFunc
	parallelism int
	routerOpts  []router.Option
}

type Option func(*Service)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSession sets the credential session of git repositories.
func WithSession(session *credential.Session) Option {
	return func(s *Service) {
		s.session = session
	}
}

// WithSecretProvider resolves git and HTTP credentials through provider
// instead of the secrets of the configuration.
func WithSecretProvider(provider pkgsync.SecretProvider) Option {
	return func(s *Service) {
		s.provider = provider
	}
}

func WithProgress(progress ProgressFunc) Option {
	return func(s *Service) {
		s.progress = progress
	}
}

// WithParallelism bounds the number of repositories initialized concurrently.
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithRouterOptions sets the options of repositories declared by descriptor.
func WithRouterOptions(opts ...router.Option) Option {
	return func(s *Service) {
		s.routerOpts = opts
	}
}

// New builds the repositories of root. Nothing is fetched until Init.
func New(ctx context.Context, root *config.Root, opts ...Option) (*Service, error) {
	s := &Service{
		workers:     make(map[string]*worker, len(root.Repositories)),
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = logging.Or(s.logger)
	if s.session == nil {
		s.session = credential.Default()
	}
	if s.progress == nil {
		s.progress = func(string, error) {}
	}

	for _, r := range root.SortedRepositories() {
		repo, err := s.build(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("repository %q: %w", r.Name, err)
		}
		s.workers[r.Name] = newWorker(r.Name, repo, s.logger.With("repository", r.Name))
	}

	return s, nil
}

// Names returns the sorted names of the hosted repositories.
func (s *Service) Names() []string {
	return slices.Sorted(maps.Keys(s.workers))
}

// Repository returns the repository called name.
func (s *Service) Repository(name string) (repository.Repository, bool) {
	w, ok := s.workers[name]
	if !ok {
		return nil, false
	}
	return w.repo, true
}

// Status returns the status of the repository called name.
func (s *Service) Status(name string) (Status, bool) {
	w, ok := s.workers[name]
	if !ok {
		return Status{}, false
	}
	return w.Status(), true
}

// Init initializes every repository. It stops at the first failure.
func (s *Service) Init(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for _, name := range s.Names() {
		w := s.workers[name]
		g.Go(func() error {
			err := w.Init(ctx)
			s.progress(name, err)
			if err != nil {
				return fmt.Errorf("repository %q: %w", name, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// Close closes every repository and returns the joined errors.
func (s *Service) Close() error {
	var errs []error
	for _, name := range s.Names() {
		if err := s.workers[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("repository %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) build(ctx context.Context, r *config.Repository) (repository.Repository, error) {
	logger := s.logger.With("repository", r.Name)

	var src pkgsync.Source
	var err error

	switch {
	case r.Path != "":
		return repository.NewFileSystem(r.Path), nil

	case r.Descriptor != "":
		return router.Parse(r.Descriptor, append([]router.Option{router.WithLogger(logger)}, s.routerOpts...)...)

	case r.Git != nil:
		src, err = s.gitSource(ctx, r.Name, r.Git, logger)

	case r.HTTP != nil:
		if len(r.HTTP.Files) == 0 {
			if r.HTTP.Credentials != nil || len(r.HTTP.Headers) > 0 {
				return nil, fmt.Errorf("%w: http files are required with headers or credentials", pkgsync.ErrInvalidArgument)
			}
			return repository.NewURL(r.HTTP.URL, nil)
		}
		src, err = s.httpSource(ctx, r.Name, r.HTTP, logger)

	case r.ObjectStorage != nil:
		src, err = objectsync.New(ctx, *r.ObjectStorage, objectsync.WithName(r.Name), objectsync.WithLogger(logger))

	default:
		return nil, fmt.Errorf("%w: no origin configured", pkgsync.ErrInvalidArgument)
	}
	if err != nil {
		return nil, err
	}

	dir := cmp.Or(r.Directory, repository.TempDir())
	opts := []repository.Option{repository.WithName(r.Name), repository.WithLogger(logger)}

	if r.Static {
		return repository.NewStatic(dir, src, opts...), nil
	}

	opts = append(opts, repository.WithUpdateInterval(time.Duration(r.UpdateInterval)))
	return repository.NewDynamic(dir, src, opts...), nil
}

func (s *Service) gitSource(ctx context.Context, name string, g *config.Git, logger *logging.Logger) (*gitsync.Source, error) {
	secret, err := s.secret(ctx, g.Credentials)
	if err != nil {
		return nil, err
	}

	opts := []gitsync.Option{
		gitsync.WithName(name),
		gitsync.WithLogger(logger),
		gitsync.WithSession(s.session),
		gitsync.WithSecret(secret),
	}
	if g.Reference != nil {
		opts = append(opts, gitsync.WithReference(*g.Reference))
	}
	if g.Commit != nil {
		opts = append(opts, gitsync.WithCommit(*g.Commit))
	}

	return gitsync.New(g.Repo, opts...)
}

func (s *Service) httpSource(ctx context.Context, name string, h *config.HTTP, logger *logging.Logger) (*httpsync.Source, error) {
	secret, err := s.secret(ctx, h.Credentials)
	if err != nil {
		return nil, err
	}

	return httpsync.New(h.URL, h.Files,
		httpsync.WithName(name),
		httpsync.WithLogger(logger),
		httpsync.WithHeaders(h.Headers),
		httpsync.WithSecret(secret),
	)
}

// secret resolves ref to a typed secret, through the secret provider when
// one is configured.
func (s *Service) secret(ctx context.Context, ref *config.SecretRef) (any, error) {
	if ref == nil {
		return nil, nil
	}

	if s.provider == nil {
		return ref.Resolve(ctx)
	}

	value, err := s.provider.GetSecret(ctx, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("secret %q: %w", ref.Name, err)
	}

	secret := config.Secret{Name: ref.Name, Value: value}
	return secret.Typed(ctx)
}
