// Package objectsync provides a Source mirroring an object storage prefix
// into the working directory.
package objectsync

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"

	"github.com/cyclopsgroup/gitcon/internal/config"
	"github.com/cyclopsgroup/gitcon/internal/logging"
	"github.com/cyclopsgroup/gitcon/internal/s3"
	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

const defaultParallelism = 8

// Source mirrors the objects of a storage into a directory.
type Source struct {
	storage     s3.ObjectStorage
	included    []glob.Glob
	excluded    []glob.Glob
	parallelism int
	name        string
	logger      *logging.Logger
}

var _ pkgsync.Source = (*Source)(nil)

type Option func(*Source) error

// WithIncludedFiles restricts the mirror to keys matching one of patterns.
func WithIncludedFiles(patterns ...string) Option {
	return func(s *Source) (err error) {
		s.included, err = compile(patterns)
		return err
	}
}

// WithExcludedFiles drops keys matching one of patterns.
func WithExcludedFiles(patterns ...string) Option {
	return func(s *Source) (err error) {
		s.excluded, err = compile(patterns)
		return err
	}
}

// WithParallelism bounds the number of concurrent downloads.
func WithParallelism(n int) Option {
	return func(s *Source) error {
		if n < 1 {
			return fmt.Errorf("%w: parallelism must be positive, got %d", pkgsync.ErrInvalidArgument, n)
		}
		s.parallelism = n
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

// New returns a Source for the configured storage. The included and excluded
// patterns of cfg apply before opts.
func New(ctx context.Context, cfg config.ObjectStorage, opts ...Option) (*Source, error) {
	storage, err := s3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts = append([]Option{
		WithIncludedFiles(cfg.IncludedFiles...),
		WithExcludedFiles(cfg.ExcludedFiles...),
	}, opts...)

	return NewFromStorage(storage, opts...)
}

func NewFromStorage(storage s3.ObjectStorage, opts ...Option) (*Source, error) {
	s := &Source{storage: storage, parallelism: defaultParallelism}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.name = cmp.Or(s.name, "object-storage")
	s.logger = logging.Or(s.logger).With("source", s.name)
	return s, nil
}

// Populate mirrors the storage into dir, which is the content root.
func (s *Source) Populate(ctx context.Context, dir string) (string, error) {
	return "", s.mirror(ctx, dir)
}

// Update mirrors the storage into dir again and removes files whose objects
// no longer exist.
func (s *Source) Update(ctx context.Context, dir string) error {
	return s.mirror(ctx, dir)
}

func (s *Source) mirror(ctx context.Context, dir string) error {
	all, err := s.storage.List(ctx)
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}

	keys := make(map[string]struct{}, len(all))
	for _, key := range all {
		if !fs.ValidPath(key) {
			s.logger.Warnf("skipping object %q outside of the working directory", key)
			continue
		}
		if s.selected(key) {
			keys[key] = struct{}{}
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for key := range keys {
		g.Go(func() error {
			return s.download(ctx, key, filepath.Join(dir, filepath.FromSlash(key)))
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	removed, err := prune(dir, keys)
	if err != nil {
		return fmt.Errorf("remove stale files: %w", err)
	}

	s.logger.Debugf("mirrored %d objects, removed %d stale files", len(keys), removed)
	return nil
}

func (s *Source) selected(key string) bool {
	if len(s.included) > 0 && !matchAny(s.included, key) {
		return false
	}
	return !matchAny(s.excluded, key)
}

func (s *Source) download(ctx context.Context, key, target string) error {
	r, err := s.storage.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(target), ".gitcon-*")
	if err != nil {
		return err
	}

	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(f.Name(), target)
	}
	if err != nil {
		return errors.Join(fmt.Errorf("download %s: %w", key, err), os.Remove(f.Name()))
	}
	return nil
}

// prune removes the regular files under dir that are not in keys.
func prune(dir string, keys map[string]struct{}) (int, error) {
	var removed int
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if _, ok := keys[filepath.ToSlash(rel)]; ok {
			return nil
		}

		removed++
		return os.Remove(path)
	})
	return removed, err
}

func compile(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to compile file pattern %q: %w", pkgsync.ErrInvalidArgument, pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchAny(globs []glob.Glob, key string) bool {
	for _, g := range globs {
		if g.Match(key) {
			return true
		}
	}
	return false
}
