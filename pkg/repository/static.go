package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopsgroup/gitcon/internal/fs"
	"github.com/cyclopsgroup/gitcon/internal/logging"
	"github.com/cyclopsgroup/gitcon/internal/metrics"
	"github.com/cyclopsgroup/gitcon/internal/util"
	"github.com/cyclopsgroup/gitcon/pkg/resource"
	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

// Static is a repository populated once from its source. Its working
// directory is wiped on Init and removed on Close.
type Static struct {
	name   string
	dir    string
	source pkgsync.Source
	logger *logging.Logger

	mu   sync.Mutex // serializes Init and Close
	root atomic.Pointer[string]
}

// TempDir returns a fresh working directory path below the system temporary
// directory. The directory itself is not created.
func TempDir() string {
	return filepath.Join(os.TempDir(), "gitcon-"+util.RandomLetters(8)+"-working-dir")
}

// NewStatic returns a repository populating dir from source. An empty dir
// selects a TempDir.
func NewStatic(dir string, source pkgsync.Source, opts ...Option) *Static {
	if dir == "" {
		dir = TempDir()
	}

	o := newOptions(opts)
	if o.name == "" {
		o.name = filepath.Base(dir)
	}

	return &Static{
		name:   o.name,
		dir:    dir,
		source: source,
		logger: o.logger.With("repository", o.name),
	}
}

// Init wipes the working directory and populates it again.
func (s *Static) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	root, err := s.populate(ctx)
	if err != nil {
		metrics.RepositoryInitFailed(s.name)
		return fmt.Errorf("%w: repository %s: %w", pkgsync.ErrInitialization, s.name, err)
	}

	s.root.Store(&root)
	metrics.RepositoryInitSucceeded(s.name, start)
	s.logger.Infof("Repository initialized in %s (root %s)", time.Since(start), root)

	s.inspect(root)
	return nil
}

func (s *Static) populate(ctx context.Context) (string, error) {
	if err := os.RemoveAll(s.dir); err != nil {
		return "", fmt.Errorf("failed to wipe %s: %w", s.dir, err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", s.dir, err)
	}

	root, err := s.source.Populate(ctx, s.dir)
	if err != nil {
		return "", err
	}

	if root == "" {
		root = s.dir
	}

	return root, nil
}

// inspect warns about content that is most likely a misconfiguration.
func (s *Static) inspect(root string) {
	fsys := os.DirFS(root)

	if ok, err := fs.FSContainsFiles(fsys); err != nil {
		s.logger.Warnf("Failed to inspect %s: %v", root, err)
		return
	} else if !ok {
		s.logger.Warnf("Repository content in %s is empty", root)
		return
	}

	if ok, err := fs.FSContainsDirectories(fsys); err == nil && !ok {
		s.logger.Warnf("Repository content in %s has no subdirectories", root)
	}
}

// Resource returns the resource at path below the content root.
func (s *Static) Resource(path string) resource.Resource {
	return resource.FileIn(s.Root(), path)
}

// Dir returns the working directory.
func (s *Static) Dir() string {
	return s.dir
}

// Root returns the content root, which is the working directory until Init
// records a different one.
func (s *Static) Root() string {
	if root := s.root.Load(); root != nil {
		return *root
	}
	return s.dir
}

func (s *Static) Name() string {
	return s.name
}

// Close removes the working directory. Calling it more than once, or before
// Init, is safe.
func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.dir, err)
	}

	s.root.Store(nil)
	return nil
}
