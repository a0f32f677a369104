package gitsync

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp/capability"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/cyclopsgroup/gitcon/internal/logging"
	"github.com/cyclopsgroup/gitcon/internal/metrics"
	"github.com/cyclopsgroup/gitcon/pkg/credential"
	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

const (
	// RepoDir is the subdirectory of the working directory holding the clone.
	RepoDir = "gitrepo"

	// KeyFileName is the file the bundled private key is written to.
	KeyFileName = "gitcon-ssh.key"
)

func init() {
	// For Azure DevOps compatibility. More details: https://github.com/go-git/go-git/pull/613
	transport.UnsupportedCapabilities = []capability.Capability{
		capability.ThinPack,
	}
}

// Source keeps a clone of a remote git repository up to date.
type Source struct {
	url       string
	reference string
	commit    string
	name      string
	logger    *logging.Logger

	session  *credential.Session
	identity credential.Identity
	bundled  *bundledKey
	auth     func(context.Context) (transport.AuthMethod, error)

	branch string
}

var _ pkgsync.Source = (*Source)(nil)

type Option func(*Source) error

// WithReference selects the branch to track. The remote default branch is
// tracked otherwise.
func WithReference(branch string) Option {
	return func(s *Source) error {
		s.reference = branch
		return nil
	}
}

// WithCommit pins the clone to one commit. Pinned sources never update.
func WithCommit(commit string) Option {
	return func(s *Source) error {
		if !plumbing.IsHash(commit) {
			return fmt.Errorf("%w: %q is not a commit hash", pkgsync.ErrInvalidArgument, commit)
		}
		s.commit = commit
		return nil
	}
}

// WithSession sets the credential session used to run network calls.
func WithSession(session *credential.Session) Option {
	return func(s *Source) error {
		s.session = session
		return nil
	}
}

// WithPrivateKeyFile binds the SSH key at path to the session for every
// network call.
func WithPrivateKeyFile(path string) Option {
	return func(s *Source) error {
		s.identity = credential.KeyFile{Path: path}
		return nil
	}
}

// WithPrivateKey bundles key material with the source. It is written into the
// working directory on Populate and bound to the session like a key file.
func WithPrivateKey(key []byte, passphrase string, fingerprints []string) Option {
	return func(s *Source) error {
		if len(key) == 0 {
			return fmt.Errorf("%w: empty private key", pkgsync.ErrInvalidArgument)
		}
		s.bundled = &bundledKey{key: key, passphrase: passphrase, fingerprints: fingerprints}
		return nil
	}
}

// WithUserPassword authenticates over HTTP with a "user:password" pair.
func WithUserPassword(userPassword string) Option {
	return func(s *Source) error {
		auth, err := parseUserPassword(userPassword)
		if err != nil {
			return err
		}
		s.auth = static(auth)
		return nil
	}
}

// WithAuth sets an explicit go-git authentication method.
func WithAuth(auth transport.AuthMethod) Option {
	return func(s *Source) error {
		s.auth = static(auth)
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

// New returns a Source cloning url. Network calls are serialized through the
// default credential session unless a key binds them to an identity.
func New(url string, opts ...Option) (*Source, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: git repository url is required", pkgsync.ErrInvalidArgument)
	}

	s := &Source{url: url}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.reference != "" && s.commit != "" {
		return nil, fmt.Errorf("%w: only one of reference or commit can be set", pkgsync.ErrInvalidArgument)
	}

	s.name = cmp.Or(s.name, url)
	s.logger = logging.Or(s.logger).With("source", s.name)
	if s.session == nil {
		s.session = credential.Default()
	}

	return s, nil
}

// Branch returns the tracked branch. It is known after Populate when no
// reference was configured.
func (s *Source) Branch() string {
	return s.branch
}

func (s *Source) String() string {
	if s.commit != "" {
		return s.url + "@" + s.commit
	}
	return s.url + "@" + cmp.Or(s.branch, s.reference, "HEAD")
}

// Populate clones the repository into dir/gitrepo and checks out the
// configured reference or commit.
func (s *Source) Populate(ctx context.Context, dir string) (string, error) {
	if err := s.writeBundledKey(dir); err != nil {
		return "", err
	}

	path := filepath.Join(dir, RepoDir)
	startTime := time.Now()

	err := s.executor().Invoke(ctx, func(ctx context.Context) error {
		auth, err := s.authMethod(ctx)
		if err != nil {
			return err
		}

		opts := &git.CloneOptions{
			URL:  s.url,
			Auth: auth,
		}
		if s.reference != "" {
			opts.ReferenceName = plumbing.NewBranchReferenceName(s.reference)
		}

		s.logger.Debugf("cloning %s into %s", s.url, path)
		repo, err := git.PlainCloneContext(ctx, path, false, opts)
		if err != nil {
			return fmt.Errorf("clone %s: %w", s.url, err)
		}

		if s.commit != "" {
			return checkout(repo, plumbing.NewHash(s.commit))
		}

		head, err := repo.Head()
		if err != nil {
			return fmt.Errorf("resolve head: %w", err)
		}
		s.branch = cmp.Or(s.reference, head.Name().Short())
		return nil
	})
	if err != nil {
		metrics.GitSyncFailed(s.name, s.url)
		return "", err
	}

	metrics.GitSyncSucceeded(s.name, s.url, startTime)
	s.logger.Infof("cloned %s", s)
	return path, nil
}

// Update fetches the remote and force checks out the head of the tracked
// branch. Local modifications are discarded.
func (s *Source) Update(ctx context.Context, dir string) error {
	if s.commit != "" {
		s.logger.Debugf("%s is pinned, skipping update", s)
		return nil
	}

	repo, err := git.PlainOpen(filepath.Join(dir, RepoDir))
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	startTime := time.Now()

	err = s.executor().Invoke(ctx, func(ctx context.Context) error {
		auth, err := s.authMethod(ctx)
		if err != nil {
			return err
		}

		err = repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: git.DefaultRemoteName,
			RefSpecs:   []gitconfig.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
			Auth:       auth,
			Force:      true,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("fetch %s: %w", s.url, err)
		}
		return nil
	})
	if err != nil {
		metrics.GitSyncFailed(s.name, s.url)
		return err
	}

	ref, err := repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, s.branch), true)
	if err != nil {
		metrics.GitSyncFailed(s.name, s.url)
		return fmt.Errorf("resolve branch %q: %w", s.branch, err)
	}

	if err := checkout(repo, ref.Hash()); err != nil {
		metrics.GitSyncFailed(s.name, s.url)
		return err
	}

	metrics.GitSyncSucceeded(s.name, s.url, startTime)
	s.logger.Debugf("%s is at %s", s, ref.Hash())
	return nil
}

func checkout(repo *git.Repository, hash plumbing.Hash) error {
	w, err := repo.Worktree()
	if err != nil {
		return err
	}

	if err := w.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return fmt.Errorf("checkout %s: %w", hash, err)
	}
	return nil
}

// executor returns the policy network calls run under.
func (s *Source) executor() credential.Executor {
	if s.identity != nil {
		return credential.WithIdentity(s.session, s.identity)
	}
	return credential.Serialize(s.session, credential.Direct())
}

// authMethod resolves the explicit authentication, or the identity bound to
// the session when none was given.
func (s *Source) authMethod(ctx context.Context) (transport.AuthMethod, error) {
	if s.auth != nil {
		return s.auth(ctx)
	}
	return s.session.AuthMethod()
}

type bundledKey struct {
	key          []byte
	passphrase   string
	fingerprints []string
}

func (s *Source) writeBundledKey(dir string) error {
	if s.bundled == nil {
		return nil
	}

	path := filepath.Join(dir, KeyFileName)
	if err := os.WriteFile(path, s.bundled.key, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}

	s.identity = credential.KeyFile{
		Path:         path,
		Passphrase:   s.bundled.passphrase,
		Fingerprints: s.bundled.fingerprints,
	}
	return nil
}

func static(auth transport.AuthMethod) func(context.Context) (transport.AuthMethod, error) {
	return func(context.Context) (transport.AuthMethod, error) {
		return auth, nil
	}
}
