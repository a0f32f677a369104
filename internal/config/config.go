package config

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"sort"
	"time"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"
)

// Internal configuration data structures for gitcon.

// Root is the top-level configuration structure used by gitcon.
type Root struct {
	Repositories map[string]*Repository `json:"repositories,omitempty"`
	Secrets      map[string]*Secret     `json:"secrets,omitempty"` // Schema validation overrides Secret to object type.
	Service      *Service               `json:"service,omitempty"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for the Root struct. This
// lets us define repositories in a user-friendly way with mappings where keys are
// the resource names. It is also used to inject the secret store into each secret
// reference so that internal callers can resolve secret values as needed.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw) // Assign the unmarshaled data back to the original struct
	return r.unmarshal(r)
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw) // Assign the unmarshaled data back to the original struct
	return r.unmarshal(r)
}

func (*Root) unmarshal(raw *Root) error {
	for name := range raw.Secrets {
		raw.Secrets[name] = cmp.Or(raw.Secrets[name], &Secret{})
		raw.Secrets[name].Name = name
	}

	bind := func(ref *SecretRef) {
		if ref != nil {
			ref.value = raw.Secrets[ref.Name]
		}
	}

	for name := range raw.Repositories {
		raw.Repositories[name] = cmp.Or(raw.Repositories[name], &Repository{})
		repo := raw.Repositories[name]
		repo.Name = name

		if repo.Git != nil {
			bind(repo.Git.Credentials)
		}
		if repo.HTTP != nil {
			bind(repo.HTTP.Credentials)
		}
		if o := repo.ObjectStorage; o != nil {
			if o.AmazonS3 != nil {
				bind(o.AmazonS3.Credentials)
			}
			if o.GCPCloudStorage != nil {
				bind(o.GCPCloudStorage.Credentials)
			}
			if o.AzureBlobStorage != nil {
				bind(o.AzureBlobStorage.Credentials)
			}
		}

		if err := repo.validate(); err != nil {
			return fmt.Errorf("repository %q: %w", name, err)
		}
	}

	return nil
}

func (r *Root) SortedRepositories() iter.Seq2[int, *Repository] {
	return iterator(r.Repositories, func(repo *Repository) string { return repo.Name })
}

func iterator[V any](m map[string]V, name func(V) string) func(func(int, V) bool) {
	names := make([]string, 0, len(m))
	for _, v := range m {
		names = append(names, name(v))
	}

	sort.Strings(names)

	return func(yield func(int, V) bool) {
		for i, name := range names {
			if !yield(i, m[name]) {
				return
			}
		}
	}
}

func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	return rootSchema.Validate(config)
}

// Repository defines one synchronized repository. Exactly one of Git, HTTP,
// ObjectStorage, Descriptor or Path selects its origin.
type Repository struct {
	Name           string         `json:"-"`
	Git            *Git           `json:"git,omitempty"`
	HTTP           *HTTP          `json:"http,omitempty"`
	ObjectStorage  *ObjectStorage `json:"object_storage,omitempty"`
	Descriptor     string         `json:"descriptor,omitempty"` // e.g. file:/etc/app or github.com:user/repo@token
	Path           string         `json:"path,omitempty"`       // plain local directory, served as is
	Directory      string         `json:"directory,omitempty"`  // working directory; a temporary one if empty
	Static         bool           `json:"static,omitempty"`     // populate once, never refresh
	UpdateInterval Duration       `json:"update_interval,omitzero"`

	_ struct{} `additionalProperties:"false"`
}

func (r *Repository) validate() error {
	var n int
	for _, set := range []bool{r.Git != nil, r.HTTP != nil, r.ObjectStorage != nil, r.Descriptor != "", r.Path != ""} {
		if set {
			n++
		}
	}
	switch {
	case n == 0:
		return errors.New("one of git, http, object_storage, descriptor or path is required")
	case n > 1:
		return errors.New("only one of git, http, object_storage, descriptor or path may be set")
	}

	if r.UpdateInterval < 0 {
		return errors.New("update_interval must be positive")
	}

	if r.Git != nil {
		if r.Git.Repo == "" {
			return errors.New("git repo is required")
		}
		if r.Git.Reference != nil && r.Git.Commit != nil {
			return errors.New("only one of git reference or commit may be set")
		}
	}

	if r.HTTP != nil && r.HTTP.URL == "" {
		return errors.New("http url is required")
	}

	if r.ObjectStorage != nil {
		return r.ObjectStorage.validate()
	}

	return nil
}

// Instead of marshaling and unmarshaling as int64 it uses strings, like "5m" or "0.5s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	val, err := time.ParseDuration(str)
	*d = Duration(val)
	return err
}

func (d *Duration) UnmarshalYAML(bs []byte) error {
	var s string
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return err
	}
	val, err := time.ParseDuration(s)
	*d = Duration(val)
	return err
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

type StringSet []string

// Git defines the git origin of a repository.
type Git struct {
	Repo        string     `json:"repo"`
	Reference   *string    `json:"reference,omitempty"` // branch name; the remote default branch if unset
	Commit      *string    `json:"commit,omitempty"`    // pinned commit, never updated
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use the default SSH authentication mechanisms available
	// or no authentication for public repos. Note, JSON schema validation overrides this to string type.

	_ struct{} `additionalProperties:"false"`
}

// HTTP defines an origin made of files fetched below a base URL.
type HTTP struct {
	URL         string            `json:"url"`
	Files       StringSet         `json:"files,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Credentials *SecretRef        `json:"credentials,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

type SecretRef struct {
	Name  string `json:"-"`
	value *Secret
}

// Resolve retrieves the secret value from the secret store. If the secret is not found, an error is returned.
// If the secret is found, it returns the value as an interface{} which can be further typed as needed.
func (s *SecretRef) Resolve(ctx context.Context) (any, error) {
	if s.value == nil {
		return nil, fmt.Errorf("secret %q not found", s.Name)
	}

	return s.value.Typed(ctx)
}

func (s *SecretRef) MarshalYAML() (any, error) {
	if s.Name == "" {
		return nil, nil
	}
	return s.Name, nil
}

func (s *SecretRef) MarshalJSON() ([]byte, error) {
	v, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}

	return json.Marshal(v)
}

func (s *SecretRef) UnmarshalYAML(bs []byte) error {
	if err := yaml.Unmarshal(bs, &s.Name); err != nil {
		return fmt.Errorf("expected scalar node: %w", err)
	}
	return nil
}

func (s *SecretRef) UnmarshalJSON(bs []byte) error {
	if err := json.Unmarshal(bs, &s.Name); err != nil {
		return fmt.Errorf("failed to unmarshal SecretRef: %w", err)
	}

	return nil
}

func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	return Parse(bs)
}

func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &root, nil
}

// ObjectStorage defines a bucket prefix mirrored into a repository.
type ObjectStorage struct {
	AmazonS3          *AmazonS3          `json:"aws,omitempty"`
	GCPCloudStorage   *GCPCloudStorage   `json:"gcp,omitempty"`
	AzureBlobStorage  *AzureBlobStorage  `json:"azure,omitempty"`
	FileSystemStorage *FileSystemStorage `json:"filesystem,omitempty"`
	IncludedFiles     StringSet          `json:"included_files,omitempty"` // glob patterns
	ExcludedFiles     StringSet          `json:"excluded_files,omitempty"` // glob patterns
}

func (o *ObjectStorage) validate() error {
	var n int
	for _, set := range []bool{o.AmazonS3 != nil, o.GCPCloudStorage != nil, o.AzureBlobStorage != nil, o.FileSystemStorage != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return errors.New("exactly one of aws, gcp, azure or filesystem object storage is required")
	}

	for _, patterns := range []StringSet{o.IncludedFiles, o.ExcludedFiles} {
		for _, pattern := range patterns {
			if _, err := glob.Compile(pattern); err != nil {
				return fmt.Errorf("failed to compile file pattern %q: %w", pattern, err)
			}
		}
	}

	if err := o.AmazonS3.validate(); err != nil {
		return err
	}
	if err := o.GCPCloudStorage.validate(); err != nil {
		return err
	}
	if err := o.AzureBlobStorage.validate(); err != nil {
		return err
	}
	return o.FileSystemStorage.validate()
}

// AmazonS3 defines the configuration for an Amazon S3-compatible object storage.
type AmazonS3 struct {
	Bucket      string     `json:"bucket"`
	Prefix      string     `json:"prefix,omitempty"`
	Region      string     `json:"region,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// shared credentials file, ECS or EC2 instance role. More details in s3.go.
	URL string `json:"url,omitempty"` // for test purposes
}

// GCPCloudStorage defines the configuration for a Google Cloud Storage bucket.
type GCPCloudStorage struct {
	Project     string     `json:"project,omitempty"`
	Bucket      string     `json:"bucket"`
	Prefix      string     `json:"prefix,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// file created by gcloud auth application-default login, GCE/GKE metadata server. More details in s3.go.
}

// AzureBlobStorage defines the configuration for an Azure Blob Storage container.
type AzureBlobStorage struct {
	AccountURL  string     `json:"account_url"`
	Container   string     `json:"container"`
	Prefix      string     `json:"prefix,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// managed identity, Azure CLI login. More details in s3.go.
}

// FileSystemStorage defines the configuration for a local filesystem storage.
type FileSystemStorage struct {
	Path string `json:"path"` // Directory holding the objects.
}

func (a *AmazonS3) validate() error {
	if a == nil {
		return nil
	}

	if a.Bucket == "" {
		return errors.New("amazon s3 bucket is required")
	}

	return nil
}

func (g *GCPCloudStorage) validate() error {
	if g == nil {
		return nil
	}

	if g.Bucket == "" {
		return errors.New("gcp cloud storage bucket is required")
	}

	return nil
}

func (a *AzureBlobStorage) validate() error {
	if a == nil {
		return nil
	}

	if a.AccountURL == "" {
		return errors.New("azure blob storage account URL is required")
	}

	if a.Container == "" {
		return errors.New("azure blob storage container is required")
	}

	return nil
}

func (f *FileSystemStorage) validate() error {
	if f == nil {
		return nil
	}

	if f.Path == "" {
		return errors.New("filesystem storage path is required")
	}

	return nil
}

// Service configures the long-running sync command.
type Service struct {
	MetricsAddr string   `json:"metrics_addr,omitempty"` // e.g. ":9100"; metrics are not served if empty
	_           struct{} `additionalProperties:"false"`
}
