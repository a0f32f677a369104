package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/cyclopsgroup/gitcon/internal/config"
)

// ObjectStorage is read access to the objects below a bucket prefix. Keys are
// slash separated and relative to the prefix.
type ObjectStorage interface {
	List(ctx context.Context) ([]string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

type AmazonS3 struct {
	client *s3.Client
	bucket string
	prefix string
}

type GCPCloudStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

type AzureBlobStorage struct {
	client    *azblob.Client
	container string
	prefix    string
}

type FileSystemStorage struct {
	path string
}

// New returns the object storage selected by cfg. Backends without explicit
// credentials use the default credential chain of their SDK: environment
// variables, shared configuration files and instance metadata.
func New(ctx context.Context, cfg config.ObjectStorage) (ObjectStorage, error) {
	switch {
	case cfg.AmazonS3 != nil:
		return newAmazonS3(ctx, cfg.AmazonS3)
	case cfg.GCPCloudStorage != nil:
		return newGCPCloudStorage(ctx, cfg.GCPCloudStorage)
	case cfg.AzureBlobStorage != nil:
		return newAzureBlobStorage(ctx, cfg.AzureBlobStorage)
	case cfg.FileSystemStorage != nil:
		return &FileSystemStorage{path: cfg.FileSystemStorage.Path}, nil
	}

	return nil, errors.New("no object storage configured")
}

func newAmazonS3(ctx context.Context, cfg *config.AmazonS3) (*AmazonS3, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.Credentials != nil {
		value, err := cfg.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		creds, ok := value.(config.SecretAWS)
		if !ok {
			return nil, fmt.Errorf("unsupported secret type %T for amazon s3", value)
		}

		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.URL != "" {
			o.BaseEndpoint = aws.String(cfg.URL)
			o.UsePathStyle = true
		}
	})

	return &AmazonS3{client: client, bucket: cfg.Bucket, prefix: normalizePrefix(cfg.Prefix)}, nil
}

func (s *AmazonS3) List(ctx context.Context) ([]string, error) {
	var keys []string

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}

		for _, obj := range page.Contents {
			keys = appendKey(keys, s.prefix, aws.ToString(obj.Key))
		}
	}

	return sorted(keys), nil
}

func (s *AmazonS3) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("s3://%s/%s%s: %w", s.bucket, s.prefix, key, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to download s3://%s/%s%s: %w", s.bucket, s.prefix, key, err)
	}

	return out.Body, nil
}

func newGCPCloudStorage(ctx context.Context, cfg *config.GCPCloudStorage) (*GCPCloudStorage, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadOnly)}

	if cfg.Credentials != nil {
		value, err := cfg.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		creds, ok := value.(config.SecretGCP)
		if !ok {
			return nil, fmt.Errorf("unsupported secret type %T for gcp cloud storage", value)
		}

		if creds.APIKey != "" {
			opts = append(opts, option.WithAPIKey(creds.APIKey))
		} else {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds.Credentials)))
		}
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	return &GCPCloudStorage{client: client, bucket: cfg.Bucket, prefix: normalizePrefix(cfg.Prefix)}, nil
}

func (s *GCPCloudStorage) List(ctx context.Context) ([]string, error) {
	var keys []string

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", s.bucket, s.prefix, err)
		}

		keys = appendKey(keys, s.prefix, attrs.Name)
	}

	return sorted(keys), nil
}

func (s *GCPCloudStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.prefix + key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s%s: %w", s.bucket, s.prefix, key, fs.ErrNotExist)
	} else if err != nil {
		return nil, fmt.Errorf("failed to download gs://%s/%s%s: %w", s.bucket, s.prefix, key, err)
	}

	return r, nil
}

func newAzureBlobStorage(ctx context.Context, cfg *config.AzureBlobStorage) (*AzureBlobStorage, error) {
	var client *azblob.Client

	if cfg.Credentials != nil {
		value, err := cfg.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		creds, ok := value.(config.SecretAzure)
		if !ok {
			return nil, fmt.Errorf("unsupported secret type %T for azure blob storage", value)
		}

		cred, err := azblob.NewSharedKeyCredential(creds.AccountName, creds.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("invalid azure shared key: %w", err)
		}

		client, err = azblob.NewClientWithSharedKeyCredential(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure blob client: %w", err)
		}
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain azure credentials: %w", err)
		}

		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure blob client: %w", err)
		}
	}

	return &AzureBlobStorage{client: client, container: cfg.Container, prefix: normalizePrefix(cfg.Prefix)}, nil
}

func (s *AzureBlobStorage) List(ctx context.Context) ([]string, error) {
	var keys []string

	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{Prefix: &s.prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list azure container %s: %w", s.container, err)
		}

		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = appendKey(keys, s.prefix, *item.Name)
			}
		}
	}

	return sorted(keys), nil
}

func (s *AzureBlobStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, s.prefix+key, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, fmt.Errorf("azure blob %s/%s%s: %w", s.container, s.prefix, key, fs.ErrNotExist)
	} else if err != nil {
		return nil, fmt.Errorf("failed to download azure blob %s/%s%s: %w", s.container, s.prefix, key, err)
	}

	return resp.Body, nil
}

func (s *FileSystemStorage) List(context.Context) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(s.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.path, p)
		if err != nil {
			return err
		}

		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.path, err)
	}

	return sorted(keys), nil
}

func (s *FileSystemStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	if !fs.ValidPath(key) {
		return nil, fmt.Errorf("invalid object key %q: %w", key, fs.ErrInvalid)
	}

	return os.Open(filepath.Join(s.path, filepath.FromSlash(key)))
}

// ParseLocation splits an object location into the storage holding it and the
// object key. Supported forms are s3://bucket/key, gs://bucket/key,
// azblob://account/container/key and file:///path/to/file.
func ParseLocation(location string) (config.ObjectStorage, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return config.ObjectStorage{}, "", fmt.Errorf("invalid location %q: %w", location, err)
	}

	key := strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "s3":
		return config.ObjectStorage{AmazonS3: &config.AmazonS3{Bucket: u.Host}}, key, validKey(location, key)
	case "gs":
		return config.ObjectStorage{GCPCloudStorage: &config.GCPCloudStorage{Bucket: u.Host}}, key, validKey(location, key)
	case "azblob":
		container, key, _ := strings.Cut(key, "/")
		if container == "" {
			return config.ObjectStorage{}, "", fmt.Errorf("invalid location %q: missing container", location)
		}
		return config.ObjectStorage{AzureBlobStorage: &config.AzureBlobStorage{
			AccountURL: "https://" + u.Host + ".blob.core.windows.net/",
			Container:  container,
		}}, key, validKey(location, key)
	case "file":
		return config.ObjectStorage{FileSystemStorage: &config.FileSystemStorage{Path: path.Dir(u.Path)}}, path.Base(u.Path), nil
	}

	return config.ObjectStorage{}, "", fmt.Errorf("unsupported location scheme %q", u.Scheme)
}

// IsLocation reports whether s names an object in a supported storage.
func IsLocation(s string) bool {
	for _, scheme := range []string{"s3://", "gs://", "azblob://", "file://"} {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}

// ReadLocation reads the whole object at location.
func ReadLocation(ctx context.Context, location string) ([]byte, error) {
	cfg, key, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}

	store, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	r, err := store.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

func validKey(location, key string) error {
	if key == "" {
		return fmt.Errorf("invalid location %q: missing object key", location)
	}
	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// appendKey skips directory placeholders some tools create as empty objects.
func appendKey(keys []string, prefix, name string) []string {
	key := strings.TrimPrefix(name, prefix)
	if key == "" || strings.HasSuffix(key, "/") {
		return keys
	}
	return append(keys, key)
}

func sorted(keys []string) []string {
	slices.Sort(keys)
	return keys
}
