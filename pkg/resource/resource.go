// Package resource implements addressable, relatively-referenceable units of
// content and the property inclusion resolver built on top of them.
package resource

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Resource is a unit of content that can be read and can resolve paths
// relative to itself.
type Resource interface {
	// Read streams the content to consume. The underlying stream is closed
	// on every exit path, including when consume fails.
	Read(ctx context.Context, consume func(io.Reader) error) error

	// Reference returns the resource at rel, relative to this resource's
	// parent. A leading "/" makes rel relative to the root instead.
	Reference(rel string) Resource

	// String returns the canonical address of the resource.
	String() string
}

// File returns a resource for the file at path.
func File(path string) Resource {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return &file{root: filepath.VolumeName(abs) + string(filepath.Separator), path: abs}
}

// FileIn returns a resource for path inside root. Root-relative references
// made from it stay inside root.
func FileIn(root, path string) Resource {
	root = filepath.Clean(root)
	return &file{root: root, path: joinRooted(root, path)}
}

type file struct {
	root string
	path string
}

func (f *file) Read(_ context.Context, consume func(io.Reader) error) error {
	r, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer r.Close()

	return consume(r)
}

func (f *file) Reference(rel string) Resource {
	rel = strings.TrimSpace(rel)
	if strings.HasPrefix(rel, "/") {
		return &file{root: f.root, path: joinRooted(f.root, rel)}
	}
	return &file{root: f.root, path: filepath.Join(filepath.Dir(f.path), filepath.FromSlash(rel))}
}

func (f *file) String() string {
	return "file://" + filepath.ToSlash(f.path)
}

func joinRooted(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
}

// Bytes reads the whole content of r.
func Bytes(ctx context.Context, r Resource) ([]byte, error) {
	var bs []byte
	err := r.Read(ctx, func(rd io.Reader) error {
		var err error
		bs, err = io.ReadAll(rd)
		return err
	})
	return bs, err
}
