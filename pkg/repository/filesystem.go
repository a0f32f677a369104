package repository

import (
	"github.com/cyclopsgroup/gitcon/pkg/resource"
)

// FileSystem serves an existing directory as is. It owns no state and is
// never refreshed.
type FileSystem struct {
	dir string
}

func NewFileSystem(dir string) *FileSystem {
	return &FileSystem{dir: dir}
}

func (f *FileSystem) Resource(path string) resource.Resource {
	return resource.FileIn(f.dir, path)
}

func (f *FileSystem) Dir() string {
	return f.dir
}
