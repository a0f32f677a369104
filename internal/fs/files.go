package fs

import (
	"errors"
	"io/fs"
	"os"
)

// FSContainsFiles returns true if the given fs.FS contains any files, and false otherwise.
func FSContainsFiles(fsys fs.FS) (bool, error) {
	return walkUntil(fsys, func(d fs.DirEntry) bool { return !d.IsDir() })
}

// FSContainsDirectories returns true if the root of fsys holds at least one
// directory. Hidden entries such as .git are ignored.
func FSContainsDirectories(fsys fs.FS) (bool, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	for _, e := range entries {
		if e.IsDir() && e.Name()[0] != '.' {
			return true, nil
		}
	}
	return false, nil
}

func walkUntil(fsys fs.FS, match func(fs.DirEntry) bool) (bool, error) {
	// errFound is a sentinel error used to stop the walk when an entry matches.
	errFound := os.ErrExist

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != "." && match(d) {
			return errFound
		}
		return nil
	})
	if err == errFound {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, err
}
