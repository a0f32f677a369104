package config

import (
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Merge reads the configuration files at paths and deep merges their
// mappings into one YAML document. Directories contribute their .yaml, .yml
// and .json files in lexical order. Later files win on conflicting scalar
// values unless conflictError is set, in which case a conflict fails.
func Merge(paths []string, conflictError bool) ([]byte, error) {
	files, err := configFiles(paths)
	if err != nil {
		return nil, err
	}

	result := make(map[string]any)
	origins := make(map[string]string)

	for _, f := range files {
		bs, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %v: %w", f, err)
		}

		var doc map[string]any
		if err := yaml.Unmarshal(bs, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration file %v: %w", f, err)
		}

		if err := mergeInto(result, doc, "", f, origins, conflictError); err != nil {
			return nil, err
		}
	}

	bs, err := yaml.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged configuration: %w", err)
	}

	return bs, nil
}

func configFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			files = append(files, p)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".yaml", ".yml", ".json":
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// mergeInto merges doc into dst. origins records the file each scalar path
// was last set from.
func mergeInto(dst, doc map[string]any, path, file string, origins map[string]string, conflictError bool) error {
	for _, key := range slices.Sorted(maps.Keys(doc)) {
		keyPath := path + "/" + key
		value := doc[key]

		existing, ok := dst[key]
		if !ok {
			dst[key] = value
			origins[keyPath] = file
			continue
		}

		existingMap, ok1 := existing.(map[string]any)
		valueMap, ok2 := value.(map[string]any)
		if ok1 && ok2 {
			if err := mergeInto(existingMap, valueMap, keyPath, file, origins, conflictError); err != nil {
				return err
			}
			continue
		}

		if conflictError && !reflect.DeepEqual(existing, value) {
			return fmt.Errorf("conflict for config path %s between %s and %s", keyPath, originOf(origins, keyPath), file)
		}
		dst[key] = value
		origins[keyPath] = file
	}
	return nil
}

// originOf returns the file that set path or its closest ancestor.
func originOf(origins map[string]string, path string) string {
	for path != "" {
		if f, ok := origins[path]; ok {
			return f
		}
		path = path[:strings.LastIndex(path, "/")]
	}
	return ""
}
