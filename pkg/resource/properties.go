package resource

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/magiconair/properties"

	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

// IncludeKey is the reserved key listing the resources to merge in first.
const IncludeKey = "include"

// Properties reads r as a properties file and resolves its include
// directive. Included resources are merged in listed order and the keys of
// r itself override all of them.
func Properties(ctx context.Context, r Resource) (map[string]string, error) {
	res := resolver{inprogress: make(map[string]struct{})}
	return res.load(ctx, r, false)
}

type resolver struct {
	inprogress map[string]struct{}
}

func (res *resolver) load(ctx context.Context, r Resource, included bool) (map[string]string, error) {
	key := r.String()
	if _, ok := res.inprogress[key]; ok {
		return nil, fmt.Errorf("%w: include cycle found on %s", pkgsync.ErrInclusion, key)
	}
	res.inprogress[key] = struct{}{}
	defer delete(res.inprogress, key)

	own, err := parse(ctx, r)
	if err != nil {
		if included {
			return nil, fmt.Errorf("%w: %w", pkgsync.ErrInclusion, err)
		}
		return nil, err
	}

	result := make(map[string]string)
	if include, ok := own[IncludeKey]; ok {
		delete(own, IncludeKey)
		for _, rel := range strings.Split(include, ",") {
			if rel = strings.TrimSpace(rel); rel == "" {
				continue
			}

			m, err := res.load(ctx, r.Reference(rel), true)
			if err != nil {
				return nil, err
			}
			maps.Copy(result, m)
		}
	}

	maps.Copy(result, own)
	return result, nil
}

func parse(ctx context.Context, r Resource) (map[string]string, error) {
	bs, err := Bytes(ctx, r)
	if err != nil {
		return nil, err
	}

	// ${...} is left as written here; substitution is the job of Expand.
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadBytes(bs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r, err)
	}

	return p.Map(), nil
}

// Expand substitutes ${key} references in the values of m. Unknown keys
// fall back to environment variables. Circular references are an error.
func Expand(m map[string]string) (map[string]string, error) {
	raw := properties.NewProperties()
	raw.DisableExpansion = true
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if _, _, err := raw.Set(k, m[k]); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := raw.Write(&buf, properties.UTF8); err != nil {
		return nil, err
	}

	// Loading with expansion enabled rejects circular references.
	p, err := properties.Load(buf.Bytes(), properties.UTF8)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(m))
	for _, k := range p.Keys() {
		result[k], _ = p.Get(k)
	}
	return result, nil
}

// Subset returns the keys of m under prefix, with "prefix." stripped.
func Subset(m map[string]string, prefix string) map[string]string {
	prefix = strings.TrimSuffix(prefix, ".") + "."
	result := make(map[string]string)
	for k, v := range m {
		if rest, ok := strings.CutPrefix(k, prefix); ok && rest != "" {
			result[rest] = v
		}
	}
	return result
}
