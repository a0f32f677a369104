package router

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/cyclopsgroup/gitcon/pkg/github"
	"github.com/cyclopsgroup/gitcon/pkg/repository"
	"github.com/cyclopsgroup/gitcon/pkg/resource"
	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

func TestParse(t *testing.T) {
	tests := []struct {
		descriptor string
		check      func(t *testing.T, r repository.Repository)
	}{
		{
			descriptor: "file:/tmp",
			check: func(t *testing.T, r repository.Repository) {
				fs, ok := r.(*repository.FileSystem)
				if !ok {
					t.Fatalf("expected file system repository, got %T", r)
				}
				if fs.Dir() != "/tmp" {
					t.Fatalf("expected /tmp, got %s", fs.Dir())
				}
			},
		},
		{
			descriptor: "github.com:joe/johnson",
			check: func(t *testing.T, r repository.Repository) {
				checkGitHub(t, r, "joe", "johnson", "")
			},
		},
		{
			descriptor: "github.com:joe/johnson@abc123",
			check: func(t *testing.T, r repository.Repository) {
				checkGitHub(t, r, "joe", "johnson", "abc123")
			},
		},
		{
			descriptor: "github.com:cyclops-group/git_con@gs://tokens/github",
			check: func(t *testing.T, r repository.Repository) {
				checkGitHub(t, r, "cyclops-group", "git_con", "gs://tokens/github")
			},
		},
		{
			descriptor: "https://config.example.com/app",
			check: func(t *testing.T, r repository.Repository) {
				u, ok := r.(*repository.URLRepository)
				if !ok {
					t.Fatalf("expected url repository, got %T", r)
				}
				if exp, act := "https://config.example.com/app/", u.String(); exp != act {
					t.Fatalf("expected %s, got %s", exp, act)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.descriptor, func(t *testing.T) {
			r, err := Parse(tc.descriptor)
			if err != nil {
				t.Fatal(err)
			}
			tc.check(t, r)
		})
	}
}

func checkGitHub(t *testing.T, r repository.Repository, user, name, token string) {
	t.Helper()

	gh, ok := r.(*github.Repository)
	if !ok {
		t.Fatalf("expected github repository, got %T", r)
	}
	if gh.User() != user || gh.Name() != name || gh.Token() != token {
		t.Fatalf("expected %s/%s@%q, got %s/%s@%q", user, name, token, gh.User(), gh.Name(), gh.Token())
	}
}

func TestParseUnrecognized(t *testing.T) {
	for _, descriptor := range []string{"", "file:", "github.com:joe", "github.com:joe/jo hn", "svn://host/repo", "/etc/app"} {
		t.Run(descriptor, func(t *testing.T) {
			if _, err := Parse(descriptor); !errors.Is(err, pkgsync.ErrUnrecognizedDescriptor) {
				t.Fatalf("expected unrecognized descriptor, got %v", err)
			}
		})
	}
}

func TestParseGroupMismatch(t *testing.T) {
	bad := []route{{
		pattern: regexp.MustCompile(`^file:((.+))$`),
		groups:  1,
		build: func([]string, *options) (repository.Repository, error) {
			t.Fatal("expected build not to be called")
			return nil, nil
		},
	}}

	if _, err := match(bad, "file:/tmp", newOptions(nil)); !errors.Is(err, pkgsync.ErrInternalInconsistency) {
		t.Fatalf("expected internal inconsistency, got %v", err)
	}
}

func TestFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "johnson"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "johnson", "app.properties"), []byte("x=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GITCON_TYPE", "file")
	t.Setenv("GITCON_DIR", dir)

	r, err := FromEnv(context.Background(), "joe", "johnson")
	if err != nil {
		t.Fatal(err)
	}

	m, err := resource.Properties(context.Background(), r.Resource("app.properties"))
	if err != nil {
		t.Fatal(err)
	}
	if m["x"] != "1" {
		t.Fatalf("expected x=1, got %v", m)
	}
}

func TestFromEnvGitHub(t *testing.T) {
	t.Setenv("GITCON_TYPE", "GitHub")
	t.Setenv("GITCON_TOKEN", "abc123")

	r, err := FromEnv(context.Background(), "joe", "johnson")
	if err != nil {
		t.Fatal(err)
	}
	checkGitHub(t, r, "joe", "johnson", "abc123")

	t.Setenv("GITCON_TOKEN", "")
	if _, err := FromEnv(context.Background(), "joe", "johnson"); !errors.Is(err, pkgsync.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument without token, got %v", err)
	}
}
