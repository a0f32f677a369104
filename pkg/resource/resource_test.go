package resource

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFileReference(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a/b/c.txt":   "c",
		"a/b/d.txt":   "d",
		"a/e.txt":     "e",
		"top.txt":     "top",
		"a/b/x/y.txt": "y",
	})

	c := FileIn(root, "a/b/c.txt")

	tests := []struct {
		rel string
		exp string
	}{
		{"d.txt", "d"},
		{"../e.txt", "e"},
		{"/top.txt", "top"},
		{" x/y.txt ", "y"},
		{"/a/b/c.txt", "c"},
	}

	for _, tc := range tests {
		t.Run(tc.rel, func(t *testing.T) {
			bs, err := Bytes(context.Background(), c.Reference(tc.rel))
			if err != nil {
				t.Fatal(err)
			}
			if string(bs) != tc.exp {
				t.Fatalf("expected %q, got %q", tc.exp, bs)
			}
		})
	}
}

func TestFileMissingOnlyFailsOnRead(t *testing.T) {
	r := FileIn(t.TempDir(), "does/not/exist")

	err := r.Read(context.Background(), func(io.Reader) error { return nil })
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
}

func TestReadPropagatesConsumerError(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"f": "x"})

	failure := errors.New("sink failed")
	err := FileIn(root, "f").Read(context.Background(), func(io.Reader) error { return failure })
	if !errors.Is(err, failure) {
		t.Fatalf("expected %v, got %v", failure, err)
	}
}

func TestPropertiesIncludePrecedence(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"A.properties": "include=B.properties\nx=1\n",
		"B.properties": "x=2\ny=3\n",
	})

	m, err := Properties(context.Background(), FileIn(root, "A.properties"))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(map[string]string{"x": "1", "y": "3"}, m); diff != "" {
		t.Fatalf("unexpected properties (-want +got):\n%s", diff)
	}
}

func TestPropertiesIncludeOrder(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"conf/app.properties":          "include=base.properties, /shared/common.properties, nested/extra.properties\nname=app\n",
		"conf/base.properties":         "a=base\nb=base\nc=base\n",
		"shared/common.properties":     "b=common\nd=common\n",
		"conf/nested/extra.properties": "include=../../shared/common.properties\nc=extra\nd=extra\n",
	})

	m, err := Properties(context.Background(), FileIn(root, "conf/app.properties"))
	if err != nil {
		t.Fatal(err)
	}

	exp := map[string]string{
		"a":    "base",
		"b":    "common",
		"c":    "extra",
		"d":    "extra",
		"name": "app",
	}
	if diff := cmp.Diff(exp, m); diff != "" {
		t.Fatalf("unexpected properties (-want +got):\n%s", diff)
	}
}

func TestPropertiesIncludeCycle(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.properties":    "include=b.properties\n",
		"b.properties":    "include=a.properties\n",
		"self.properties": "include=self.properties\n",
	})

	for _, name := range []string{"a.properties", "self.properties"} {
		_, err := Properties(context.Background(), FileIn(root, name))
		if !errors.Is(err, pkgsync.ErrInclusion) {
			t.Fatalf("%s: expected inclusion error, got %v", name, err)
		}
	}
}

func TestPropertiesDiamondIsNotACycle(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"top.properties":   "include=left.properties,right.properties\n",
		"left.properties":  "include=base.properties\nl=1\n",
		"right.properties": "include=base.properties\nr=1\n",
		"base.properties":  "b=1\n",
	})

	m, err := Properties(context.Background(), FileIn(root, "top.properties"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]string{"b": "1", "l": "1", "r": "1"}, m); diff != "" {
		t.Fatalf("unexpected properties (-want +got):\n%s", diff)
	}
}

func TestPropertiesMissingInclude(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.properties": "include=missing.properties\n"})

	_, err := Properties(context.Background(), FileIn(root, "a.properties"))
	if !errors.Is(err, pkgsync.ErrInclusion) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected inclusion error wrapping not exist, got %v", err)
	}

	_, err = Properties(context.Background(), FileIn(root, "missing.properties"))
	if errors.Is(err, pkgsync.ErrInclusion) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected plain not exist for root resource, got %v", err)
	}
}

func TestPropertiesKeepsReferencesLiteral(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"self.properties":      "a=${a}\n",
		"malformed.properties": "cmd=echo ${HOME\n",
		"nested.properties":    "include=self.properties\nurl=https://${host}/api\n",
	})

	tests := []struct {
		file string
		exp  map[string]string
	}{
		{file: "self.properties", exp: map[string]string{"a": "${a}"}},
		{file: "malformed.properties", exp: map[string]string{"cmd": "echo ${HOME"}},
		{file: "nested.properties", exp: map[string]string{"a": "${a}", "url": "https://${host}/api"}},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			m, err := Properties(context.Background(), FileIn(root, tt.file))
			if err != nil {
				t.Fatalf("expected plain key/value parse, got %v", err)
			}
			if diff := cmp.Diff(tt.exp, m); diff != "" {
				t.Fatalf("unexpected properties (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	m, err := Expand(map[string]string{
		"host": "example.com",
		"url":  "https://${host}/api",
	})
	if err != nil {
		t.Fatal(err)
	}

	if exp, act := "https://example.com/api", m["url"]; exp != act {
		t.Fatalf("expected %q, got %q", exp, act)
	}
}

func TestSubset(t *testing.T) {
	m := Subset(map[string]string{
		"db.host": "localhost",
		"db.port": "5432",
		"dbx":     "no",
		"other":   "no",
	}, "db")

	if diff := cmp.Diff(map[string]string{"host": "localhost", "port": "5432"}, m); diff != "" {
		t.Fatalf("unexpected subset (-want +got):\n%s", diff)
	}
}

func TestDecode(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.yaml": "name: gitcon\nports: [1, 2]\n",
		"b.json": `{"name": "json", "ports": [3]}`,
	})

	type doc struct {
		Name  string `yaml:"name"`
		Ports []int  `yaml:"ports"`
	}

	var a, b doc
	if err := Decode(context.Background(), FileIn(root, "a.yaml"), &a); err != nil {
		t.Fatal(err)
	}
	if err := Decode(context.Background(), FileIn(root, "b.json"), &b); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(doc{Name: "gitcon", Ports: []int{1, 2}}, a); diff != "" {
		t.Fatalf("unexpected doc (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(doc{Name: "json", Ports: []int{3}}, b); diff != "" {
		t.Fatalf("unexpected doc (-want +got):\n%s", diff)
	}
}

func TestURLResource(t *testing.T) {
	files := map[string]string{
		"/config/app/app.properties":    "include=common.properties,/shared.properties\nx=1\n",
		"/config/app/common.properties": "x=2\ny=2\n",
		"/config/shared.properties":     "z=3\n",
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, content)
	}))
	defer srv.Close()

	root, err := url.Parse(srv.URL + "/config")
	if err != nil {
		t.Fatal(err)
	}
	app, err := url.Parse(srv.URL + "/config/app/app.properties")
	if err != nil {
		t.Fatal(err)
	}

	m, err := Properties(context.Background(), URL(srv.Client(), root, app))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(map[string]string{"x": "1", "y": "2", "z": "3"}, m); diff != "" {
		t.Fatalf("unexpected properties (-want +got):\n%s", diff)
	}

	err = URL(srv.Client(), root, app).Reference("missing").Read(context.Background(), func(io.Reader) error { return nil })
	if err == nil {
		t.Fatal("expected error for missing resource")
	}
}
