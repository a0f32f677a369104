package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"

	"github.com/cyclopsgroup/gitcon/internal/config"
	"github.com/cyclopsgroup/gitcon/pkg/credential"
)

func TestParseSecretResolve(t *testing.T) {

	result, err := config.Parse([]byte(`{
		repositories: {
			foo: {
				git: {
					repo: https://example.com/repo.git,
					credentials: secret1
				},
			}
		},
		secrets: {
			secret1: {
				type: basic_auth,
				username: bob,
				password: '${GITCON_PASSWORD}'
			}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("GITCON_PASSWORD", "passw0rd")

	value, err := result.Repositories["foo"].Git.Credentials.Resolve(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	exp := &config.SecretBasicAuth{
		Username: "bob",
		Password: "passw0rd",
	}

	if !reflect.DeepEqual(value, exp) {
		t.Fatalf("expected: %v\n\ngot: %v", exp, value)
	}
}

func TestParseRepositories(t *testing.T) {
	result, err := config.Parse([]byte(`
repositories:
  app:
    git:
      repo: git@github.com:example/app-config.git
      reference: main
      credentials: deploy-key
    update_interval: 2m
  docs:
    descriptor: github.com:example/docs@gs://tokens/docs
    static: true
  blobs:
    object_storage:
      aws:
        bucket: config
        prefix: prod/
        region: us-east-1
      included_files: ["*.properties"]
  remote:
    http:
      url: https://config.example.com/app
      files: [app.properties, common.properties]
      headers:
        X-Env: prod
  local:
    path: /etc/app
secrets:
  deploy-key:
    type: ssh_key_file
    path: /etc/gitcon/id_ed25519
`))
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, repo := range result.SortedRepositories() {
		names = append(names, repo.Name)
	}
	if diff := cmp.Diff([]string{"app", "blobs", "docs", "local", "remote"}, names); diff != "" {
		t.Fatalf("unexpected repositories (-want +got):\n%s", diff)
	}

	app := result.Repositories["app"]
	if exp, act := 2*time.Minute, time.Duration(app.UpdateInterval); exp != act {
		t.Fatalf("expected interval %v, got %v", exp, act)
	}
	if app.Git.Reference == nil || *app.Git.Reference != "main" {
		t.Fatalf("expected reference main, got %v", app.Git.Reference)
	}

	value, err := app.Git.Credentials.Resolve(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if exp := (config.SecretSSHKeyFile{Path: "/etc/gitcon/id_ed25519"}); !reflect.DeepEqual(value, exp) {
		t.Fatalf("expected %v, got %v", exp, value)
	}

	if !result.Repositories["docs"].Static {
		t.Fatal("expected docs to be static")
	}

	if diff := cmp.Diff(config.StringSet{"*.properties"}, result.Repositories["blobs"].ObjectStorage.IncludedFiles); diff != "" {
		t.Fatalf("unexpected included files (-want +got):\n%s", diff)
	}

	if exp, act := "prod", result.Repositories["remote"].HTTP.Headers["X-Env"]; exp != act {
		t.Fatalf("expected %v, got %v", exp, act)
	}
}

func TestParseInvalidRepositories(t *testing.T) {
	tests := []struct {
		note   string
		config string
		errMsg string
	}{
		{
			note:   "empty repository",
			config: `{repositories: {foo: }}`,
			errMsg: "one of git, http, object_storage, descriptor or path is required",
		},
		{
			note:   "two origins",
			config: `{repositories: {foo: {path: /tmp, descriptor: "file:/tmp"}}}`,
			errMsg: "only one of",
		},
		{
			note:   "reference and commit",
			config: `{repositories: {foo: {git: {repo: "https://example.com/r.git", reference: main, commit: abc}}}}`,
			errMsg: "only one of git reference or commit",
		},
		{
			note:   "object storage without backend",
			config: `{repositories: {foo: {object_storage: {}}}}`,
			errMsg: "exactly one of aws, gcp, azure or filesystem",
		},
		{
			note:   "unknown field",
			config: `{repositories: {foo: {path: /tmp, color: blue}}}`,
			errMsg: "additional properties",
		},
	}

	for _, tt := range tests {
		t.Run(tt.note, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.config))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Fatalf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestSecretTyped(t *testing.T) {
	tests := []struct {
		note  string
		value map[string]any
		exp   any
		err   bool
	}{
		{
			note:  "token",
			value: map[string]any{"type": "token_auth", "token": "abc"},
			exp:   &config.SecretTokenAuth{Token: "abc"},
		},
		{
			note:  "empty token",
			value: map[string]any{"type": "token_auth"},
			err:   true,
		},
		{
			note:  "ssh key defaults fingerprints",
			value: map[string]any{"type": "ssh_key", "key": "PEM"},
			exp:   config.SecretSSHKey{Key: "PEM", Fingerprints: credential.WellKnownFingerprints},
		},
		{
			note:  "github app",
			value: map[string]any{"type": "github_app_auth", "integration_id": 1, "installation_id": 2, "private_key": "PEM"},
			exp:   config.SecretGitHubApp{IntegrationID: 1, InstallationID: 2, PrivateKey: "PEM"},
		},
		{
			note:  "unknown",
			value: map[string]any{"type": "kerberos"},
			err:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.note, func(t *testing.T) {
			s := config.Secret{Name: tt.note, Value: tt.value}
			value, err := s.Typed(t.Context())
			if tt.err {
				if err == nil {
					t.Fatalf("expected error, got %v", value)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.exp, value); diff != "" {
				t.Fatalf("unexpected secret (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDurationRoundtrip(t *testing.T) {
	var v struct {
		Interval config.Duration `json:"interval"`
	}

	if err := yaml.Unmarshal([]byte("interval: 90s"), &v); err != nil {
		t.Fatal(err)
	}
	if exp, act := 90*time.Second, time.Duration(v.Interval); exp != act {
		t.Fatalf("expected %v, got %v", exp, act)
	}

	bs, err := v.Interval.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if exp, act := `"1m30s"`, string(bs); exp != act {
		t.Fatalf("expected %v, got %v", exp, act)
	}
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")

	if err := os.WriteFile(a, []byte("repositories:\n  app:\n    path: /etc/app\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("repositories:\n  docs:\n    descriptor: file:/srv/docs\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	bs, err := config.Merge([]string{a, b}, true)
	if err != nil {
		t.Fatal(err)
	}

	root, err := config.Parse(bs)
	if err != nil {
		t.Fatal(err)
	}

	if len(root.Repositories) != 2 {
		t.Fatalf("expected 2 repositories, got %d", len(root.Repositories))
	}

	if err := os.WriteFile(b, []byte("repositories:\n  app:\n    path: /etc/other\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Merge([]string{a, b}, true); err == nil {
		t.Fatal("expected conflict error")
	}
}
