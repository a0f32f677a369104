package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/swaggest/jsonschema-go"

	"github.com/cyclopsgroup/gitcon/pkg/credential"
)

// Secret holds the credentials used to reach a repository source. Values
// are kept as a raw mapping with a "type" key selecting the credential kind:
//
//	deploy_key:
//	  type: ssh_key
//	  key: ${DEPLOY_KEY}
//
// String values are expanded against the environment when the secret is
// resolved. Recognized types are aws_auth, azure_auth, gcp_auth,
// github_app_auth, ssh_key, ssh_key_file, basic_auth and token_auth; see
// the Secret* types for the keys each one reads.
type Secret struct {
	Name  string         `json:"-"`
	Value map[string]any `json:"-"`
}

func (*Secret) PrepareJSONSchema(schema *jsonschema.Schema) error {
	schema.Type = nil
	schema.AddType(jsonschema.Object)
	return nil
}

func (s *Secret) MarshalYAML() (any, error) {
	if len(s.Value) == 0 {
		return map[string]any{}, nil
	}
	return s.Value, nil
}

func (s *Secret) MarshalJSON() ([]byte, error) {
	v, err := s.MarshalYAML()
	if err != nil {
		return nil, err
	}

	return json.Marshal(v)
}

func (s *Secret) UnmarshalYAML(bs []byte) error {
	if err := yaml.Unmarshal(bs, &s.Value); err != nil {
		return fmt.Errorf("expected mapping node: %w", err)
	}
	return nil
}

func (s *Secret) UnmarshalJSON(bs []byte) error {
	return json.Unmarshal(bs, &s.Value)
}

// expanded returns a copy of the raw value with environment references in
// string values substituted.
func (s *Secret) expanded() map[string]any {
	m := make(map[string]any, len(s.Value))
	for k, v := range s.Value {
		if str, ok := v.(string); ok {
			v = os.ExpandEnv(str)
		}
		m[k] = v
	}
	return m
}

// Typed decodes the secret into the Secret* type named by its "type" key.
// basic_auth and token_auth decode to pointers, the others to values.
func (s *Secret) Typed(context.Context) (any, error) {
	m := s.expanded()
	if len(m) == 0 {
		return nil, fmt.Errorf("secret %q is not configured", s.Name)
	}

	kind, _ := m["type"].(string)
	decode, ok := secretKinds[kind]
	if !ok {
		return nil, fmt.Errorf("secret %q: unknown secret type %q", s.Name, kind)
	}

	v, err := decode(m)
	if err != nil {
		return nil, fmt.Errorf("secret %q: %w", s.Name, err)
	}
	return v, nil
}

var secretKinds = map[string]func(map[string]any) (any, error){
	"aws_auth": byValue(func(v *SecretAWS) error {
		return require(v.AccessKeyID != "" && v.SecretAccessKey != "", "access_key_id and secret_access_key")
	}),
	"azure_auth": byValue(func(v *SecretAzure) error {
		return require(v.AccountName != "" && v.AccountKey != "", "account_name and account_key")
	}),
	"gcp_auth": byValue(func(v *SecretGCP) error {
		return require(v.APIKey != "" || v.Credentials != "", "api_key or credentials")
	}),
	"github_app_auth": byValue(func(v *SecretGitHubApp) error {
		return require(v.IntegrationID != 0 && v.InstallationID != 0 && v.PrivateKey != "", "integration_id, installation_id and private_key")
	}),
	"ssh_key": byValue(func(v *SecretSSHKey) error {
		if len(v.Fingerprints) == 0 {
			v.Fingerprints = credential.WellKnownFingerprints
		}
		return require(v.Key != "", "key")
	}),
	"ssh_key_file": byValue(func(v *SecretSSHKeyFile) error {
		return require(v.Path != "", "path")
	}),
	"basic_auth": byPointer(func(*SecretBasicAuth) error { return nil }),
	"token_auth": byPointer(func(v *SecretTokenAuth) error {
		return require(v.Token != "", "token")
	}),
}

func require(ok bool, fields string) error {
	if !ok {
		return fmt.Errorf("missing %s", fields)
	}
	return nil
}

func byValue[T any](check func(*T) error) func(map[string]any) (any, error) {
	return func(m map[string]any) (any, error) {
		v, err := decodeChecked(m, check)
		if err != nil {
			return nil, err
		}
		return *v, nil
	}
}

func byPointer[T any](check func(*T) error) func(map[string]any) (any, error) {
	return func(m map[string]any) (any, error) {
		v, err := decodeChecked(m, check)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func decodeChecked[T any](m map[string]any, check func(*T) error) (*T, error) {
	var v T
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &v})
	if err != nil {
		return nil, err
	}
	if err := d.Decode(m); err != nil {
		return nil, err
	}
	if err := check(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SecretAWS is read by object storage repositories on Amazon S3.
type SecretAWS struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
}

type SecretGCP struct {
	APIKey      string `json:"api_key"`
	Credentials string `json:"credentials"` // service account JSON
}

type SecretAzure struct {
	AccountName string `json:"account_name"`
	AccountKey  string `json:"account_key"`
}

// SecretGitHubApp authenticates git over HTTPS as a GitHub App installation.
// PrivateKey is either PEM text or a path to a PEM file.
type SecretGitHubApp struct {
	IntegrationID  int64  `json:"integration_id"`
	InstallationID int64  `json:"installation_id"`
	PrivateKey     string `json:"private_key"`
}

// SecretSSHKey carries an inline private key. It is written to the working
// directory and bound to the credential session for the duration of each
// git operation.
type SecretSSHKey struct {
	Key          string   `json:"key"`
	Passphrase   string   `json:"passphrase,omitempty"`
	Fingerprints []string `json:"fingerprints,omitempty"`
}

type SecretSSHKeyFile struct {
	Path         string   `json:"path"`
	Passphrase   string   `json:"passphrase,omitempty"`
	Fingerprints []string `json:"fingerprints,omitempty"`
}

// SecretBasicAuth applies to git and HTTP sources. Headers are extra
// "Name: value" lines sent with each request.
type SecretBasicAuth struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Headers  []string `json:"headers,omitempty"`
}

type SecretTokenAuth struct {
	Token string `json:"token"`
}
