package credential

import (
	"cmp"
	"fmt"
	"net"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"
)

// WellKnownFingerprints are the SSH host key fingerprints accepted when an
// identity does not list its own.
var WellKnownFingerprints = []string{
	"SHA256:uNiVztksCsDhcc0u9e8BujQXVUpKZIDTMczCvj3tD2s", // github.com https://docs.github.com/en/github/authenticating-to-github/githubs-ssh-key-fingerprints
	"SHA256:p2QAMXNIC1TJYWeIOttrVc98/R1BUFWu3/LiyKgUfQM", // github.com
	"SHA256:+DiY3wvvV6TuJJhbpZisF/zLDA0zPMSvHdkr4UvCOqU", // github.com
	"SHA256:zzXQOXSRBEiUtuE8AikJYKwbHaxvSc0ojez9YXaGp1A", // bitbucket.org https://support.atlassian.com/bitbucket-cloud/docs/configure-ssh-and-two-step-verification/
	"SHA256:ohD8VZEXGWo6Ez8GSEJQ9WpafgLFsOfLOtGGQCQo6Og", // dev.azure.com https://github.com/MicrosoftDocs/azure-devops-docs/issues/7726
}

// Identity is a transport-level identity that can be bound to a Session.
type Identity interface {
	// AuthMethod returns the go-git authentication for this identity. A nil
	// method selects the transport defaults (ssh agent, no auth for http).
	AuthMethod() (transport.AuthMethod, error)
	String() string
}

// System is the default identity of the process.
var System Identity = systemIdentity{}

type systemIdentity struct{}

func (systemIdentity) AuthMethod() (transport.AuthMethod, error) { return nil, nil }

func (systemIdentity) String() string { return "system" }

// KeyFile is an SSH private key stored on disk.
type KeyFile struct {
	Path         string
	Passphrase   string
	User         string   // defaults to "git"
	Fingerprints []string // defaults to WellKnownFingerprints
}

func (k KeyFile) String() string {
	return "key-file:" + k.Path
}

// Check verifies that the key material is readable.
func (k KeyFile) Check() error {
	f, err := os.Open(k.Path)
	if err != nil {
		return err
	}
	return f.Close()
}

func (k KeyFile) AuthMethod() (transport.AuthMethod, error) {
	key, err := os.ReadFile(k.Path)
	if err != nil {
		return nil, err
	}

	return NewSSHAuth(cmp.Or(k.User, "git"), key, k.Passphrase, k.Fingerprints)
}

// NewSSHAuth creates an SSH authentication method with fingerprint validation.
func NewSSHAuth(user string, key []byte, passphrase string, fingerprints []string) (*gitssh.PublicKeys, error) {
	var signer ssh.Signer
	var err error
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, err
	}

	if len(fingerprints) == 0 {
		fingerprints = WellKnownFingerprints
	}

	return &gitssh.PublicKeys{
		User:   user,
		Signer: signer,
		HostKeyCallbackHelper: gitssh.HostKeyCallbackHelper{
			HostKeyCallback: newCheckFingerprints(fingerprints),
		},
	}, nil
}

func newCheckFingerprints(fingerprints []string) ssh.HostKeyCallback {
	m := make(map[string]bool, len(fingerprints))
	for _, fp := range fingerprints {
		m[fp] = true
	}

	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		fingerprint := ssh.FingerprintSHA256(key)
		if _, ok := m[fingerprint]; !ok {
			return fmt.Errorf("ssh: unknown fingerprint (%s) for %s", fingerprint, hostname)
		}
		return nil
	}
}
