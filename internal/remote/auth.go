package remote

import (
	"errors"
	"fmt"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// authMethods turns cred into ssh auth methods. The returned callbacks read
// cred's buffers lazily, so they must be used before cred is wiped.
func authMethods(cred Credential) ([]ssh.AuthMethod, error) {
	if cred.Empty() {
		return nil, errors.New("empty credential")
	}
	switch cred.Method {
	case AuthPassword:
		secret := cred.Secret
		return []ssh.AuthMethod{
			ssh.PasswordCallback(func() (string, error) {
				return string(secret), nil
			}),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = string(secret)
				}
				return answers, nil
			}),
		}, nil
	case AuthKey:
		signer, err := parseSigner(cred)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	default:
		return nil, fmt.Errorf("unsupported auth method %q", cred.Method)
	}
}

func parseSigner(cred Credential) (ssh.Signer, error) {
	var (
		signer ssh.Signer
		err    error
	)
	if len(cred.Passphrase) > 0 {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(cred.Secret, cred.Passphrase)
	} else {
		signer, err = ssh.ParsePrivateKey(cred.Secret)
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, errors.New("private key is encrypted; a passphrase is required")
		}
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return signer, nil
}

// ValidatePrivateKey checks that pem parses as a private key without keeping it.
func ValidatePrivateKey(pem []byte) error {
	_, err := parseSigner(Credential{Method: AuthKey, Secret: pem})
	return err
}

// HostKeyCallback verifies hosts against knownHostsFile. An empty path accepts
// any host key; insecure reports that case so callers can warn about it.
func HostKeyCallback(knownHostsFile string) (cb ssh.HostKeyCallback, insecure bool, err error) {
	if knownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), true, nil
	}
	path, err := homedir.Expand(knownHostsFile)
	if err != nil {
		return nil, false, fmt.Errorf("expand known_hosts path: %w", err)
	}
	cb, err = knownhosts.New(path)
	if err != nil {
		return nil, false, fmt.Errorf("parse known_hosts: %w", err)
	}
	return cb, false, nil
}
