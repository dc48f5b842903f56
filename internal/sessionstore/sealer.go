package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/zalando/go-keyring"

	"github.com/m3rciful/sshbot/internal/remote"
)

// ErrSealing is returned when a credential cannot be sealed or unsealed.
var ErrSealing = errors.New("credential sealing unavailable")

// Sealer encrypts credential material before it reaches a Store.
type Sealer interface {
	// Enabled reports whether Seal produces something worth persisting.
	Enabled() bool
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// NopSealer persists nothing: restored sessions have no credential.
type NopSealer struct{}

func (NopSealer) Enabled() bool { return false }

func (NopSealer) Seal([]byte) ([]byte, error) { return nil, nil }

func (NopSealer) Open([]byte) ([]byte, error) { return nil, ErrSealing }

// FernetSealer seals with the first key and opens with any of them, which
// allows key rotation by prepending a new key.
type FernetSealer struct {
	keys []*fernet.Key
}

// NewFernetSealer decodes base64 fernet keys.
func NewFernetSealer(encoded ...string) (*FernetSealer, error) {
	var keys []*fernet.Key
	for _, e := range encoded {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		k, err := fernet.DecodeKey(e)
		if err != nil {
			return nil, fmt.Errorf("decode fernet key: %w", err)
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, errors.New("no fernet key configured")
	}
	return &FernetSealer{keys: keys}, nil
}

func (s *FernetSealer) Enabled() bool { return true }

func (s *FernetSealer) Seal(plain []byte) ([]byte, error) {
	tok, err := fernet.EncryptAndSign(plain, s.keys[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealing, err)
	}
	return tok, nil
}

func (s *FernetSealer) Open(sealed []byte) ([]byte, error) {
	msg := fernet.VerifyAndDecrypt(sealed, 0*time.Second, s.keys)
	if msg == nil {
		return nil, fmt.Errorf("%w: invalid token", ErrSealing)
	}
	return msg, nil
}

// GenerateKey returns a fresh base64 fernet key.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", fmt.Errorf("generate fernet key: %w", err)
	}
	return k.Encode(), nil
}

const (
	keyringService = "sshbot"
	keyringUser    = "session-store-key"
)

// KeyFromKeyring reads the store key from the OS keyring, creating it on
// first use.
func KeyFromKeyring() (string, error) {
	key, err := keyring.Get(keyringService, keyringUser)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("keyring unavailable: %w", err)
	}
	key, err = GenerateKey()
	if err != nil {
		return "", err
	}
	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		return "", fmt.Errorf("keyring store: %w", err)
	}
	return key, nil
}

type sealedCredential struct {
	Method     remote.AuthMethod `json:"m"`
	Secret     []byte            `json:"s"`
	Passphrase []byte            `json:"p,omitempty"`
}

// SealCredential encodes and seals cred. It returns nil when s is disabled.
func SealCredential(s Sealer, cred remote.Credential) ([]byte, error) {
	if s == nil || !s.Enabled() || cred.Empty() {
		return nil, nil
	}
	plain, err := json.Marshal(sealedCredential{Method: cred.Method, Secret: cred.Secret, Passphrase: cred.Passphrase})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealing, err)
	}
	defer wipe(plain)
	return s.Seal(plain)
}

// OpenCredential reverses SealCredential. The caller owns and must wipe the result.
func OpenCredential(s Sealer, sealed []byte) (remote.Credential, error) {
	if s == nil || len(sealed) == 0 {
		return remote.Credential{}, ErrSealing
	}
	plain, err := s.Open(sealed)
	if err != nil {
		return remote.Credential{}, err
	}
	defer wipe(plain)
	var sc sealedCredential
	if err := json.Unmarshal(plain, &sc); err != nil {
		return remote.Credential{}, fmt.Errorf("%w: %v", ErrSealing, err)
	}
	if !sc.Method.Valid() || len(sc.Secret) == 0 {
		return remote.Credential{}, fmt.Errorf("%w: malformed credential", ErrSealing)
	}
	return remote.Credential{Method: sc.Method, Secret: sc.Secret, Passphrase: sc.Passphrase}, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
