package remote

import (
	"log/slog"
	"runtime"
)

// AuthMethod selects how a Credential authenticates.
type AuthMethod string

const (
	AuthPassword AuthMethod = "password"
	AuthKey      AuthMethod = "key"
)

// Valid reports whether m is a known method.
func (m AuthMethod) Valid() bool {
	return m == AuthPassword || m == AuthKey
}

// Credential holds secret material. It never formats or logs its bytes;
// call Wipe once the session handle exists.
type Credential struct {
	Method AuthMethod
	// Secret is the password or the PEM encoded private key.
	Secret []byte
	// Passphrase unlocks an encrypted private key.
	Passphrase []byte
}

// Wipe zeroes the secret buffers in place and drops them.
func (c *Credential) Wipe() {
	if c == nil {
		return
	}
	wipeBytes(c.Secret)
	wipeBytes(c.Passphrase)
	c.Secret = nil
	c.Passphrase = nil
}

// Empty reports whether there is no secret to authenticate with.
func (c Credential) Empty() bool {
	return len(c.Secret) == 0
}

func (c Credential) String() string {
	return "credential(" + string(c.Method) + ", [redacted])"
}

// GoString keeps %#v from printing the buffers.
func (c Credential) GoString() string {
	return c.String()
}

// LogValue implements slog.LogValuer.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("method", string(c.Method)),
		slog.String("secret", "[redacted]"),
	)
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
