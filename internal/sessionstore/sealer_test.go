package sessionstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/m3rciful/sshbot/internal/remote"
)

func TestFernetSealerRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	s, err := NewFernetSealer(key)
	require.NoError(t, err)

	cred := remote.Credential{Method: remote.AuthPassword, Secret: []byte("pw")}
	sealed, err := SealCredential(s, cred)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "pw\"")

	opened, err := OpenCredential(s, sealed)
	require.NoError(t, err)
	assert.Equal(t, remote.AuthPassword, opened.Method)
	assert.Equal(t, []byte("pw"), opened.Secret)
}

func TestFernetSealerRotation(t *testing.T) {
	oldKey, err := GenerateKey()
	require.NoError(t, err)
	newKey, err := GenerateKey()
	require.NoError(t, err)

	old, err := NewFernetSealer(oldKey)
	require.NoError(t, err)
	sealed, err := old.Seal([]byte("secret"))
	require.NoError(t, err)

	rotated, err := NewFernetSealer(newKey, oldKey)
	require.NoError(t, err)
	plain, err := rotated.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plain))

	other, err := NewFernetSealer(newKey)
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.True(t, errors.Is(err, ErrSealing))
}

func TestNopSealerPersistsNothing(t *testing.T) {
	sealed, err := SealCredential(NopSealer{}, remote.Credential{Method: remote.AuthPassword, Secret: []byte("pw")})
	require.NoError(t, err)
	assert.Nil(t, sealed)
	_, err = OpenCredential(NopSealer{}, []byte("x"))
	assert.True(t, errors.Is(err, ErrSealing))
}

func TestNewFernetSealerRejectsGarbage(t *testing.T) {
	_, err := NewFernetSealer("")
	assert.Error(t, err)
	_, err = NewFernetSealer("not-a-key")
	assert.Error(t, err)
}

func TestKeyFromKeyringIsStable(t *testing.T) {
	keyring.MockInit()
	first, err := KeyFromKeyring()
	require.NoError(t, err)
	second, err := KeyFromKeyring()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	_, err = NewFernetSealer(first)
	assert.NoError(t, err)
}
