package dialog

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHost(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
	}{
		{"example.com", "example.com", 22},
		{" example.com:2222 ", "example.com", 2222},
		{"10.0.0.1", "10.0.0.1", 22},
		{"10.0.0.1:65535", "10.0.0.1", 65535},
		{"[::1]", "::1", 22},
		{"[2001:db8::1]:2200", "2001:db8::1", 2200},
		{"2001:db8::1", "2001:db8::1", 22},
		{"my_host-1.internal", "my_host-1.internal", 22},
	}
	for _, tc := range cases {
		host, port, err := ParseHost(tc.in, 22)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.host, host, tc.in)
		assert.Equal(t, tc.port, port, tc.in)
	}
}

func TestParseHostRejects(t *testing.T) {
	bad := []string{
		"",
		"example.com:0",
		"example.com:65536",
		"example.com:ssh",
		"example.com:",
		"bad host",
		"-lead.example.com",
		"a..b",
		"[::1",
		"[10.0.0.1]:22",
		"[::1]x",
		strings.Repeat("a", 64) + ".com",
		strings.Repeat("abcdefghi.", 26) + "com",
	}
	for _, in := range bad {
		_, _, err := ParseHost(in, 22)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "input %q: %v", in, err)
	}
}

func TestValidateUsername(t *testing.T) {
	u, err := ValidateUsername("  deploy ")
	require.NoError(t, err)
	assert.Equal(t, "deploy", u)

	for _, in := range []string{"", "two words", "tab\tname", strings.Repeat("u", 65)} {
		_, err := ValidateUsername(in)
		assert.Error(t, err, in)
	}
}
