package sessionstore

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWriteTableHidesCredentials(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{
			UserID: 1001, Host: "db.internal", Port: 22, Username: "admin", AuthMethod: "password",
			SealedCredential: []byte("gAAAAA-sealed-token"), RemoteCWD: "/srv",
			ConnectedAt: now.Add(-2 * time.Hour), LastActivity: now.Add(-5 * time.Minute),
		},
		{
			UserID: 1002, Host: "10.0.0.7", Port: 2222, Username: "deploy", AuthMethod: "key",
			RemoteCWD: "/home/deploy", ConnectedAt: now.Add(-time.Minute), LastActivity: now,
		},
	}
	var b strings.Builder
	WriteTable(&b, records, now)
	out := b.String()

	assert.Contains(t, out, "admin@db.internal:22")
	assert.Contains(t, out, "deploy@10.0.0.7:2222")
	assert.Contains(t, out, "2 hours ago")
	assert.NotContains(t, out, "sealed-token")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[1]), "yes"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[2]), "no"))
}
