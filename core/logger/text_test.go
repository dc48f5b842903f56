package logger

import (
	"context"
	"testing"
)

func TestSanitizeLimit(t *testing.T) {
	in := "ls\x1b[0m -la\u200b\tok\x7f\n"
	if got := Sanitize(in); got != "ls[0m -la\tok\n" {
		t.Fatalf("Sanitize = %q", got)
	}
	if got := SanitizeLimit("привет", 3); got != "при" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("x", 0); got != "" {
		t.Fatalf("SanitizeLimit(0) = %q", got)
	}
}

func TestCompactRID(t *testing.T) {
	if got := CompactRID(BuildRID(35, 36, 1001)); got != "z.10.rt" {
		t.Fatalf("CompactRID = %q", got)
	}
	for _, rid := range []string{"", "abc", "1:2", "1:x:3"} {
		if got := CompactRID(rid); got != rid {
			t.Fatalf("CompactRID(%q) = %q", rid, got)
		}
	}
}

func TestContextValues(t *testing.T) {
	//nolint:staticcheck // nil context is accepted on purpose
	if id, target := SessionFrom(nil); id != "" || target != "" {
		t.Fatalf("nil ctx session = %q %q", id, target)
	}
	ctx := WithUpdateMeta(context.Background(), 5, 1001, 2002)
	ctx = WithSession(ctx, "s1", "root@db:22")
	if UpdateIDFrom(ctx) != 5 || UserIDFrom(ctx) != 1001 || ChatIDFrom(ctx) != 2002 {
		t.Fatalf("update meta lost: %d %d %d", UpdateIDFrom(ctx), UserIDFrom(ctx), ChatIDFrom(ctx))
	}
	if id, target := SessionFrom(ctx); id != "s1" || target != "root@db:22" {
		t.Fatalf("session = %q %q", id, target)
	}
	if FromContext(ctx) != L {
		t.Fatal("FromContext without WithLogger should return L")
	}
}
