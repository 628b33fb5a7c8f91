package logger

import "testing"

func TestSanitizeRedactsSecretsAndHashesIDs(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"refresh_token", "abc",
		"user_id", "5b0c4a4e-0000-0000-0000-000000000001",
		"kind", "course_outline",
	})
	if len(out) != 6 {
		t.Fatalf("unexpected kv length: %d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("token should be redacted, got %v", out[1])
	}
	hashed, ok := out[3].(string)
	if !ok || len(hashed) != len("hash:")+12 {
		t.Fatalf("user_id should be hashed, got %v", out[3])
	}
	if out[5] != "course_outline" {
		t.Fatalf("plain values must pass through, got %v", out[5])
	}
}

func TestSanitizeOddKVKeepsTrailingKey(t *testing.T) {
	out := sanitizeKVs([]interface{}{"stage", "run", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected output: %#v", out)
	}
}

func TestLooksLikeJWT(t *testing.T) {
	if !looksLikeJWT("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0.sig") {
		t.Fatalf("expected jwt detection")
	}
	if looksLikeJWT("a.b.c") {
		t.Fatalf("short segments are not a jwt")
	}
}
