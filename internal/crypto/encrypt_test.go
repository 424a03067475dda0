package crypto

import (
	"encoding/hex"
	"strings"
	"testing"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestSealOpenWithKey_RoundTrip(t *testing.T) {
	sealed, err := SealWithKey(`{"url":"https://x.vercel.app"}`, testKey)
	if err != nil {
		t.Fatalf("SealWithKey failed: %v", err)
	}
	if !strings.HasPrefix(sealed, "enc:") {
		t.Errorf("expected enc: prefix, got %q", sealed)
	}

	plain, err := OpenWithKey(sealed, testKey)
	if err != nil {
		t.Fatalf("OpenWithKey failed: %v", err)
	}
	if plain != `{"url":"https://x.vercel.app"}` {
		t.Errorf("round trip mismatch: %q", plain)
	}
}

func TestSeal_KeylessFallsBackToPlain(t *testing.T) {
	t.Setenv("OPENPREVIEW_STATE_ENCRYPTION_KEY", "")

	sealed, err := Seal("state")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if !strings.HasPrefix(sealed, "plain:") {
		t.Errorf("expected plain: prefix without a key, got %q", sealed)
	}

	plain, err := Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if plain != "state" {
		t.Errorf("round trip mismatch: %q", plain)
	}
}

func TestSeal_UsesEnvKey(t *testing.T) {
	t.Setenv("OPENPREVIEW_STATE_ENCRYPTION_KEY", hex.EncodeToString(testKey))

	sealed, err := Seal("secret state")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if !strings.HasPrefix(sealed, "enc:") {
		t.Errorf("expected enc: prefix with env key, got %q", sealed)
	}

	plain, err := Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if plain != "secret state" {
		t.Errorf("round trip mismatch: %q", plain)
	}
}

func TestOpen_RejectsUnknownEnvelope(t *testing.T) {
	if _, err := Open("garbage"); err == nil {
		t.Errorf("expected error for missing envelope prefix")
	}
}

func TestSealWithKey_RejectsBadKeyLength(t *testing.T) {
	if _, err := SealWithKey("x", []byte("short")); err == nil {
		t.Errorf("expected error for short key")
	}
	if _, err := OpenWithKey("enc:AAAA", []byte("short")); err == nil {
		t.Errorf("expected error for short key on open")
	}
}
