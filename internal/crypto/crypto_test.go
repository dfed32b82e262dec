package crypto

import (
	"strings"
	"testing"
)

func TestSealOpen_Roundtrip(t *testing.T) {
	enc, err := NewEncryptor(KeyFromSecret("workspace-credentials"))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}

	cfg := map[string]any{"headers": map[string]any{"Authorization": "Bearer abc"}}
	sealed, err := enc.Seal(cfg)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(sealed, "Bearer") {
		t.Fatal("sealed value should not contain the plaintext")
	}

	opened, err := enc.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	headers, _ := opened["headers"].(map[string]any)
	if headers["Authorization"] != "Bearer abc" {
		t.Fatalf("unexpected opened config: %v", opened)
	}
}

func TestSealOpen_NoopMode(t *testing.T) {
	enc, err := NewEncryptor(nil)
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	sealed, err := enc.Seal(map[string]any{"token": "t"})
	if err != nil {
		t.Fatal(err)
	}
	if sealed != `{"token":"t"}` {
		t.Fatalf("no-op mode should store JSON as is, got %q", sealed)
	}
	opened, err := enc.Open(sealed)
	if err != nil || opened["token"] != "t" {
		t.Fatalf("open: %v %v", err, opened)
	}
}

func TestSeal_EmptyConfig(t *testing.T) {
	enc, _ := NewEncryptor(KeyFromSecret("k"))
	sealed, err := enc.Seal(nil)
	if err != nil || sealed != "" {
		t.Fatalf("got %q, %v", sealed, err)
	}
	opened, err := enc.Open("")
	if err != nil || len(opened) != 0 {
		t.Fatalf("got %v, %v", opened, err)
	}
}

func TestOpen_WrongKey(t *testing.T) {
	a, _ := NewEncryptor(KeyFromSecret("one"))
	b, _ := NewEncryptor(KeyFromSecret("two"))

	sealed, _ := a.Seal(map[string]any{"token": "t"})
	if _, err := b.Open(sealed); err == nil {
		t.Fatal("expected error opening with the wrong key")
	}
}

func TestNewEncryptor_BadKeyLength(t *testing.T) {
	if _, err := NewEncryptor([]byte("short")); err == nil {
		t.Fatal("expected error for a short key")
	}
}
