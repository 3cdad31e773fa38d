package crypto

import (
	"bytes"
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestRecordCipher_RoundTrip(t *testing.T) {
	c, err := NewRecordCipher(testKey)
	if err != nil {
		t.Fatalf("NewRecordCipher: %v", err)
	}

	plaintext := []byte(`{"stage":"apply","profile":{"email":"dev@example.com"}}`)
	sealed, err := c.Seal("user-1", "case-1", plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if strings.Contains(sealed, "example.com") {
		t.Fatal("sealed output leaks plaintext")
	}

	opened, err := c.Open("user-1", "case-1", sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("got %q, want %q", opened, plaintext)
	}
}

func TestRecordCipher_BindsOwnerAndRecord(t *testing.T) {
	c, _ := NewRecordCipher(testKey)
	sealed, _ := c.Seal("user-1", "case-1", []byte("secret"))

	if _, err := c.Open("user-2", "case-1", sealed); err == nil {
		t.Error("expected failure opening with another owner's key")
	}
	if _, err := c.Open("user-1", "case-2", sealed); err == nil {
		t.Error("expected failure opening under another record id")
	}
}

func TestNewRecordCipher_InvalidKeys(t *testing.T) {
	for _, key := range []string{"", "zz", "0011"} {
		if _, err := NewRecordCipher(key); err == nil {
			t.Errorf("key %q: expected error", key)
		}
	}
}

func TestPlain(t *testing.T) {
	sealed, _ := Plain{}.Seal("u", "r", []byte("hello"))
	opened, err := Plain{}.Open("u", "r", sealed)
	if err != nil || string(opened) != "hello" {
		t.Errorf("round trip failed: %q, %v", opened, err)
	}
}
