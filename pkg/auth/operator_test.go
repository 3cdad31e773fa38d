package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer  abc ", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
	}
	for _, tt := range tests {
		got, err := ExtractToken(tt.header)
		if (err != nil) != tt.wantErr {
			t.Errorf("ExtractToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(hash, "argon2id$") {
		t.Errorf("Unexpected hash format: %s", hash)
	}

	ok, err := VerifyPassword(hash, "correct horse")
	if err != nil || !ok {
		t.Errorf("Expected password to verify, ok=%v err=%v", ok, err)
	}
	ok, _ = VerifyPassword(hash, "wrong horse")
	if ok {
		t.Error("Wrong password must not verify")
	}

	if _, err := VerifyPassword("plain", "x"); err == nil {
		t.Error("Expected error for malformed hash")
	}
	if _, err := HashPassword("short"); err == nil {
		t.Error("Expected error for short password")
	}
}

func TestLoginAndVerify(t *testing.T) {
	hash, _ := HashPassword("operator-pass")
	a, err := NewOperatorAuth("secret", hash, time.Hour)
	if err != nil {
		t.Fatalf("NewOperatorAuth failed: %v", err)
	}

	if _, _, err := a.Login("ops", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}

	token, expires, err := a.Login("ops", "operator-pass")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Error("Token should expire in the future")
	}

	op, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if op.Name != "ops" || op.Role != "operator" {
		t.Errorf("Unexpected operator: %+v", op)
	}
}

func TestVerifyRejects(t *testing.T) {
	a, _ := NewOperatorAuth("secret", "", time.Hour)
	other, _ := NewOperatorAuth("other-secret", "", time.Hour)

	token, _, err := other.IssueToken("ops", "operator")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := a.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for foreign signature, got %v", err)
	}

	expired, _ := NewOperatorAuth("secret", "", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, _ := expired.IssueToken("ops", "operator")
	if _, err := a.Verify(old); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for expired token, got %v", err)
	}

	if _, _, err := a.Login("ops", "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login without configured password must fail, got %v", err)
	}
	if _, err := NewOperatorAuth("", "", 0); err == nil {
		t.Error("Expected error for empty secret")
	}
}
