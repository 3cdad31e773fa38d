package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"magabot/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"hash-password", "validate-cron", "config", "login", "case", "preflight"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestHashPassword_FromStdin(t *testing.T) {
	out, err := run(t, "correct horse battery\n", "hash-password")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(hash, "argon2id$"))
	ok, err := auth.VerifyPassword(hash, "correct horse battery")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashPassword_TooShort(t *testing.T) {
	_, err := run(t, "", "hash-password", "short")
	assert.Error(t, err)
}

func TestValidateCron(t *testing.T) {
	out, err := run(t, "", "validate-cron", "*/15 * * * *", "--next", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)

	_, err = run(t, "", "validate-cron", "every day", "--next", "0")
	assert.Error(t, err)
}

func TestConfigCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assistant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode:\n  voice_markers: [\"say it\"]\n"), 0o600))

	out, err := run(t, "", "config", "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "say it")
}

func TestConfigCheck_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assistant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("negotiation:\n  count: 99\n"), 0o600))

	_, err := run(t, "", "config", "check", path)
	assert.Error(t, err)
}

func TestCaseStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/cases/case-1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"status": "📋 Case case-1\nStage: Apply"})
	}))
	defer srv.Close()

	out, err := run(t, "", "case", "status", "case-1", "--url", srv.URL, "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, "Stage: Apply")
}

func TestCaseStatus_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Case not found"})
	}))
	defer srv.Close()

	_, err := run(t, "", "case", "status", "missing", "--url", srv.URL, "--token", "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Case not found")
}

func TestCaseRetry(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"case_id":"case-1","queued":"retry"}`))
	}))
	defer srv.Close()

	out, err := run(t, "", "case", "retry", "case-1", "--url", srv.URL, "--token", "tok")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/v1/cases/case-1/retry", gotPath)
	assert.Contains(t, out, "retry queued")
}

func TestCaseCommands_RequireToken(t *testing.T) {
	_, err := run(t, "", "case", "status", "case-1", "--url", "http://127.0.0.1:1", "--token", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "alice", req["name"])
		assert.Equal(t, "secret-pass", req["password"])
		json.NewEncoder(w).Encode(map[string]string{"token": "jwt-token", "expires_at": "2026-01-01T00:00:00Z"})
	}))
	defer srv.Close()

	out, err := run(t, "secret-pass\n", "login", "--name", "alice", "--url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", strings.TrimSpace(out))
}

func TestPreflight(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("TELEGRAM_MODE", "polling")

	out, err := run(t, "", "preflight", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Pre-flight summary")
}

func TestPreflight_Fails(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")

	_, err := run(t, "", "preflight", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
