package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratushq/stratus-go/internal/sessionfile"
)

// withStdin replaces os.Stdin with a pipe holding input for the duration
// of the test. The pipe is never a terminal, so promptSecret takes the
// plain-line path.
func withStdin(t *testing.T, input string) {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	_, err = w.WriteString(input)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	old := os.Stdin
	os.Stdin = r

	t.Cleanup(func() {
		os.Stdin = old
		_ = r.Close()
	})
}

func TestPromptLine_TrimsWhitespace(t *testing.T) {
	withStdin(t, "  pilot@example.com  \n")

	line, err := promptLine("Email or API key: ")
	require.NoError(t, err)
	assert.Equal(t, "pilot@example.com", line)
}

func TestPromptLine_LastLineWithoutNewline(t *testing.T) {
	withStdin(t, "hunter2")

	line, err := promptLine("")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", line)
}

func TestPromptLine_EmptyInputErrors(t *testing.T) {
	withStdin(t, "")

	_, err := promptLine("")
	require.Error(t, err)
}

func TestPromptSecret_PipedInput(t *testing.T) {
	withStdin(t, "hunter2\n")

	secret, err := promptSecret("Secret: ")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", secret)
}

func TestLoginCommand_SavesSession(t *testing.T) {
	saveGlobals(t)

	dir := t.TempDir()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"accessToken":"at-1","refreshToken":"rt-1","expiresAt":"2030-01-01T00:00:00Z"}`)
	})
	mux.HandleFunc("GET /users/current", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"u-1","email":"pilot@example.com"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	withStdin(t, "hunter2\n")

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--quiet",
		"--config", filepath.Join(dir, "absent.toml"),
		"--data-dir", dir,
		"--base-url", srv.URL,
		"login", "pilot@example.com",
	})

	require.NoError(t, cmd.Execute())

	sess, err := sessionfile.Load(filepath.Join(dir, "session.json"))
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Equal(t, "at-1", sess.AccessToken)
	assert.Equal(t, "rt-1", sess.RefreshToken)
	assert.Equal(t, "pilot@example.com", sess.Identity.Email)
}

func TestLogoutCommand_Idempotent(t *testing.T) {
	saveGlobals(t)

	dir := t.TempDir()

	// Logging out with no saved session succeeds quietly.
	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--quiet",
		"--config", filepath.Join(dir, "absent.toml"),
		"--data-dir", dir,
		"logout",
	})

	require.NoError(t, cmd.Execute())
}
