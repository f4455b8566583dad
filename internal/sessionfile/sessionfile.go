// Package sessionfile handles reading and writing session files: the
// token pair, its expiry, and the cached account identity, persisted
// between CLI invocations. This is a leaf package so that both the CLI
// and the engine wiring can use it without import cycles.
package sessionfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/stratushq/stratus-go/internal/api"
	"github.com/stratushq/stratus-go/internal/session"
)

// FilePerms restricts session files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the session directory.
const DirPerms = 0o700

// File is the on-disk format for session files.
type File struct {
	Session *Record `json:"session"`
}

// Record is the serialized session state.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"identity"`
}

// Identity is the serialized account identity.
type Identity struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
}

// Load reads a saved session from disk. Returns (nil, nil) if the file
// does not exist; callers treat that as "not logged in".
func Load(path string) (*session.Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("sessionfile: reading %s: %w", path, err)
	}

	var sf File
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("sessionfile: decoding %s: %w", path, err)
	}

	if sf.Session == nil {
		return nil, fmt.Errorf("sessionfile: %s missing session field (re-login required)", path)
	}

	return &session.Session{
		AccessToken:  sf.Session.AccessToken,
		RefreshToken: sf.Session.RefreshToken,
		ExpiresAt:    sf.Session.ExpiresAt,
		Identity: api.Identity{
			ID:          sf.Session.Identity.ID,
			Email:       sf.Session.Identity.Email,
			DisplayName: sf.Session.Identity.DisplayName,
			APIKey:      sf.Session.Identity.APIKey,
		},
	}, nil
}

// Save writes a session file to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs token values.
func Save(path string, sess session.Session) error {
	sf := File{
		Session: &Record{
			AccessToken:  sess.AccessToken,
			RefreshToken: sess.RefreshToken,
			ExpiresAt:    sess.ExpiresAt,
			Identity: Identity{
				ID:          sess.Identity.ID,
				Email:       sess.Identity.Email,
				DisplayName: sess.Identity.DisplayName,
				APIKey:      sess.Identity.APIKey,
			},
		},
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("sessionfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("sessionfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	// Clean up temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("sessionfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("sessionfile: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close
	// and rename cannot leave an empty or partial session file at the
	// final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sessionfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sessionfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("sessionfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the session file at the given path.
// Returns nil if the file does not exist (already logged out).
func Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("sessionfile: removing %s: %w", path, err)
	}

	return nil
}
