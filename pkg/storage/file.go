package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/levenlabs/go-lflag"
)

// FileStore implements CredentialStore using a plain text file.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore that reads and writes path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// configuredFileStore sets up the file store.
func configuredFileStore() *FileStore {
	path := lflag.String("token-file", "/app/auth/tesla_refresh_token.txt", "Path of the file holding the Tesla refresh token")

	f := &FileStore{}
	lflag.Do(func() {
		f.path = *path
	})
	return f
}

// Validate checks if the store is properly configured.
func (f *FileStore) Validate() error {
	if f.path == "" {
		return fmt.Errorf("token-file is required")
	}
	return nil
}

// ReadRefreshToken returns the trimmed contents of the file.
func (f *FileStore) ReadRefreshToken(ctx context.Context) (string, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrTokenNotFound, f.path)
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrTokenNotFound, f.path)
	}
	return token, nil
}

// WriteRefreshToken replaces the file contents with token. The token is
// written to a temporary file in the same directory and renamed so a crash
// never leaves a partial token behind.
func (f *FileStore) WriteRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp token file: %w", err)
	}
	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (f *FileStore) Close() error {
	return nil
}
