package storage

import (
	"context"
	"errors"
)

// ErrTokenNotFound is returned when no refresh token has been stored yet.
var ErrTokenNotFound = errors.New("refresh token not found")

// CredentialStore persists the Tesla refresh token between runs. Tesla rotates
// the refresh token on every exchange so the new one must be written back
// before the old one is discarded.
type CredentialStore interface {
	ReadRefreshToken(ctx context.Context) (string, error)
	WriteRefreshToken(ctx context.Context, token string) error

	// Lifecycle
	Close() error
}
