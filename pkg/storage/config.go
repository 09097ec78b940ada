package storage

import (
	"context"
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up the CredentialStore based on flags.
func Configured() CredentialStore {
	provider := lflag.String("token-storage", "file", "Where the Tesla refresh token is kept (available: file, firestore)")

	var p struct{ CredentialStore }

	file := configuredFileStore()
	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "file":
			if err := file.Validate(); err != nil {
				panic(fmt.Sprintf("file store validation failed: %v", err))
			}
			p.CredentialStore = file
		case "firestore":
			p.CredentialStore = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown token storage: %s", *provider))
		}
	})

	return &p
}
