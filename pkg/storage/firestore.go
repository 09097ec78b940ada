package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/powerwall-tou/pkg/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	firestoreCollection = "credentials"
	firestoreDocument   = "tesla"
	firestoreTokenField = "refreshToken"
)

// FirestoreStore implements CredentialStore using Google Cloud Firestore. The
// token is kept in the refreshToken field of the credentials/tesla document.
type FirestoreStore struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore store.
// It registers flags for configuration.
func configuredFirestore() *FirestoreStore {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreStore{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the store methods.
func (f *FirestoreStore) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreStore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreStore) doc() *firestore.DocumentRef {
	return f.client.Collection(firestoreCollection).Doc(firestoreDocument)
}

// ReadRefreshToken returns the stored refresh token.
func (f *FirestoreStore) ReadRefreshToken(ctx context.Context) (string, error) {
	snap, err := f.doc().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("failed to fetch credentials doc: %w", err)
	}

	val, err := snap.DataAt(firestoreTokenField)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "credentials doc missing refresh token")
		return "", fmt.Errorf("%w: %v", ErrTokenNotFound, err)
	}
	token, ok := val.(string)
	if !ok || token == "" {
		return "", fmt.Errorf("%w: field is not a non-empty string", ErrTokenNotFound)
	}
	return token, nil
}

// WriteRefreshToken stores token, replacing any previous token.
func (f *FirestoreStore) WriteRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}
	_, err := f.doc().Set(ctx, map[string]interface{}{
		firestoreTokenField: token,
		"updatedAt":         time.Now(),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to write credentials doc: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "stored refresh token in firestore", slog.Int("length", len(token)))
	return nil
}
