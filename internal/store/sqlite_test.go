// ABOUTME: Shared test helpers and store lifecycle tests
// ABOUTME: Provides setupTestStore plus fixture creators for users and tokens

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// createTestUser inserts a user fixture and returns its ID.
func createTestUser(t *testing.T, store *SQLiteStore, username string) string {
	t.Helper()
	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: "$2a$10$notarealhashnotarealhashnotarealhashnotarealha",
		DisplayName:  "Test " + username,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user.ID
}

// createTestToken inserts an unbound token fixture for the given owner.
func createTestToken(t *testing.T, store *SQLiteStore, ownerID, hash string) *AgentToken {
	t.Helper()
	token := &AgentToken{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Name:         "test token",
		SecretHash:   hash,
		SecretPrefix: "deadbeef",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.CreateToken(context.Background(), token))
	return token
}

func TestNewSQLiteStore_CreatesParentDirs(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "dir", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestNewSQLiteStore_ReopenExisting(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	ownerID := createTestUser(t, store, "alice")
	require.NoError(t, store.Close())

	// Schema creation and migrations must be idempotent on reopen
	store2, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	user, err := store2.GetUser(context.Background(), ownerID)
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
}
