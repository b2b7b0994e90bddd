// ABOUTME: Tests for dashboard user persistence
// ABOUTME: Covers creation, lookup by username, and duplicate rejection

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStore_CreateAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := &User{
		ID:           uuid.New().String(),
		Username:     "alice",
		PasswordHash: "$2a$10$hash",
		DisplayName:  "Alice",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.CreateUser(ctx, user))

	got, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "Alice", got.DisplayName)

	got, err = store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestUserStore_DuplicateUsername(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestUser(t, store, "alice")

	err := store.CreateUser(ctx, &User{
		ID:           uuid.New().String(),
		Username:     "alice",
		PasswordHash: "$2a$10$hash",
		DisplayName:  "Another Alice",
		CreatedAt:    time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestUserStore_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetUserByUsername(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
