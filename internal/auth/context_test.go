// ABOUTME: Tests for Scope propagation through request contexts
// ABOUTME: Covers WithScope/ScopeFrom round trips and missing-scope behavior

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netwarden/netwarden/internal/store"
)

func TestScope_RoundTrip(t *testing.T) {
	token := &store.AgentToken{ID: "tok-1", OwnerID: "user-1"}
	scope := &Scope{UserID: "user-1", Token: token}

	ctx := WithScope(context.Background(), scope)

	got := ScopeFrom(ctx)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "tok-1", got.Token.ID)
}

func TestScopeFrom_Missing(t *testing.T) {
	assert.Nil(t, ScopeFrom(context.Background()))
}

func TestMustScopeFrom_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustScopeFrom(context.Background())
	})
}
