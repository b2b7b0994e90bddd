// ABOUTME: Request scope for tracking the authenticated owner through handlers
// ABOUTME: Provides WithScope/ScopeFrom for propagating identity via context

package auth

import (
	"context"

	"github.com/netwarden/netwarden/internal/store"
)

// Scope holds the authenticated identity attached to a request. UserID is
// always set; Token is non-nil only for agent requests, where handlers
// need the credential's binding state.
type Scope struct {
	UserID string
	Token  *store.AgentToken
}

// scopeKey is the key type for storing Scope in context.Context.
type scopeKey struct{}

// WithScope returns a new context with the Scope attached.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom retrieves the Scope from the context, returning nil if not present.
func ScopeFrom(ctx context.Context) *Scope {
	val := ctx.Value(scopeKey{})
	if val == nil {
		return nil
	}
	scope, ok := val.(*Scope)
	if !ok {
		return nil
	}
	return scope
}

// MustScopeFrom retrieves the Scope from the context, panicking if not present.
// Handlers behind the auth middleware may rely on it.
func MustScopeFrom(ctx context.Context) *Scope {
	scope := ScopeFrom(ctx)
	if scope == nil {
		panic("auth: Scope not found in context")
	}
	return scope
}
