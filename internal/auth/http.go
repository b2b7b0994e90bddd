// ABOUTME: HTTP middleware for agent token and dashboard session authentication
// ABOUTME: Extracts bearer values from Authorization headers and attaches Scope

package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/netwarden/netwarden/internal/store"
)

// ExtractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func ExtractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// AgentAuth authenticates agent requests against the vault and attaches
// the owner's Scope to the request context. Every failure mode produces
// the same generic 401 body.
func AgentAuth(vault *Vault) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret, errMsg := ExtractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				unauthorized(w)
				return
			}

			token, err := vault.Authenticate(r.Context(), secret)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) {
					unauthorized(w)
					return
				}
				http.Error(w, `{"message":"internal error"}`, http.StatusInternalServerError)
				return
			}

			scope := &Scope{UserID: token.OwnerID, Token: token}
			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
		})
	}
}

// DashboardAuth authenticates dashboard requests via JWT session tokens
// and attaches the user's Scope to the request context.
func DashboardAuth(sessions *Sessions, users store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, errMsg := ExtractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				unauthorized(w)
				return
			}

			userID, err := sessions.Verify(tokenString)
			if err != nil {
				unauthorized(w)
				return
			}

			// A deleted user's sessions die with the account
			if _, err := users.GetUser(r.Context(), userID); err != nil {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), &Scope{UserID: userID})))
		})
	}
}

// unauthorized writes the generic 401 body. Deliberately detail-free so
// callers cannot probe which credential state they hit.
func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"message":"unauthorized"}`))
}
